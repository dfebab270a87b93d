// Package remote is a host backed by an application that drives its own
// webview and connects to the bridge over a WebSocket.
//
// The channel carries JSON frames. The bridge sends eval, emit, listen and
// unlisten; the application answers with eval_callback, console, event and
// windows. Until an application attaches, every eval fails with
// host.ErrNotConnected.
package remote
