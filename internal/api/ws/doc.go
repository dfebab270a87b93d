// Package ws serves the bridge's streaming endpoints over WebSocket.
//
// Stream routes (server to client only, one JSON text frame per message):
//   - /console: {"level", "message"} for every console line
//   - /errors: console lines at error level
//   - /logs?level=warn: the bridge's own log entries at or above level
//   - /events/listen?name=saved: payloads of one application event
//
// A subscriber that stops reading loses the oldest queued messages first
// and is eventually closed with code 1013. Shutdown closes streams with
// 1001.
//
// /host is the remote host channel: an application that owns its webview
// connects here and exchanges remote.Frame messages with the bridge.
//
// Example Usage:
//
//	handler := ws.NewHandler(b, r).WithRemote(remoteHost)
//	handler.Register(router)
package ws
