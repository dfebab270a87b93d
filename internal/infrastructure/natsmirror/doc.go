// Package natsmirror copies relay traffic onto NATS so tools outside the
// bridge can follow console output, app events and server logs without
// holding a WebSocket open.
package natsmirror
