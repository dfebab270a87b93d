// Package server wires the bridge together: logger teed into the relay,
// metrics, tracing, the auth gate, the selected host, HTTP and WebSocket
// routes, the discovery file and the optional NATS mirror.
//
// Example Usage:
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server
