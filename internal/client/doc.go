// Package client talks to a running bridge over HTTP and WebSocket.
//
// Requests go through resty with sonic for JSON. Only GETs are retried;
// eval, click, fill and invoke run at most once. Health probes use
// go-retryablehttp so a bridge that is still starting is waited for.
//
// Example Usage:
//
//	c := client.New(client.Options{BaseURL: "http://127.0.0.1:9229", Token: token})
//	outcome, err := c.Eval(ctx, client.Target{}, "document.title")
package client
