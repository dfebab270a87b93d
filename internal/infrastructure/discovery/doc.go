// Package discovery lets clients find a running bridge. Each bridge writes
// <dir>/<app-id>.json holding its port and token while it runs and removes
// the file on shutdown.
package discovery
