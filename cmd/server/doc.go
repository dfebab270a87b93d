// Package main is the entry point for the debug bridge daemon.
//
// The daemon exposes a webview's JavaScript sandbox over HTTP and
// WebSocket on a loopback port. In headless mode it renders HTML pages
// itself; in remote mode an application that owns a real webview connects
// to /host and the bridge drives it from there.
//
// Configuration:
//   - Environment variables prefixed BRIDGE_ (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Headless, pages from ./dist
//	./debugbridge --pages ./dist
//
//	# Wait for an application on ws://127.0.0.1:9229/host
//	./debugbridge --mode remote --app-id todo
//
//	# Development mode (colored logs, debug level, token logged)
//	./debugbridge --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown, discovery file removed
package main
