// Package config provides 12-factor configuration management for the bridge.
//
// Configuration is loaded from BRIDGE_-prefixed environment variables with
// sensible defaults. Each section maps to the config struct of the package
// it configures.
//
// Configuration Sections:
//   - Server: listen address, body limit, app id, discovery directory
//   - Call: per-operation timeouts and the default window
//   - Framer: sandbox IPC function and callback command
//   - Relay: subscriber queue size and slow-subscriber cutoff
//   - Host: headless or remote mode, headless page glob and script timeout
//   - Auth: fixed token override
//   - Log, RateLimit, CORS
//   - NATS: optional mirror of relay streams
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Bridge listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - BRIDGE_SERVER_ADDR, BRIDGE_SERVER_PORT, BRIDGE_SERVER_APP_ID
//   - BRIDGE_CALL_EVAL_TIMEOUT, BRIDGE_CALL_ACTION_TIMEOUT
//   - BRIDGE_HOST_MODE, BRIDGE_HOST_HEADLESS_PAGES_DIR
//   - BRIDGE_AUTH_TOKEN, BRIDGE_LOG_LEVEL, BRIDGE_LOG_DEV
//   - BRIDGE_NATS_URL, BRIDGE_NATS_SUBJECT_PREFIX
package config
