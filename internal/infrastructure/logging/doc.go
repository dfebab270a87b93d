// Package logging builds the bridge's zap logger.
//
// Production output is JSON; development output (BRIDGE_LOG_DEV=true) is a
// colored console encoding. RelayCore tees entries into the relay's logs
// stream, which is how /logs subscribers see the bridge's own log lines,
// each published under its level name so they can be filtered with
// AtLeast without decoding.
//
// Example Usage:
//
//	r := relay.New(relay.DefaultConfig(), nil)
//	logger, err := logging.New(cfg, logging.NewRelayCore(r, relay.StreamLogs, zapcore.DebugLevel))
//	logger.Info("Server starting", zap.Int("port", 9229))
package logging
