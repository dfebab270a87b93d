// Command bridgectl drives a webview through a running debug bridge.
//
// It finds the bridge through the discovery files the daemon writes
// (one <app-id>.json per running bridge), or through --url/--port and
// --token. Defaults can be kept in $XDG_CONFIG_HOME/debugbridge/bridgectl.toml:
//
//	url = "http://127.0.0.1:9229"
//	output = "yaml"
//	window = "main"
//	timeout = "10s"
//
// BRIDGE_TOKEN overrides the token from the file and discovery; --token
// overrides everything.
//
// Example Usage:
//
//	bridgectl connect
//	bridgectl snapshot -i
//	bridgectl click @e3
//	bridgectl fill '#email' ada@example.com
//	bridgectl run-js 'document.title' -o json
//	bridgectl events listen saved
//	bridgectl logs --level warn
package main
