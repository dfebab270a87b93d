/*
Package monitoring provides metrics collection for the bridge.

# Overview

Metrics are Prometheus collectors held on a private registry, covering HTTP
requests, bridged calls, relay losses and WebSocket connections. Recent call
durations are also kept in small per-operation windows so /stats can report
quantiles without a Prometheus server.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	timer := monitoring.NewTimer(metrics, "eval")
	// ... perform call ...
	timer.Stop("success")

	metrics.Latencies()["eval"].P99
*/
package monitoring
