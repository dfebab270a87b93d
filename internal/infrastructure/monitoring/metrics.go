package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "debugbridge"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Bridge metrics
	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	LateCallbacks prometheus.Counter

	// Relay metrics
	RelayDropped      *prometheus.CounterVec
	RelayDisconnected *prometheus.CounterVec

	// WebSocket metrics
	WSConnections *prometheus.GaugeVec
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	latency  map[string]*LatencyWindow

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for the JSON API
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalCalls    int64   `json:"total_calls"`
	TimedOut      int64   `json:"timed_out"`
	TotalDuration float64 `json:"-"`
	RequestCount  int64   `json:"-"`
}

// NewMetrics creates a metrics collector on its own registry, so several
// collectors can coexist in one process
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		latency:   make(map[string]*LatencyWindow),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Bridge metrics
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Total number of bridged calls by operation and result",
			},
			[]string{"op", "result"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "call_duration_seconds",
				Help:      "Bridged call duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		LateCallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "late_callbacks_total",
				Help:      "Callbacks that arrived after their call was evicted",
			},
		),

		// Relay metrics
		RelayDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_dropped_total",
				Help:      "Messages discarded from full subscriber queues",
			},
			[]string{"stream"},
		),
		RelayDisconnected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_disconnected_total",
				Help:      "Subscribers disconnected for falling behind",
			},
			[]string{"stream"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
			[]string{"route"},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Bridge uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the Prometheus exposition format for this collector
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterPendingGauge exposes the number of in-flight calls
func (m *Metrics) RegisterPendingGauge(pending func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls_pending",
			Help:      "Calls waiting for a sandbox callback",
		},
		func() float64 { return float64(pending()) },
	)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordCall records one bridged call
func (m *Metrics) RecordCall(op, result string, duration time.Duration) {
	m.CallsTotal.WithLabelValues(op, result).Inc()
	m.CallDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCalls++
	if result == "timeout" {
		m.snapshot.TimedOut++
	}
	window, ok := m.latency[op]
	if !ok {
		window = NewLatencyWindow(DefaultLatencyWindow)
		m.latency[op] = window
	}
	m.mu.Unlock()

	window.Observe(duration)
}

// IncLateCallbacks counts a callback for an evicted call
func (m *Metrics) IncLateCallbacks() {
	m.LateCallbacks.Inc()
}

// MessageDropped implements the relay observer
func (m *Metrics) MessageDropped(stream string) {
	m.RelayDropped.WithLabelValues(stream).Inc()
}

// SubscriberDisconnected implements the relay observer
func (m *Metrics) SubscriberDisconnected(stream string) {
	m.RelayDisconnected.WithLabelValues(stream).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections(route string) {
	m.WSConnections.WithLabelValues(route).Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections(route string) {
	m.WSConnections.WithLabelValues(route).Dec()
}

// Snapshot returns the JSON view of current counters
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Uptime returns time since the collector was created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}

// Latencies summarizes recent call durations per operation
func (m *Metrics) Latencies() map[string]LatencySummary {
	m.mu.RLock()
	windows := make(map[string]*LatencyWindow, len(m.latency))
	for op, w := range m.latency {
		windows[op] = w
	}
	m.mu.RUnlock()

	out := make(map[string]LatencySummary, len(windows))
	for op, w := range windows {
		out[op] = w.Summary()
	}
	return out
}
