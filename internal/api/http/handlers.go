package http

import (
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	bridge  *bridge.Bridge
	relay   *relay.Relay
	version string

	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	sources map[string]func() any
}

// NewHandlers creates a new handler set
func NewHandlers(b *bridge.Bridge, r *relay.Relay, version string) *Handlers {
	return &Handlers{
		bridge:  b,
		relay:   r,
		version: version,
		logger:  zap.NewNop(),
		sources: make(map[string]func() any),
	}
}

// WithLogger sets the logger
func (h *Handlers) WithLogger(logger *zap.Logger) *Handlers {
	if logger != nil {
		h.logger = logger.Named("http")
	}
	return h
}

// WithMetrics enables /metrics and the latency section of /stats
func (h *Handlers) WithMetrics(metrics *monitoring.Metrics) *Handlers {
	h.metrics = metrics
	return h
}

// WithStatsSource adds a named section to /stats
func (h *Handlers) WithStatsSource(name string, fn func() any) *Handlers {
	h.mu.Lock()
	h.sources[name] = fn
	h.mu.Unlock()
	return h
}

// Register mounts every route on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	r.POST("/eval", h.Eval)
	r.POST("/click", h.Click)
	r.POST("/fill", h.Fill)
	r.POST("/invoke", h.Invoke)
	r.GET("/snapshot", h.Snapshot)
	r.GET("/screenshot", h.Screenshot)

	r.GET("/windows", h.Windows)
	r.GET("/commands", h.Commands)
	r.GET("/state", h.State)
	r.GET("/config", h.Config)

	r.POST("/events/emit", h.EmitEvent)
	r.GET("/events/list", h.ListEvents)
	r.POST("/console", h.PushConsole)

	r.GET("/metrics", h.Metrics)
	r.GET("/stats", h.Stats)
}

// Health handles the unauthenticated liveness check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
	})
}

// Metrics serves the Prometheus exposition
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"error":  string(bridge.CategoryNotSupported),
			"detail": "metrics are disabled",
		})
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Stats reports in-flight calls, relay counters and call latencies
func (h *Handlers) Stats(c *gin.Context) {
	stats := gin.H{
		"pending":   h.bridge.Pending(),
		"registry":  h.bridge.RegistryStats(),
		"relay":     h.relay.Stats(),
		"listeners": h.bridge.Listeners(),
	}
	if h.metrics != nil {
		stats["uptime_seconds"] = int64(h.metrics.Uptime().Seconds())
		stats["latency"] = h.metrics.Latencies()
		stats["totals"] = h.metrics.Snapshot()
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.sources))
	for name := range h.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats[name] = h.sources[name]()
	}
	h.mu.RUnlock()

	c.JSON(http.StatusOK, stats)
}
