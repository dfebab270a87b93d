package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolated(t *testing.T) {
	// Two collectors must not collide on registration
	a := NewMetrics()
	b := NewMetrics()

	a.RecordCall("eval", "success", 10*time.Millisecond)
	assert.Equal(t, int64(1), a.Snapshot().TotalCalls)
	assert.Equal(t, int64(0), b.Snapshot().TotalCalls)
}

func TestRecordCall(t *testing.T) {
	m := NewMetrics()
	m.RecordCall("eval", "success", 10*time.Millisecond)
	m.RecordCall("eval", "timeout", 30*time.Millisecond)
	m.RecordCall("click", "success", time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.TimedOut)

	lat := m.Latencies()
	require.Contains(t, lat, "eval")
	assert.Equal(t, 2, lat["eval"].Count)
	assert.InDelta(t, 20.0, lat["eval"].Mean, 0.001)
	assert.InDelta(t, 30.0, lat["eval"].Max, 0.001)
	assert.Equal(t, 1, lat["click"].Count)
}

func TestLatencyWindow(t *testing.T) {
	w := NewLatencyWindow(100)
	assert.Equal(t, LatencySummary{}, w.Summary())

	for i := 1; i <= 100; i++ {
		w.Observe(time.Duration(i) * time.Millisecond)
	}
	s := w.Summary()
	assert.Equal(t, 100, s.Count)
	assert.InDelta(t, 50.0, s.P50, 0.001)
	assert.InDelta(t, 90.0, s.P90, 0.001)
	assert.InDelta(t, 99.0, s.P99, 0.001)
	assert.InDelta(t, 100.0, s.Max, 0.001)

	// Older samples are overwritten once the ring wraps
	for i := 0; i < 100; i++ {
		w.Observe(time.Second)
	}
	s = w.Summary()
	assert.InDelta(t, 1000.0, s.P50, 0.001)
	assert.InDelta(t, 1000.0, s.Mean, 0.001)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	m.RegisterPendingGauge(func() int { return 3 })
	m.MessageDropped("console")
	m.SubscriberDisconnected("console")
	m.IncWSConnections("console")

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/windows/:label", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/windows/main", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	for _, want := range []string{
		`debugbridge_http_requests_total{method="GET",path="/windows/:label",status="200"} 1`,
		`path="unmatched"`,
		`debugbridge_calls_pending 3`,
		`debugbridge_relay_dropped_total{stream="console"} 1`,
		`debugbridge_relay_disconnected_total{stream="console"} 1`,
		`debugbridge_ws_connections{route="console"} 1`,
		`debugbridge_uptime_seconds`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}

func TestTimerWithoutMetrics(t *testing.T) {
	timer := NewTimer(nil, "eval")
	assert.GreaterOrEqual(t, timer.Stop("success"), time.Duration(0))
}
