package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultLatencyWindow is how many recent samples each operation keeps
const DefaultLatencyWindow = 1024

// LatencySummary describes recent latencies in milliseconds
type LatencySummary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean_ms"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

// LatencyWindow is a fixed-size ring of recent durations
type LatencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

// NewLatencyWindow creates a window holding size samples
func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = DefaultLatencyWindow
	}
	return &LatencyWindow{samples: make([]float64, size)}
}

// Observe records one duration
func (w *LatencyWindow) Observe(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Summary computes quantiles over the samples currently held
func (w *LatencyWindow) Summary() LatencySummary {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	data := make([]float64, n)
	copy(data, w.samples[:n])
	w.mu.Unlock()

	if n == 0 {
		return LatencySummary{}
	}

	sort.Float64s(data)
	return LatencySummary{
		Count: n,
		Mean:  stat.Mean(data, nil),
		P50:   stat.Quantile(0.50, stat.Empirical, data, nil),
		P90:   stat.Quantile(0.90, stat.Empirical, data, nil),
		P99:   stat.Quantile(0.99, stat.Empirical, data, nil),
		Max:   data[n-1],
	}
}
