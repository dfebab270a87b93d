package tracing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// Propagation headers
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

// DefaultSlowThreshold marks requests worth logging at info level
const DefaultSlowThreshold = 2 * time.Second

// recentSize is how many finished spans Recent keeps
const recentSize = 32

type (
	TraceID string
	SpanID  string
)

// Span is one traced request
type Span struct {
	TraceID  TraceID
	SpanID   SpanID
	ParentID SpanID
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int

	mu       sync.Mutex
	fields   []zap.Field
	category string
}

// Annotate attaches fields that are logged when the span finishes
func (s *Span) Annotate(fields ...zap.Field) {
	s.mu.Lock()
	s.fields = append(s.fields, fields...)
	s.mu.Unlock()
}

// Fail records the error category the request ended with
func (s *Span) Fail(category string) {
	s.mu.Lock()
	s.category = category
	s.mu.Unlock()
}

// Category returns the recorded error category, if any
func (s *Span) Category() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.category
}

func (s *Span) failed() bool {
	return s.Category() != "" || s.Status >= 500
}

// Summary is the /stats view of a finished span
type Summary struct {
	TraceID  TraceID `json:"trace_id"`
	Name     string  `json:"name"`
	Status   int     `json:"status"`
	Category string  `json:"category,omitempty"`
	MS       float64 `json:"ms"`
	Slow     bool    `json:"slow,omitempty"`
}

// Tracer logs finished spans off the request path and keeps the most
// recent ones
type Tracer struct {
	logger *zap.Logger
	slow   time.Duration
	queue  chan *Span

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	recentMu sync.Mutex
	recent   []Summary
	next     int
}

// New creates a tracer. A zero slow threshold uses DefaultSlowThreshold.
func New(logger *zap.Logger, slow time.Duration) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slow <= 0 {
		slow = DefaultSlowThreshold
	}
	t := &Tracer{
		logger: logger.Named("trace"),
		slow:   slow,
		queue:  make(chan *Span, 1024),
		done:   make(chan struct{}),
		recent: make([]Summary, 0, recentSize),
	}
	go t.collect()
	return t
}

// Start opens a span as a child of the one in ctx, continuing its trace
func (t *Tracer) Start(ctx context.Context, name string) (*Span, context.Context) {
	traceID, parent := GetTraceID(ctx), GetSpanID(ctx)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}
	span := &Span{
		TraceID:  traceID,
		SpanID:   SpanID(id.NewRequestID()),
		ParentID: parent,
		Name:     name,
		Start:    time.Now(),
	}
	return span, context.WithValue(ctx, spanKey{}, span)
}

// Finish stamps the span and queues it for logging. Spans finished after
// Close are dropped.
func (t *Tracer) Finish(span *Span, status int) {
	span.Duration = time.Since(span.Start)
	span.Status = status

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- span:
	default:
		t.logger.Warn("Trace queue full, dropping span", zap.String("trace_id", string(span.TraceID)))
	}
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.queue {
		t.emit(span)
	}
}

func (t *Tracer) emit(span *Span) {
	slow := span.Duration >= t.slow

	span.mu.Lock()
	fields := append([]zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.Duration("duration", span.Duration),
		zap.Int("status", span.Status),
	}, span.fields...)
	category := span.category
	span.mu.Unlock()

	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if category != "" {
		fields = append(fields, zap.String("category", category))
	}

	switch {
	case span.failed():
		t.logger.Warn("Request failed", fields...)
	case slow:
		t.logger.Info("Slow request", fields...)
	default:
		t.logger.Debug("Request completed", fields...)
	}

	t.remember(Summary{
		TraceID:  span.TraceID,
		Name:     span.Name,
		Status:   span.Status,
		Category: category,
		MS:       float64(span.Duration.Microseconds()) / 1000,
		Slow:     slow,
	})
}

func (t *Tracer) remember(s Summary) {
	t.recentMu.Lock()
	defer t.recentMu.Unlock()
	if len(t.recent) < recentSize {
		t.recent = append(t.recent, s)
		return
	}
	t.recent[t.next] = s
	t.next = (t.next + 1) % recentSize
}

// Recent returns the last finished spans, oldest first
func (t *Tracer) Recent() []Summary {
	t.recentMu.Lock()
	defer t.recentMu.Unlock()
	out := make([]Summary, 0, len(t.recent))
	out = append(out, t.recent[t.next:]...)
	return append(out, t.recent[:t.next]...)
}

// Close logs queued spans and stops the collector
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()
	<-t.done
}

// ============================================================================
// Context
// ============================================================================

type spanKey struct{}

type remoteKey struct{}

type remoteParent struct {
	trace TraceID
	span  SpanID
}

// FromContext returns the span in ctx, or nil
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Annotate adds fields to the span in ctx, if there is one
func Annotate(ctx context.Context, fields ...zap.Field) {
	if span := FromContext(ctx); span != nil {
		span.Annotate(fields...)
	}
}

// Fail records an error category on the span in ctx, if there is one
func Fail(ctx context.Context, category string) {
	if span := FromContext(ctx); span != nil {
		span.Fail(category)
	}
}

// WithRemote returns ctx continuing a trace started by the caller
func WithRemote(ctx context.Context, traceID TraceID, spanID SpanID) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, remoteKey{}, remoteParent{trace: traceID, span: spanID})
}

// GetTraceID returns the trace ctx belongs to
func GetTraceID(ctx context.Context) TraceID {
	if span := FromContext(ctx); span != nil {
		return span.TraceID
	}
	if p, ok := ctx.Value(remoteKey{}).(remoteParent); ok {
		return p.trace
	}
	return ""
}

// GetSpanID returns the innermost span of ctx
func GetSpanID(ctx context.Context) SpanID {
	if span := FromContext(ctx); span != nil {
		return span.SpanID
	}
	if p, ok := ctx.Value(remoteKey{}).(remoteParent); ok {
		return p.span
	}
	return ""
}

// Logger returns logger annotated with the trace found in ctx
func Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := GetTraceID(ctx)
	if traceID == "" {
		return logger
	}
	return logger.With(zap.String("trace_id", string(traceID)))
}
