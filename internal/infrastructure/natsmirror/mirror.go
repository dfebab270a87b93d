package natsmirror

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/resilience"
)

// Config selects what is mirrored and where
type Config struct {
	SubjectPrefix string
	Streams       []string
	FlushTimeout  time.Duration
}

// Stats counts mirror activity
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Rejected  uint64 `json:"rejected"`
	Breaker   string `json:"breaker"`
}

// Connect dials the NATS server with reconnect handling logged through
// logger
func Connect(url, name string, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(60),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

// Mirror republishes relay messages on NATS subjects of the form
// <prefix>.<stream>.<name>. Publishing goes through a circuit breaker so
// an unreachable server sheds messages instead of piling up errors.
type Mirror struct {
	nc      *nats.Conn
	relay   *relay.Relay
	cfg     Config
	breaker *resilience.Breaker
	logger  *zap.Logger

	published atomic.Uint64
	failed    atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a mirror. Run starts it.
func New(nc *nats.Conn, r *relay.Relay, cfg Config) *Mirror {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "debugbridge"
	}
	if len(cfg.Streams) == 0 {
		cfg.Streams = []string{relay.StreamConsole, relay.StreamEvents, relay.StreamLogs}
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 2 * time.Second
	}

	m := &Mirror{
		nc:     nc,
		relay:  r,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	m.breaker = resilience.New("nats-mirror", resilience.Config{
		Threshold: 3,
		Cooldown:  5 * time.Second,
		OnChange: func(name string, from, to resilience.State) {
			m.logger.Warn("Mirror breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return m
}

// WithLogger sets the logger. Pass one that is not teed into the relay,
// or mirror failures end up mirrored.
func (m *Mirror) WithLogger(logger *zap.Logger) *Mirror {
	if logger != nil {
		m.logger = logger.Named("natsmirror")
	}
	return m
}

// Subject returns the NATS subject for a relay message
func (m *Mirror) Subject(msg relay.Message) string {
	name := msg.Name
	if name == "" {
		name = "_"
	}
	return m.cfg.SubjectPrefix + "." + token(msg.Stream) + "." + token(name)
}

// token makes s usable as a single subject token
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}

// Run mirrors until ctx ends or the relay closes, then flushes what is
// buffered in the NATS client
func (m *Mirror) Run(ctx context.Context) error {
	subs := make([]*relay.Subscription, 0, len(m.cfg.Streams))
	for _, stream := range m.cfg.Streams {
		sub, err := m.relay.Subscribe(ctx, stream, nil)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return fmt.Errorf("subscribe to %s: %w", stream, err)
		}
		subs = append(subs, sub)
	}

	m.logger.Info("Mirroring relay to NATS",
		zap.Strings("streams", m.cfg.Streams),
		zap.String("prefix", m.cfg.SubjectPrefix))

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *relay.Subscription) {
			defer wg.Done()
			m.pump(sub)
		}(sub)
	}
	wg.Wait()

	if err := m.nc.FlushTimeout(m.cfg.FlushTimeout); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		m.logger.Warn("Flush on shutdown failed", zap.Error(err))
	}
	return nil
}

func (m *Mirror) pump(sub *relay.Subscription) {
	for {
		msg, ok := <-sub.C()
		if !ok {
			if err := sub.Err(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, relay.ErrClosed) {
				m.logger.Warn("Mirror subscription ended", zap.String("stream", sub.Stream()), zap.Error(err))
			}
			return
		}
		m.publish(msg)
	}
}

func (m *Mirror) publish(msg relay.Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		m.failed.Add(1)
		return
	}
	subject := m.Subject(msg)

	err = m.breaker.Do(func() error {
		return m.nc.Publish(subject, data)
	})
	switch {
	case err == nil:
		m.published.Add(1)
	case errors.Is(err, resilience.ErrOpen), errors.Is(err, resilience.ErrProbing):
		m.rejected.Add(1)
	default:
		m.failed.Add(1)
		m.logger.Debug("Mirror publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Stats returns counters and the breaker state
func (m *Mirror) Stats() Stats {
	return Stats{
		Published: m.published.Load(),
		Failed:    m.failed.Load(),
		Rejected:  m.rejected.Load(),
		Breaker:   m.breaker.State().String(),
	}
}
