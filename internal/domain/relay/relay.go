package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// Stream names
const (
	StreamConsole = "console"
	StreamEvents  = "events"
	StreamLogs    = "logs"

	// StreamAll subscribes to every stream
	StreamAll = "*"
)

var (
	// ErrSlowSubscriber ends a subscription that kept its queue full for
	// too many consecutive deliveries
	ErrSlowSubscriber = errors.New("subscriber too slow")

	// ErrClosed is returned once the relay has shut down
	ErrClosed = errors.New("relay closed")
)

// Message is one published item
type Message struct {
	Stream  string          `json:"stream"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Filter selects messages for a subscription. A nil filter accepts all.
type Filter func(Message) bool

// ByName accepts messages carrying the given name
func ByName(name string) Filter {
	return func(m Message) bool { return m.Name == name }
}

// Observer is told about lossy deliveries
type Observer interface {
	MessageDropped(stream string)
	SubscriberDisconnected(stream string)
}

// Config tunes per-subscriber queues
type Config struct {
	Buffer              int `envconfig:"BUFFER" default:"256"`
	MaxConsecutiveDrops int `envconfig:"MAX_CONSECUTIVE_DROPS" default:"1024"`
}

// DefaultConfig returns the default relay configuration
func DefaultConfig() Config {
	return Config{
		Buffer:              256,
		MaxConsecutiveDrops: 1024,
	}
}

// Stats is a point-in-time view of relay activity
type Stats struct {
	Subscribers  map[string]int `json:"subscribers"`
	Published    uint64         `json:"published"`
	Dropped      uint64         `json:"dropped"`
	Disconnected uint64         `json:"disconnected"`
}

// Relay fans published messages out to independent subscriber queues.
//
// Publish never blocks. Each subscriber owns a bounded queue; when it is
// full the oldest queued message is discarded to make room, and a
// subscriber that stays full for MaxConsecutiveDrops deliveries in a row is
// disconnected with ErrSlowSubscriber.
type Relay struct {
	cfg      Config
	observer Observer

	mu     sync.RWMutex
	subs   map[id.SubscriptionID]*Subscription
	names  map[string]struct{}
	closed bool

	published    atomic.Uint64
	dropped      atomic.Uint64
	disconnected atomic.Uint64
}

// New creates a relay
func New(cfg Config, observer Observer) *Relay {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultConfig().Buffer
	}
	if cfg.MaxConsecutiveDrops <= 0 {
		cfg.MaxConsecutiveDrops = DefaultConfig().MaxConsecutiveDrops
	}
	return &Relay{
		cfg:      cfg,
		observer: observer,
		subs:     make(map[id.SubscriptionID]*Subscription),
		names:    make(map[string]struct{}),
	}
}

// Publish marshals payload once and delivers it to every matching
// subscriber. json.RawMessage payloads are passed through.
func (r *Relay) Publish(stream, name string, payload any) error {
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case nil:
		raw = json.RawMessage("null")
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", stream, err)
		}
		raw = data
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	return r.PublishMessage(Message{Stream: stream, Name: name, Payload: raw})
}

// PublishMessage delivers a prepared message
func (r *Relay) PublishMessage(msg Message) error {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}

	var (
		slow    []*Subscription
		newName bool
	)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrClosed
	}
	if msg.Stream == StreamEvents && msg.Name != "" {
		_, seen := r.names[msg.Name]
		newName = !seen
	}
	for _, sub := range r.subs {
		if !sub.matches(msg) {
			continue
		}
		switch sub.deliver(msg) {
		case deliveredWithDrop:
			r.dropped.Add(1)
			if r.observer != nil {
				r.observer.MessageDropped(sub.stream)
			}
		case deliveryOverflow:
			slow = append(slow, sub)
		}
	}
	r.mu.RUnlock()

	r.published.Add(1)
	if newName {
		r.recordName(msg.Name)
	}

	for _, sub := range slow {
		r.disconnected.Add(1)
		if r.observer != nil {
			r.observer.SubscriberDisconnected(sub.stream)
		}
		sub.closeWith(ErrSlowSubscriber)
	}
	return nil
}

// Subscribe registers a subscriber on stream. The subscription ends when
// ctx is done, when Close is called, or when the subscriber falls too far
// behind.
func (r *Relay) Subscribe(ctx context.Context, stream string, filter Filter) (*Subscription, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &Subscription{
		id:     id.NewSubscriptionID(),
		stream: stream,
		filter: filter,
		ch:     make(chan Message, r.cfg.Buffer),
		done:   make(chan struct{}),
		relay:  r,
		limit:  r.cfg.MaxConsecutiveDrops,
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.subs[sub.id] = sub
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Names returns the event names published since startup, sorted
func (r *Relay) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns relay counters
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	perStream := make(map[string]int)
	for _, sub := range r.subs {
		perStream[sub.stream]++
	}
	r.mu.RUnlock()

	return Stats{
		Subscribers:  perStream,
		Published:    r.published.Load(),
		Dropped:      r.dropped.Load(),
		Disconnected: r.disconnected.Load(),
	}
}

// Close ends every subscription and rejects further use
func (r *Relay) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.closeWith(ErrClosed)
	}
}

func (r *Relay) recordName(name string) {
	r.mu.Lock()
	r.names[name] = struct{}{}
	r.mu.Unlock()
}

func (r *Relay) remove(subID id.SubscriptionID) {
	r.mu.Lock()
	delete(r.subs, subID)
	r.mu.Unlock()
}
