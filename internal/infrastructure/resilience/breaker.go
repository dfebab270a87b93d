package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrOpen is returned while the breaker sheds calls
	ErrOpen = errors.New("breaker is open")

	// ErrProbing is returned while a half-open probe is still running
	ErrProbing = errors.New("breaker is probing")
)

// State of a breaker
type State int

const (
	Closed State = iota
	HalfOpen
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case HalfOpen:
		return "half-open"
	case Open:
		return "open"
	}
	return "unknown"
}

// Config tunes a breaker
type Config struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold int

	// Cooldown is how long the breaker stays open before one probe call
	// is let through
	Cooldown time.Duration

	// OnChange is called after every transition, outside the lock
	OnChange func(name string, from, to State)
}

// DefaultConfig trips after five failures and probes every five seconds
func DefaultConfig() Config {
	return Config{Threshold: 5, Cooldown: 5 * time.Second}
}

// Status is a point-in-time view of a breaker
type Status struct {
	State    State
	Failures int
	Shed     uint64
	OpenedAt time.Time
}

// Breaker stops calling a failing dependency until it has had time to
// recover. While open every call is shed; after Cooldown a single probe
// decides between closing and opening again.
type Breaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	shed     uint64
	openedAt time.Time
}

// New creates a closed breaker
func New(name string, cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state. An open breaker whose cooldown has
// passed still reports open until a call probes it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Status returns the current state and counters
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{State: b.state, Failures: b.failures, Shed: b.shed, OpenedAt: b.openedAt}
}

// Do runs fn unless the breaker sheds it. fn's error counts as a failure.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		// a panicking call counts as failed
		b.record(probe, ok)
	}()

	err = fn()
	ok = err == nil
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	switch b.state {
	case Closed:
		b.mu.Unlock()
		return false, nil
	case HalfOpen:
		b.shed++
		b.mu.Unlock()
		return false, ErrProbing
	}

	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		b.shed++
		b.mu.Unlock()
		return false, ErrOpen
	}
	b.state = HalfOpen
	b.mu.Unlock()

	b.changed(Open, HalfOpen)
	return true, nil
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case ok:
		b.failures = 0
		if probe {
			b.state = Closed
		}
	case probe:
		b.state = Open
		b.openedAt = b.now()
	default:
		b.failures++
		if b.state == Closed && b.failures >= b.cfg.Threshold {
			b.state = Open
			b.openedAt = b.now()
		}
	}
	to := b.state
	b.mu.Unlock()

	if from != to {
		b.changed(from, to)
	}
}

func (b *Breaker) changed(from, to State) {
	if b.cfg.OnChange != nil {
		b.cfg.OnChange(b.name, from, to)
	}
}
