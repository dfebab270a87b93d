package relay

import (
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

type deliveryResult int

const (
	delivered deliveryResult = iota
	deliveredWithDrop
	deliveryOverflow
	deliverySkipped
)

// Subscription is one subscriber's bounded queue
type Subscription struct {
	id     id.SubscriptionID
	stream string
	filter Filter
	relay  *Relay
	limit  int

	mu      sync.Mutex
	ch      chan Message
	done    chan struct{}
	closed  bool
	err     error
	overrun int

	dropped atomic.Uint64
}

// ID returns the subscription id
func (s *Subscription) ID() id.SubscriptionID {
	return s.id
}

// Stream returns the subscribed stream name
func (s *Subscription) Stream() string {
	return s.stream
}

// C delivers messages in publish order. It is closed when the subscription
// ends; Err then tells why.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while active or after a plain Close, ErrSlowSubscriber
// after a forced disconnect, ErrClosed after relay shutdown
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Dropped returns how many messages were discarded for this subscriber
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeWith(nil)
}

func (s *Subscription) matches(msg Message) bool {
	if s.stream != StreamAll && s.stream != msg.Stream {
		return false
	}
	return s.filter == nil || s.filter(msg)
}

// deliver enqueues msg without blocking, discarding the oldest queued
// message when the queue is full
func (s *Subscription) deliver(msg Message) deliveryResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return deliverySkipped
	}

	select {
	case s.ch <- msg:
		s.overrun = 0
		return delivered
	default:
	}

	s.overrun++
	if s.overrun >= s.limit {
		return deliveryOverflow
	}

	// Only deliver sends on ch and it holds mu, so after taking one
	// message out there is room for this one.
	select {
	case <-s.ch:
		s.ch <- msg
		s.dropped.Add(1)
		return deliveredWithDrop
	default:
		// The reader drained the queue in the meantime.
		s.ch <- msg
		s.overrun = 0
		return delivered
	}
}

func (s *Subscription) closeWith(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
	close(s.done)
	s.mu.Unlock()

	s.relay.remove(s.id)
}
