package correlation

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// ErrDuplicateID is returned when a call id is registered while a call with
// the same id is still pending.
var ErrDuplicateID = errors.New("call id already pending")

// Waiter is the receiving half of one pending call
type Waiter struct {
	id id.CallID
	ch <-chan Outcome
}

// ID returns the call id the waiter was registered under
func (w *Waiter) ID() id.CallID {
	return w.id
}

// Done delivers the outcome exactly once, when the call is resolved.
// An evicted call never delivers.
func (w *Waiter) Done() <-chan Outcome {
	return w.ch
}

// Stats is a point-in-time view of registry activity
type Stats struct {
	Pending  int    `json:"pending"`
	Resolved uint64 `json:"resolved"`
	Evicted  uint64 `json:"evicted"`
	Late     uint64 `json:"late"`
}

// Registry maps call ids to one-shot completion slots.
// Every registered id leaves the registry exactly once, through either
// Resolve or Evict; whichever runs second is a no-op.
type Registry struct {
	mu      sync.Mutex
	pending map[id.CallID]chan Outcome

	resolved atomic.Uint64
	evicted  atomic.Uint64
	late     atomic.Uint64
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[id.CallID]chan Outcome),
	}
}

// Register inserts a pending call and returns its waiter
func (r *Registry) Register(callID id.CallID) (*Waiter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[callID]; exists {
		return nil, ErrDuplicateID
	}

	// Buffered so Resolve never blocks on a waiter that stopped listening.
	ch := make(chan Outcome, 1)
	r.pending[callID] = ch

	return &Waiter{id: callID, ch: ch}, nil
}

// Resolve completes the pending call with the given outcome.
// It returns false when no call with that id is pending, which happens
// routinely when a callback arrives after its call timed out.
func (r *Registry) Resolve(callID id.CallID, outcome Outcome) bool {
	ch, ok := r.take(callID)
	if !ok {
		r.late.Add(1)
		return false
	}

	ch <- outcome
	r.resolved.Add(1)
	return true
}

// Evict removes the pending call without completing it
func (r *Registry) Evict(callID id.CallID) bool {
	if _, ok := r.take(callID); !ok {
		return false
	}
	r.evicted.Add(1)
	return true
}

// Len returns the number of pending calls
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Stats returns registry counters
func (r *Registry) Stats() Stats {
	return Stats{
		Pending:  r.Len(),
		Resolved: r.resolved.Load(),
		Evicted:  r.evicted.Load(),
		Late:     r.late.Load(),
	}
}

func (r *Registry) take(callID id.CallID) (chan Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.pending[callID]
	if ok {
		delete(r.pending, callID)
	}
	return ch, ok
}
