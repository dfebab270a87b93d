// Package id provides centralized ID generation for the bridge.
//
// Call ids are ULIDs: a 48-bit millisecond timestamp followed by 80 bits of
// cryptographically secure entropy. The timestamp keeps ids from different
// moments apart and the entropy keeps concurrent ids apart, so an id is never
// reused while a call carrying it could still be outstanding.
//
// Connection and subscription ids only need to be unique within one process
// and are plain UUIDv4 strings.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// CallID correlates one injected call with its sandbox callback
type CallID string

// SubscriptionID identifies one relay subscriber
type SubscriptionID string

// ConnectionID identifies one WebSocket connection
type ConnectionID string

// RequestID identifies an API request
type RequestID string

const (
	CallPrefix    = "call"
	RequestPrefix = "req"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for tests that need deterministic ids.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// NewCallID generates a fresh correlation id for one bridged call
func NewCallID() CallID {
	return CallID(Default().GenerateWithPrefix(CallPrefix))
}

// NewRequestID generates a new request ID
func NewRequestID() RequestID {
	return RequestID(Default().GenerateWithPrefix(RequestPrefix))
}

// NewSubscriptionID generates a relay subscription id
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.NewString())
}

// NewConnectionID generates a WebSocket connection id
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

func (id CallID) String() string         { return string(id) }
func (id SubscriptionID) String() string { return string(id) }
func (id ConnectionID) String() string   { return string(id) }
func (id RequestID) String() string      { return string(id) }

// ============================================================================
// Validation
// ============================================================================

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// IsCallID reports whether s has the shape of a generated call id
func IsCallID(s string) bool {
	prefix, rest, ok := strings.Cut(s, "_")
	return ok && prefix == CallPrefix && IsValid(rest)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
