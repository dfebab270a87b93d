package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// HeaderName carries the token on every gated request
	HeaderName = "X-Debug-Bridge-Token"

	// TokenBytes is the amount of randomness in a generated token
	TokenBytes = 16
)

// ErrUnauthorized is the only failure the gate reports
var ErrUnauthorized = errors.New("unauthorized")

// GenerateToken returns 128 random bits as 32 lowercase hex characters
func GenerateToken() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Gate checks presented tokens against the process token.
//
// Both sides are hashed to fixed-size digests before a constant-time
// comparison, so neither the position of the first differing byte nor the
// length of the presented token shows up in timing.
type Gate struct {
	token  string
	digest [blake2b.Size256]byte
}

// NewGate creates a gate for token. An empty token is rejected since it
// would make every request with a missing header pass.
func NewGate(token string) (*Gate, error) {
	if token == "" {
		return nil, errors.New("auth token is empty")
	}
	return &Gate{
		token:  token,
		digest: blake2b.Sum256([]byte(token)),
	}, nil
}

// NewGeneratedGate creates a gate with a fresh random token
func NewGeneratedGate() (*Gate, error) {
	token, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	return NewGate(token)
}

// Token returns the expected token, for discovery files and startup logs
func (g *Gate) Token() string {
	return g.token
}

// Check returns nil when provided matches the token, ErrUnauthorized
// otherwise. The error never says why.
func (g *Gate) Check(provided string) error {
	if provided == "" {
		return ErrUnauthorized
	}
	digest := blake2b.Sum256([]byte(provided))
	if subtle.ConstantTimeCompare(digest[:], g.digest[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Allow reports whether provided passes Check
func (g *Gate) Allow(provided string) bool {
	return g.Check(provided) == nil
}
