package auth

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	hexToken := regexp.MustCompile(`^[0-9a-f]{32}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Regexp(t, hexToken, token)
		assert.False(t, seen[token], "duplicate token")
		seen[token] = true
	}
}

func TestGateCheck(t *testing.T) {
	gate, err := NewGate("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	tests := []struct {
		name     string
		provided string
		allow    bool
	}{
		{"exact", "0123456789abcdef0123456789abcdef", true},
		{"missing", "", false},
		{"wrong last byte", "0123456789abcdef0123456789abcdee", false},
		{"prefix", "0123456789abcdef", false},
		{"longer", "0123456789abcdef0123456789abcdef0", false},
		{"case differs", "0123456789ABCDEF0123456789ABCDEF", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.provided)
			if tt.allow {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnauthorized)
				assert.Equal(t, "unauthorized", err.Error())
			}
			assert.Equal(t, tt.allow, gate.Allow(tt.provided))
		})
	}
}

func TestNewGate(t *testing.T) {
	_, err := NewGate("")
	assert.Error(t, err)

	gate, err := NewGeneratedGate()
	require.NoError(t, err)
	assert.Len(t, gate.Token(), 32)
	assert.True(t, gate.Allow(gate.Token()))
}
