package logging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type published struct {
	stream string
	name   string
	entry  Entry
}

type recorder struct {
	mu   sync.Mutex
	got  []published
	fail bool
}

func (r *recorder) Publish(stream, name string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("closed")
	}
	r.got = append(r.got, published{stream: stream, name: name, entry: payload.(Entry)})
	return nil
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestRelayCoreReceivesEntries(t *testing.T) {
	rec := &recorder{}
	logger, err := New(Config{Level: "debug", OutputPaths: []string{"/dev/null"}}, NewRelayCore(rec, "logs", zapcore.InfoLevel))
	require.NoError(t, err)

	named := logger.Named("bridge").With(zap.String("window", "main"))
	named.Debug("not published")
	named.Info("Call completed", zap.Int("n", 3))
	named.Error("Call failed")

	require.Len(t, rec.got, 2)
	first := rec.got[0]
	assert.Equal(t, "logs", first.stream)
	assert.Equal(t, "info", first.name)
	assert.Equal(t, "Call completed", first.entry.Message)
	assert.Equal(t, "bridge", first.entry.Logger)
	assert.Equal(t, "main", first.entry.Fields["window"])
	assert.EqualValues(t, 3, first.entry.Fields["n"])
	assert.NotEmpty(t, first.entry.Caller)
	assert.Equal(t, "error", rec.got[1].name)
}

func TestSetLevel(t *testing.T) {
	rec := &recorder{}
	logger, err := New(Config{Level: "info", OutputPaths: []string{"/dev/null"}}, NewRelayCore(rec, "logs", zapcore.DebugLevel))
	require.NoError(t, err)

	logger.Debug("hidden")
	require.NoError(t, logger.SetLevel("debug"))
	logger.Debug("shown")
	assert.Error(t, logger.SetLevel("nope"))

	require.Len(t, rec.got, 1)
	assert.Equal(t, "shown", rec.got[0].entry.Message)
}

func TestAtLeast(t *testing.T) {
	tests := []struct {
		name string
		min  zapcore.Level
		want bool
	}{
		{"debug", zapcore.InfoLevel, false},
		{"info", zapcore.InfoLevel, true},
		{"error", zapcore.WarnLevel, true},
		{"custom", zapcore.ErrorLevel, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, AtLeast(tt.name, tt.min), tt.name)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()
	logger.Info("discarded")
	assert.NoError(t, logger.SetLevel("warn"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"INFO", zapcore.InfoLevel, false},
		{" warn ", zapcore.WarnLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"trace", zapcore.DebugLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDevelopmentLogger(t *testing.T) {
	logger, err := New(Config{Level: "debug", Development: true, OutputPaths: []string{"/dev/null"}})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, logger.Level())
	logger.Debug("console encoded")
}
