package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/server"
)

const token = "client-token"

const page = `<!DOCTYPE html>
<html><head><title>Form</title></head>
<body>
<input id="q" aria-label="Query">
<button id="go" onclick="window.went = document.getElementById('q').value">Go</button>
</body></html>`

func newBridge(t *testing.T) *Client {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.Token = token
	cfg.Server.DiscoveryDir = filepath.Join(t.TempDir(), "apps")
	cfg.Logging.OutputPaths = []string{os.DevNull}
	cfg.Host.Headless.Dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Host.Headless.Dir, "index.html"), []byte(page), 0o600))

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return New(Options{BaseURL: ts.URL, Token: token, Timeout: 5 * time.Second, Retries: 1})
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		version string
		ok      bool
	}{
		{"0.3.0", true},
		{"0.9.2", true},
		{"0.2.9", false},
		{"1.0.0", false},
		{"dev", true},
	}
	for _, tt := range tests {
		err := CheckVersion(tt.version)
		if tt.ok {
			assert.NoError(t, err, tt.version)
		} else {
			assert.ErrorIs(t, err, ErrIncompatible, tt.version)
		}
	}
}

func TestHealth(t *testing.T) {
	c := newBridge(t)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.NoError(t, CheckVersion(h.Version))
}

func TestCalls(t *testing.T) {
	c := newBridge(t)
	ctx := context.Background()

	outcome, err := c.Eval(ctx, Target{}, "1 + 2")
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.JSONEq(t, `3`, string(outcome.Value))

	outcome, err = c.Eval(ctx, Target{}, "throw new TypeError('nope')")
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	require.NotNil(t, outcome.Error)
	assert.Contains(t, *outcome.Error, "nope")

	_, err = c.Eval(ctx, Target{Window: "missing"}, "1")
	require.Error(t, err)
	assert.True(t, IsCategory(err, "window_not_found"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)

	_, err = c.Eval(ctx, Target{Timeout: 50 * time.Millisecond}, "return await new Promise(() => {})")
	assert.True(t, IsCategory(err, "timeout"), "got %v", err)

	_, err = c.Fill(ctx, Target{}, "#q", "hello")
	require.NoError(t, err)

	snap, err := c.Snapshot(ctx, "", true)
	require.NoError(t, err)
	require.NotEmpty(t, snap.Refs())

	_, err = c.Click(ctx, Target{}, "#go")
	require.NoError(t, err)
	outcome, err = c.Eval(ctx, Target{}, "window.went")
	require.NoError(t, err)
	assert.JSONEq(t, `"hello"`, string(outcome.Value))

	_, _, err = c.Screenshot(ctx, "")
	assert.True(t, IsCategory(err, "sandbox_failure"), "got %v", err)
}

func TestHostCapabilities(t *testing.T) {
	c := newBridge(t)
	ctx := context.Background()

	windows, err := c.Windows(ctx)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "main", windows[0].Label)

	commands, err := c.Commands(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, commands)

	_, err = c.Invoke(ctx, Target{}, "set_state", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	state, err := c.State(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(state))

	cfg, err := c.AppConfig(ctx)
	require.NoError(t, err)
	assert.True(t, json.Valid(cfg))

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(stats), "pending")
}

func TestEventsAndStreams(t *testing.T) {
	c := newBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Stream(ctx, StreamEvents, url.Values{"name": {"saved"}}, func(data []byte) error {
			frames <- string(data)
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		_ = c.Emit(context.Background(), "saved", json.RawMessage(`{"id":1}`))
		select {
		case got := <-frames:
			return assert.JSONEq(t, `{"id":1}`, got)
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 20*time.Millisecond)

	names, err := c.EventNames(context.Background())
	require.NoError(t, err)
	assert.Contains(t, names, "saved")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStreamErrors(t *testing.T) {
	c := newBridge(t)

	err := c.Stream(context.Background(), StreamLogs, url.Values{"level": {"loud"}}, func([]byte) error { return nil })
	assert.True(t, IsCategory(err, "malformed_input"), "got %v", err)

	bad := New(Options{BaseURL: c.BaseURL(), Token: "wrong"})
	err = bad.Stream(context.Background(), StreamConsole, nil, func([]byte) error { return nil })
	assert.True(t, IsCategory(err, "unauthorized"), "got %v", err)

	_, err = bad.Windows(context.Background())
	assert.True(t, IsCategory(err, "unauthorized"), "got %v", err)
}
