package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

var callIDPattern = regexp.MustCompile(`id: "(call_[0-9A-Za-z]+)"`)

// fakeApp plays the application side of the host channel
type fakeApp struct {
	conn *websocket.Conn

	mu     sync.Mutex
	frames []Frame
}

func startHost(t *testing.T, h *Host) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = h.Serve(r.Context(), conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialApp(t *testing.T, url string, reply func(app *fakeApp, f Frame)) *fakeApp {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	app := &fakeApp{conn: conn}
	go func() {
		for {
			var f Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			app.mu.Lock()
			app.frames = append(app.frames, f)
			app.mu.Unlock()
			if reply != nil {
				reply(app, f)
			}
		}
	}()
	return app
}

func (a *fakeApp) send(t *testing.T, f Frame) {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NoError(t, a.conn.WriteJSON(f))
}

func (a *fakeApp) received(typ string) []Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Frame
	for _, f := range a.frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// answer replies to framed evals with a fixed value and ignores the rest
func answer(value string) func(app *fakeApp, f Frame) {
	return func(app *fakeApp, f Frame) {
		if f.Type != FrameEval {
			return
		}
		m := callIDPattern.FindStringSubmatch(f.Code)
		if m == nil {
			return
		}
		app.mu.Lock()
		defer app.mu.Unlock()
		_ = app.conn.WriteJSON(Frame{
			Type:    FrameEvalCallback,
			ID:      id.CallID(m[1]),
			Success: true,
			Value:   json.RawMessage(value),
		})
	}
}

func newRemoteBridge(t *testing.T) (*Host, *bridge.Bridge, *relay.Relay) {
	t.Helper()
	f := framer.New(framer.DefaultConfig())
	h := New(f.ConsoleHook())
	t.Cleanup(h.Close)

	r := relay.New(relay.DefaultConfig(), nil)
	t.Cleanup(r.Close)

	b := bridge.New(h, r, f, bridge.DefaultConfig())
	t.Cleanup(b.Close)
	return h, b, r
}

func TestEvalWithoutApplication(t *testing.T) {
	h, b, _ := newRemoteBridge(t)

	assert.ErrorIs(t, h.Eval("main", "1"), host.ErrNotConnected)

	_, err := b.Call(context.Background(), "main", "1", time.Second)
	assert.ErrorIs(t, err, bridge.ErrInjectionFailed)
	assert.Equal(t, 0, b.Pending())

	_, err = b.ListWindows()
	assert.ErrorIs(t, err, bridge.ErrInjectionFailed)
}

func TestCallRoundTrip(t *testing.T) {
	h, b, _ := newRemoteBridge(t)
	dialApp(t, startHost(t, h), answer(`"Demo"`))
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	outcome, err := b.Call(context.Background(), "main", "document.title", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.JSONEq(t, `"Demo"`, string(outcome.Value))
}

func TestWindowsInstallConsoleHook(t *testing.T) {
	h, b, _ := newRemoteBridge(t)
	app := dialApp(t, startHost(t, h), nil)
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	windows := []host.WindowInfo{{Label: "main", Title: "Demo", Visible: true, Focused: true}}
	app.send(t, Frame{Type: FrameWindows, Windows: windows})
	app.send(t, Frame{Type: FrameWindows, Windows: windows})

	require.Eventually(t, func() bool {
		got, err := b.ListWindows()
		return err == nil && len(got) == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return len(app.received(FrameEval)) == 1 }, time.Second, 5*time.Millisecond)
	hook := app.received(FrameEval)[0]
	assert.Equal(t, "main", hook.Window)
	assert.Contains(t, hook.Code, framer.DefaultConsoleCommand)

	// Windows the application did not report are rejected up front
	_, err := b.Call(context.Background(), "settings", "1", time.Second)
	assert.ErrorIs(t, err, bridge.ErrWindowNotFound)
}

func TestConsoleFramesReachRelay(t *testing.T) {
	h, b, _ := newRemoteBridge(t)
	app := dialApp(t, startHost(t, h), nil)
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := b.SubscribeConsole(ctx, true)
	require.NoError(t, err)

	app.send(t, Frame{Type: FrameConsole, Level: "log", Message: "ignored"})
	app.send(t, Frame{Type: FrameConsole, Level: "error", Message: "boom"})

	select {
	case msg := <-sub.C():
		var line bridge.ConsoleLine
		require.NoError(t, json.Unmarshal(msg.Payload, &line))
		assert.Equal(t, "boom", line.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no error line")
	}
}

func TestEventForwarding(t *testing.T) {
	h, b, _ := newRemoteBridge(t)
	app := dialApp(t, startHost(t, h), nil)
	require.Eventually(t, h.Connected, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.SubscribeEvents(ctx, "saved")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(app.received(FrameListen)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "saved", app.received(FrameListen)[0].Name)

	app.send(t, Frame{Type: FrameEvent, Name: "saved", Payload: json.RawMessage(`{"id":7}`)})
	select {
	case msg := <-sub.C():
		assert.JSONEq(t, `{"id":7}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
	}

	require.NoError(t, b.EmitEvent("reload", json.RawMessage(`true`)))
	require.Eventually(t, func() bool { return len(app.received(FrameEmit)) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "reload", app.received(FrameEmit)[0].Name)

	cancel()
	require.Eventually(t, func() bool { return len(app.received(FrameUnlisten)) == 1 }, time.Second, 5*time.Millisecond)
}

func TestReconnectReplaysListeners(t *testing.T) {
	h, b, _ := newRemoteBridge(t)
	url := startHost(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := b.SubscribeEvents(ctx, "tick")
	require.NoError(t, err)

	first := dialApp(t, url, nil)
	require.Eventually(t, func() bool { return len(first.received(FrameListen)) == 1 }, time.Second, 5*time.Millisecond)

	second := dialApp(t, url, answer(`1`))
	require.Eventually(t, func() bool { return len(second.received(FrameListen)) == 1 }, time.Second, 5*time.Millisecond)

	outcome, err := b.Call(context.Background(), "main", "1", 2*time.Second)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Empty(t, first.received(FrameEval))
}
