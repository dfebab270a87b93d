package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/api/middleware"
	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/host/headless"
	"github.com/GriffinCanCode/debugbridge/internal/host/remote"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
)

const testToken = "ws-token"

type fixture struct {
	url    string
	bridge *bridge.Bridge
	relay  *relay.Relay
}

func newFixture(t *testing.T, h host.Host, rh *remote.Host) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := relay.New(relay.DefaultConfig(), nil)
	t.Cleanup(r.Close)

	b := bridge.New(h, r, framer.New(framer.DefaultConfig()), bridge.DefaultConfig())
	t.Cleanup(b.Close)

	gate, err := auth.NewGate(testToken)
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.Auth(gate))
	handler := NewHandler(b, r).WithMetrics(monitoring.NewMetrics())
	if rh != nil {
		handler.WithRemote(rh)
	}
	handler.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &fixture{
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
		bridge: b,
		relay:  r,
	}
}

func newHeadless(t *testing.T) *headless.Host {
	t.Helper()
	h := headless.New(headless.DefaultConfig())
	require.NoError(t, h.Open(headless.BlankPage()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func (f *fixture) dial(t *testing.T, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	header.Set(auth.HeaderName, testToken)
	conn, resp, err := websocket.DefaultDialer.Dial(f.url+path, header)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestConsoleAndErrorStreams(t *testing.T) {
	f := newFixture(t, newHeadless(t), nil)

	console, _, err := f.dial(t, "/console")
	require.NoError(t, err)
	errs, _, err := f.dial(t, "/errors")
	require.NoError(t, err)

	f.bridge.Console("info", "hello")
	f.bridge.Console("error", "boom")

	assert.JSONEq(t, `{"level":"info","message":"hello"}`, read(t, console))
	assert.JSONEq(t, `{"level":"error","message":"boom"}`, read(t, console))
	assert.JSONEq(t, `{"level":"error","message":"boom"}`, read(t, errs))
}

func TestLogsStreamFiltersByLevel(t *testing.T) {
	f := newFixture(t, newHeadless(t), nil)

	conn, _, err := f.dial(t, "/logs?level=warn")
	require.NoError(t, err)

	require.NoError(t, f.relay.Publish(relay.StreamLogs, "info", logging.Entry{Level: "info", Message: "quiet"}))
	require.NoError(t, f.relay.Publish(relay.StreamLogs, "error", logging.Entry{Level: "error", Message: "loud"}))

	var entry logging.Entry
	require.NoError(t, json.Unmarshal([]byte(read(t, conn)), &entry))
	assert.Equal(t, "loud", entry.Message)

	_, resp, err := f.dial(t, "/logs?level=shouting")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, newHeadless(t), nil)

	_, resp, err := f.dial(t, "/events/listen")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := f.dial(t, "/events/listen?name=saved")
	require.NoError(t, err)
	assert.Equal(t, 1, f.bridge.Listeners()["saved"])

	require.NoError(t, f.bridge.EmitEvent("other", json.RawMessage(`1`)))
	require.NoError(t, f.bridge.EmitEvent("saved", json.RawMessage(`{"id":9}`)))
	assert.JSONEq(t, `{"id":9}`, read(t, conn))

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, ok := f.bridge.Listeners()["saved"]
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamsRequireToken(t *testing.T) {
	f := newFixture(t, newHeadless(t), nil)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"/console", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+"/console?token="+testToken, nil)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestRelayShutdownClosesStreams(t *testing.T) {
	f := newFixture(t, newHeadless(t), nil)

	conn, _, err := f.dial(t, "/console")
	require.NoError(t, err)

	f.relay.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHostChannel(t *testing.T) {
	headlessOnly := newFixture(t, newHeadless(t), nil)
	_, resp, err := headlessOnly.dial(t, "/host")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	rh := remote.New("")
	t.Cleanup(rh.Close)
	f := newFixture(t, rh, rh)

	app, _, err := f.dial(t, "/host")
	require.NoError(t, err)
	require.Eventually(t, rh.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, app.WriteJSON(remote.Frame{
		Type:    remote.FrameWindows,
		Windows: []host.WindowInfo{{Label: "main", Title: "Remote"}},
	}))
	require.Eventually(t, func() bool {
		windows, err := f.bridge.ListWindows()
		return err == nil && len(windows) == 1 && windows[0].Title == "Remote"
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bridge.SubscribeConsole(ctx, false)
	require.NoError(t, err)
	require.NoError(t, app.WriteJSON(remote.Frame{Type: remote.FrameConsole, Level: "warn", Message: "from app"}))
	select {
	case msg := <-sub.C():
		assert.Equal(t, "warn", msg.Name)
	case <-time.After(2 * time.Second):
		t.Fatal("console frame not relayed")
	}
}
