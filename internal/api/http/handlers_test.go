package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/api/middleware"
	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host/headless"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
)

const testToken = "test-token"

const page = `<!DOCTYPE html>
<html>
<head><title>Demo</title></head>
<body>
  <input id="new" placeholder="What next?">
  <button id="add" onclick="add()">Add</button>
  <ul id="list"></ul>
  <script>
    function add() {
      const li = document.createElement('li');
      li.textContent = document.getElementById('new').value;
      document.getElementById('list').appendChild(li);
    }
  </script>
</body>
</html>`

type fixture struct {
	router *gin.Engine
	bridge *bridge.Bridge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := headless.New(headless.DefaultConfig())
	require.NoError(t, h.Open(headless.Page{Label: "main", URL: "file:///index.html", HTML: []byte(page)}))
	t.Cleanup(func() { _ = h.Close() })

	metrics := monitoring.NewMetrics()
	r := relay.New(relay.DefaultConfig(), metrics)
	t.Cleanup(r.Close)

	b := bridge.New(h, r, framer.New(framer.DefaultConfig()), bridge.DefaultConfig()).WithMetrics(metrics)
	t.Cleanup(b.Close)

	gate, err := auth.NewGate(testToken)
	require.NoError(t, err)

	router := gin.New()
	router.Use(middleware.Auth(gate, "/health"))
	NewHandlers(b, r, "1.2.3").
		WithMetrics(metrics).
		WithStatsSource("mirror", func() any { return gin.H{"published": 0} }).
		Register(router)

	return &fixture{router: router, bridge: b}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(auth.HeaderName, testToken)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.NotEmpty(t, body.Detail)
	return body.Error
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, w.Body.String())

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/windows", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", errorOf(t, w))
}

func TestEval(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		body     string
		status   int
		category string
		want     string
	}{
		{
			name:   "value",
			body:   `{"code":"document.title"}`,
			status: http.StatusOK,
			want:   `{"success":true,"value":"Demo","error":null}`,
		},
		{
			name:   "sandbox failure is still 200",
			body:   `{"code":"throw new Error('boom')"}`,
			status: http.StatusOK,
			want:   `{"success":false,"value":null,"error":"Error: boom"}`,
		},
		{name: "missing code", body: `{}`, status: http.StatusBadRequest, category: "malformed_input"},
		{name: "not json", body: `code=1`, status: http.StatusBadRequest, category: "malformed_input"},
		{name: "negative timeout", body: `{"code":"1","timeout_ms":-1}`, status: http.StatusBadRequest, category: "malformed_input"},
		{name: "unknown window", body: `{"code":"1","window":"nope"}`, status: http.StatusNotFound, category: "window_not_found"},
		{name: "syntax error", body: `{"code":"function ("}`, status: http.StatusBadGateway, category: "injection_failed"},
		{
			name:     "timeout",
			body:     `{"code":"return await new Promise(() => {})","timeout_ms":50}`,
			status:   http.StatusGatewayTimeout,
			category: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/eval", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.category != "" {
				assert.Equal(t, tt.category, errorOf(t, w))
				return
			}
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}

	assert.Equal(t, 0, f.bridge.Pending())
}

func TestFillClickSnapshot(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodPost, "/fill", `{"selector":"#new","text":"milk"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"success":true`)

	w = f.do(http.MethodPost, "/click", `{"selector":"xpath=//button[@id='add']"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodPost, "/eval", `{"code":"document.querySelector('#list').textContent"}`)
	assert.JSONEq(t, `{"success":true,"value":"milk","error":null}`, w.Body.String())

	w = f.do(http.MethodGet, "/snapshot?interactive=true", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap struct {
		Title    string `json:"title"`
		Elements []struct {
			Ref  string `json:"ref"`
			Role string `json:"role"`
		} `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "Demo", snap.Title)
	require.NotEmpty(t, snap.Elements)

	w = f.do(http.MethodGet, "/snapshot?interactive=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/click", `{"selector":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScreenshotUnsupportedByHeadlessHost(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/screenshot", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "sandbox_failure", errorOf(t, w))
}

func TestHostCapabilities(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/windows", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"label":"main"`)

	w = f.do(http.MethodGet, "/commands", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), headless.GetStateCommand)

	w = f.do(http.MethodPost, "/invoke", `{"command":"set_state","args":{"todos":1}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = f.do(http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"todos":1}`, w.Body.String())

	w = f.do(http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, json.Valid(w.Body.Bytes()))
}

func TestEvents(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bridge.SubscribeEvents(ctx, "saved")
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/events/emit", `{"name":"saved","payload":{"id":3}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	select {
	case msg := <-sub.C():
		assert.JSONEq(t, `{"id":3}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	w = f.do(http.MethodPost, "/events/emit", `{"payload":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/events/list", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"saved"`)
}

func TestPushConsole(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := f.bridge.SubscribeConsole(ctx, true)
	require.NoError(t, err)

	w := f.do(http.MethodPost, "/console", `{"source":"app","entries":[{"level":"info","message":"hi"},{"level":"ERROR","message":"bad"},{"level":"error"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"entries_accepted":2`)

	select {
	case msg := <-sub.C():
		var line bridge.ConsoleLine
		require.NoError(t, json.Unmarshal(msg.Payload, &line))
		assert.Equal(t, bridge.ConsoleLine{Level: "error", Message: "bad"}, line)
	case <-time.After(2 * time.Second):
		t.Fatal("console line not delivered")
	}
}

func TestMetricsAndStats(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/eval", `{"code":"1"}`)

	w := f.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "debugbridge_calls_total")

	w = f.do(http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	for _, key := range []string{"pending", "registry", "relay", "latency", "mirror"} {
		assert.Contains(t, stats, key)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[bridge.Category]int{
		bridge.CategoryMalformedInput:  http.StatusBadRequest,
		bridge.CategoryUnauthorized:    http.StatusUnauthorized,
		bridge.CategoryWindowNotFound:  http.StatusNotFound,
		bridge.CategoryInjectionFailed: http.StatusBadGateway,
		bridge.CategorySandboxFailure:  http.StatusBadGateway,
		bridge.CategoryTimeout:         http.StatusGatewayTimeout,
		bridge.CategoryNotSupported:    http.StatusNotImplemented,
		bridge.CategoryInternal:        http.StatusInternalServerError,
	}
	for category, status := range tests {
		assert.Equal(t, status, StatusFor(category), string(category))
	}
}
