package headless

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
)

const todoPage = `<!DOCTYPE html>
<html>
<head><title>Demo</title></head>
<body>
  <h1>Todo</h1>
  <input id="new" name="todo" placeholder="What next?">
  <button id="add" onclick="add()">Add</button>
  <ul id="list"></ul>
  <div id="plain"><span>Just text</span></div>
  <button id="scripted">Scripted</button>
  <label><input type="checkbox" id="done"> Done</label>
  <div hidden><button>Hidden</button></div>
  <div style="display: none"><a href="#">Gone</a></div>
  <script>
    window.clicks = 0;
    function add() {
      clicks++;
      const li = document.createElement('li');
      li.textContent = document.getElementById('new').value;
      document.getElementById('list').appendChild(li);
    }
    document.getElementById('scripted').onclick = () => { window.scripted = true; };
    __debugBridge.listen('ping', (p) => __debugBridge.emit('pong', { n: p.n + 1 }));
  </script>
</body>
</html>`

func newTestHost(t *testing.T, cfg Config) (*Host, *bridge.Bridge) {
	t.Helper()

	h := New(cfg)
	require.NoError(t, h.Open(Page{Label: "main", URL: "file:///index.html", HTML: []byte(todoPage)}))
	t.Cleanup(func() { _ = h.Close() })

	r := relay.New(relay.DefaultConfig(), nil)
	t.Cleanup(r.Close)

	b := bridge.New(h, r, framer.New(framer.DefaultConfig()), bridge.DefaultConfig())
	t.Cleanup(b.Close)
	return h, b
}

func call(t *testing.T, b *bridge.Bridge, code string) json.RawMessage {
	t.Helper()
	outcome, err := b.Call(context.Background(), "main", code, 2*time.Second)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.ErrorText())
	return outcome.Value
}

func findText(nodes []snapshot.Node, text string) (snapshot.Node, bool) {
	for _, n := range nodes {
		if n.Text == text {
			return n, true
		}
		if found, ok := findText(n.Children, text); ok {
			return found, true
		}
	}
	return snapshot.Node{}, false
}

func findName(nodes []snapshot.Node, name string) (snapshot.Node, bool) {
	for _, n := range nodes {
		if n.Name == name {
			return n, true
		}
		if found, ok := findName(n.Children, name); ok {
			return found, true
		}
	}
	return snapshot.Node{}, false
}

func TestEvalThroughBridge(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())

	tests := []struct {
		name    string
		code    string
		success bool
		value   string
		errText string
	}{
		{name: "expression", code: "document.title", success: true, value: `"Demo"`},
		{name: "arithmetic", code: "1 + 1", success: true, value: `2`},
		{name: "undefined is null", code: "undefined", success: true, value: `null`},
		{name: "object", code: "({a: [1, 2], b: 'x'})", success: true, value: `{"a":[1,2],"b":"x"}`},
		{name: "awaited timer", code: "return await new Promise(r => setTimeout(() => r(42), 10));", success: true, value: `42`},
		{name: "thrown error", code: "throw new Error('x')", success: false, value: `null`, errText: "Error: x"},
		{name: "rejected promise", code: "return Promise.reject(new TypeError('nope'));", success: false, value: `null`, errText: "TypeError: nope"},
		{name: "bad selector", code: "document.querySelector('[[')", success: false, value: `null`, errText: "SyntaxError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := b.Call(context.Background(), "main", tt.code, 2*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.success, outcome.Success)
			assert.JSONEq(t, tt.value, string(outcome.Value))
			assert.Contains(t, outcome.ErrorText(), tt.errText)
		})
	}
}

func TestEvalInjectionFailures(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())

	_, err := b.Call(context.Background(), "settings", "1", time.Second)
	assert.ErrorIs(t, err, bridge.ErrWindowNotFound)

	_, err = b.Call(context.Background(), "main", "function (", time.Second)
	assert.ErrorIs(t, err, bridge.ErrInjectionFailed)
	assert.Equal(t, 0, b.Pending())
}

func TestSnapshotAndClickRef(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())
	ctx := context.Background()

	resp, err := b.Snapshot(ctx, "main", false)
	require.NoError(t, err)
	assert.Equal(t, "Demo", resp.Title)
	assert.Equal(t, "file:///index.html", resp.URL)

	add, ok := findText(resp.Elements, "Add")
	require.True(t, ok)
	assert.True(t, add.Interactive)
	require.NotEmpty(t, add.Ref)

	scripted, ok := findText(resp.Elements, "Scripted")
	require.True(t, ok, "script-assigned onclick makes the button interactive")
	assert.NotEmpty(t, scripted.Ref)

	_, ok = findText(resp.Elements, "Hidden")
	assert.False(t, ok)
	_, ok = findText(resp.Elements, "Gone")
	assert.False(t, ok)

	outcome, err := b.Click(ctx, "main", "@"+add.Ref, time.Second)
	require.NoError(t, err)
	assert.True(t, outcome.Success, outcome.ErrorText())
	assert.JSONEq(t, `1`, string(call(t, b, "clicks")))

	outcome, err = b.Click(ctx, "main", "@e99", time.Second)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.ErrorText(), "Ref not found: @e99")
}

func TestFillThenClick(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())
	ctx := context.Background()

	call(t, b, `document.getElementById('new').addEventListener('change', (e) => { window.changed = e.target.value; })`)

	outcome, err := b.Fill(ctx, "main", "#new", "Buy milk", time.Second)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.ErrorText())
	assert.JSONEq(t, `"Buy milk"`, string(call(t, b, "changed")))
	assert.JSONEq(t, `"new"`, string(call(t, b, "document.activeElement.id")))

	resp, err := b.Snapshot(ctx, "main", true)
	require.NoError(t, err)
	input, ok := findName(resp.Elements, "todo")
	require.True(t, ok)
	assert.Equal(t, "Buy milk", input.Value)

	outcome, err = b.Click(ctx, "main", "xpath=//button[text()='Add']", time.Second)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.ErrorText())

	assert.JSONEq(t, `["Buy milk"]`, string(call(t, b, "Array.from(document.querySelectorAll('#list li')).map(li => li.textContent)")))
}

func TestClickCheckbox(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())

	outcome, err := b.Click(context.Background(), "main", "#done", time.Second)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.ErrorText())
	assert.JSONEq(t, `true`, string(call(t, b, "document.getElementById('done').checked")))

	call(t, b, "document.getElementById('done').addEventListener('click', (e) => e.preventDefault())")
	_, err = b.Click(context.Background(), "main", "#done", time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `true`, string(call(t, b, "document.getElementById('done').checked")))
}

func TestNativeWalkerMatchesInjectedWalker(t *testing.T) {
	h, b := newTestHost(t, DefaultConfig())
	ctx := context.Background()

	_, err := b.Fill(ctx, "main", "#new", "typed", time.Second)
	require.NoError(t, err)

	injected, err := b.Snapshot(ctx, "main", false)
	require.NoError(t, err)

	native, err := h.Walk(ctx, "main")
	require.NoError(t, err)

	assert.Equal(t, injected, native)
	assert.NotEmpty(t, native.Refs())
}

func TestInvokeCommands(t *testing.T) {
	h, b := newTestHost(t, DefaultConfig())
	ctx := context.Background()

	h.RegisterCommand("greet", "Say hello", func(_ context.Context, args json.RawMessage) (any, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, err
		}
		return map[string]string{"greeting": "hello " + p.Name}, nil
	})

	outcome, err := b.Invoke(ctx, "main", "greet", json.RawMessage(`{"name":"ada"}`), time.Second)
	require.NoError(t, err)
	require.True(t, outcome.Success, outcome.ErrorText())
	assert.JSONEq(t, `{"greeting":"hello ada"}`, string(outcome.Value))

	outcome, err = b.Invoke(ctx, "main", "missing", nil, time.Second)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.ErrorText(), "unknown command: missing")

	_, err = b.Invoke(ctx, "main", SetStateCommand, json.RawMessage(`{"count":3}`), time.Second)
	require.NoError(t, err)
	state, err := b.State()
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":3}`, string(state))

	cmds, err := b.Commands()
	require.NoError(t, err)
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.Name
	}
	assert.Equal(t, []string{GetStateCommand, "greet", SetStateCommand}, names)
}

func TestConsoleForwarding(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.SubscribeConsole(ctx, false)
	require.NoError(t, err)

	call(t, b, "console.warn('careful', {a: 1})")

	select {
	case msg := <-sub.C():
		assert.Equal(t, "warn", msg.Name)
		var line bridge.ConsoleLine
		require.NoError(t, json.Unmarshal(msg.Payload, &line))
		assert.Equal(t, `careful {"a":1}`, line.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no console line")
	}
}

func TestScriptTimeoutKeepsWindowUsable(t *testing.T) {
	_, b := newTestHost(t, Config{ScriptTimeout: 100 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errs, err := b.SubscribeConsole(ctx, true)
	require.NoError(t, err)

	_, err = b.Call(ctx, "main", "while (true) {}", 500*time.Millisecond)
	assert.ErrorIs(t, err, bridge.ErrTimeout)

	select {
	case msg := <-errs.C():
		assert.Contains(t, string(msg.Payload), "script exceeded")
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt was not reported")
	}

	assert.JSONEq(t, `2`, string(call(t, b, "1 + 1")))
}

func TestAppEventsRoundTrip(t *testing.T) {
	_, b := newTestHost(t, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := b.SubscribeEvents(ctx, "pong")
	require.NoError(t, err)

	require.NoError(t, b.EmitEvent("ping", json.RawMessage(`{"n":1}`)))

	select {
	case msg := <-sub.C():
		assert.Equal(t, "pong", msg.Name)
		assert.JSONEq(t, `{"n":2}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no pong")
	}
}

func TestWindows(t *testing.T) {
	h, b := newTestHost(t, DefaultConfig())
	require.NoError(t, h.Open(Page{Label: "settings", URL: "file:///settings.html", HTML: []byte("<title>Settings</title>")}))

	windows, err := b.ListWindows()
	require.NoError(t, err)
	require.Len(t, windows, 2)
	assert.Equal(t, "main", windows[0].Label)
	assert.Equal(t, "Demo", windows[0].Title)
	assert.True(t, windows[0].Focused)
	assert.Equal(t, "Settings", windows[1].Title)
	assert.False(t, windows[1].Focused)

	assert.Error(t, h.Open(Page{Label: "main", HTML: []byte("<p>")}))
}

func TestDoSeesScriptChanges(t *testing.T) {
	h, b := newTestHost(t, DefaultConfig())
	call(t, b, "document.title = 'Renamed'")

	var title string
	err := h.Do(context.Background(), "main", func(doc *html.Node) error {
		title = snapshot.Title(doc)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", title)
}

func TestFindPages(t *testing.T) {
	fsys := fstest.MapFS{
		"app/index.html":         {Data: []byte("<title>Main</title>")},
		"app/settings.html":      {Data: []byte("<title>Settings</title>")},
		"app/readme.txt":         {Data: []byte("not a page")},
		"app/nested/about.html":  {Data: []byte("<title>About</title>")},
		"other/dup/index.html":   {Data: []byte("<title>Dup</title>")},
		"other/dup2/index.html":  {Data: []byte("<title>Dup</title>")},
		"other/dup2/extra.htmlx": {Data: []byte("ignored")},
	}

	pages, err := FindPages(fsys, "app/**/*.html")
	require.NoError(t, err)
	labels := make([]string, len(pages))
	for i, p := range pages {
		labels[i] = p.Label
	}
	assert.ElementsMatch(t, []string{"main", "settings", "about"}, labels)

	_, err = FindPages(fsys, "other/**/*.html")
	assert.Error(t, err)

	pages, err = FindPages(fsys, "missing/*.html")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestParseDecodesLegacyCharset(t *testing.T) {
	page := []byte("<html><head><meta charset=\"iso-8859-15\"><title>Caf\xe9</title></head><body></body></html>")

	doc, err := Parse(page)
	require.NoError(t, err)
	assert.Equal(t, "Café", snapshot.Title(doc))

	doc, err = Parse([]byte("<title>Plain ascii</title>"))
	require.NoError(t, err)
	assert.Equal(t, "Plain ascii", snapshot.Title(doc))
}

func TestBlankPageWhenNothingMatches(t *testing.T) {
	h := New(Config{Pages: "*.html"})
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.LoadPages(fstest.MapFS{}))
	windows, err := h.Windows()
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "main", windows[0].Label)
	assert.Equal(t, "debugbridge", windows[0].Title)
	assert.True(t, strings.HasPrefix(windows[0].URL, "about:"))
}
