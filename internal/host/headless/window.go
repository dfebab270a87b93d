package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
)

// Commands handled by the window itself rather than the command table
const (
	EmitCommand = "plugin:event|emit"
)

var errWindowClosed = errors.New("window closed")

// window owns one goja runtime and the document it scripts. Everything that
// touches vm or doc runs on the loop goroutine.
type window struct {
	host  *Host
	label string
	url   string

	doc    *html.Node
	vm     *goja.Runtime
	global *html.Node // listener key for the window object

	objects   map[*html.Node]*goja.Object
	nodes     map[*goja.Object]*html.Node
	listeners map[*html.Node]map[string][]goja.Value
	handlers  map[*html.Node]map[string]goja.Value // on* properties set by script
	values    map[*html.Node]string
	checked   map[*html.Node]bool
	focused   *html.Node
	appEvents map[string][]goja.Value

	timers    map[int64]*time.Timer
	nextTimer int64

	mu     sync.Mutex
	queue  []task
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

type task func() error

func newWindow(h *Host, page Page) (*window, error) {
	doc, err := Parse(page.HTML)
	if err != nil {
		return nil, err
	}

	w := &window{
		host:      h,
		label:     page.Label,
		url:       page.URL,
		doc:       doc,
		vm:        goja.New(),
		global:    &html.Node{Type: html.DocumentNode},
		objects:   make(map[*html.Node]*goja.Object),
		nodes:     make(map[*goja.Object]*html.Node),
		listeners: make(map[*html.Node]map[string][]goja.Value),
		handlers:  make(map[*html.Node]map[string]goja.Value),
		values:    make(map[*html.Node]string),
		checked:   make(map[*html.Node]bool),
		appEvents: make(map[string][]goja.Value),
		timers:    make(map[int64]*time.Timer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	if err := w.setupGlobals(); err != nil {
		return nil, err
	}

	go w.loop()

	// Inline scripts run in document order, then the load events fire
	if err := w.enqueue(w.load); err != nil {
		return nil, err
	}
	return w, nil
}

// ============================================================================
// Event loop
// ============================================================================

func (w *window) enqueue(t task) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errWindowClosed
	}
	w.queue = append(w.queue, t)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

func (w *window) loop() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if len(w.queue) == 0 || w.closed {
				w.mu.Unlock()
				break
			}
			t := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()

			w.exec(t)
		}
	}
}

// exec runs one task under the script timeout. An interrupted task leaves
// its promises unsettled; the runtime stays usable for the next task.
func (w *window) exec(t task) {
	fired := make(chan struct{})
	timer := time.AfterFunc(w.host.cfg.ScriptTimeout, func() {
		w.vm.Interrupt(fmt.Sprintf("script exceeded %s", w.host.cfg.ScriptTimeout))
		close(fired)
	})

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in window task: %v", r)
			}
		}()
		return t()
	}()

	if !timer.Stop() {
		<-fired
	}
	w.vm.ClearInterrupt()

	if err != nil {
		w.reportError(err)
	}
}

func (w *window) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.queue = nil
	w.mu.Unlock()

	close(w.done)
	w.vm.Interrupt("window closed")
}

// do runs fn on the loop and waits for it
func (w *window) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if err := w.enqueue(func() error {
		result <- fn()
		return nil
	}); err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-w.done:
		return errWindowClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// reportError surfaces an uncaught script error on the console stream
func (w *window) reportError(err error) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		w.host.logger.Warn("Script interrupted", zap.String("window", w.label), zap.String("reason", fmt.Sprint(interrupted.Value())))
	}
	msg := err.Error()
	var exc *goja.Exception
	if errors.As(err, &exc) {
		msg = exc.Value().String()
	}
	w.host.console("error", "Uncaught "+msg)
}

// ============================================================================
// Globals
// ============================================================================

func (w *window) setupGlobals() error {
	vm := w.vm
	global := vm.GlobalObject()

	if _, err := vm.RunString(prelude); err != nil {
		return fmt.Errorf("window prelude: %w", err)
	}

	// Remove dangerous globals
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	location := vm.NewObject()
	_ = location.Set("href", w.url)
	_ = location.Set("toString", func(goja.FunctionCall) goja.Value { return vm.ToValue(w.url) })

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, w.makeConsoleFunc(level))
	}

	debugBridge := vm.NewObject()
	_ = debugBridge.Set("emit", w.jsEmit)
	_ = debugBridge.Set("listen", w.jsListen)

	globals := map[string]any{
		"window":           global,
		"self":             global,
		"globalThis":       global,
		"document":         w.wrap(w.doc),
		"location":         location,
		"console":          console,
		"innerWidth":       1280,
		"innerHeight":      800,
		"devicePixelRatio": 1,
		"getComputedStyle": w.getComputedStyle,
		"addEventListener": func(call goja.FunctionCall) goja.Value {
			w.addListener(w.global, call)
			return goja.Undefined()
		},
		"removeEventListener": func(call goja.FunctionCall) goja.Value {
			w.removeListener(w.global, call)
			return goja.Undefined()
		},
		"dispatchEvent": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(w.dispatch(w.global, call.Argument(0).ToObject(vm)))
		},
		"setTimeout":    w.setTimer(false),
		"setInterval":   w.setTimer(true),
		"clearTimeout":  w.clearTimer,
		"clearInterval": w.clearTimer,
		"__debugBridge": debugBridge,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}

	return w.installIPC()
}

// installIPC places the invoke function at the configured dotted path
func (w *window) installIPC() error {
	path := strings.TrimPrefix(w.host.cfg.Framer.IPC, "window.")
	parts := strings.Split(path, ".")

	obj := w.vm.GlobalObject()
	for _, part := range parts[:len(parts)-1] {
		next := obj.Get(part)
		if next == nil || goja.IsUndefined(next) || goja.IsNull(next) {
			created := w.vm.NewObject()
			if err := obj.Set(part, created); err != nil {
				return err
			}
			obj = created
			continue
		}
		obj = next.ToObject(w.vm)
	}
	return obj.Set(parts[len(parts)-1], w.invoke)
}

func (w *window) load() error {
	var scripts []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Script {
			scripts = append(scripts, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(w.doc)

	for i, s := range scripts {
		if src, ok := snapshot.Attr(s, "src"); ok {
			w.host.logger.Debug("Skipping external script", zap.String("window", w.label), zap.String("src", src))
			continue
		}
		if typ, ok := snapshot.Attr(s, "type"); ok && typ != "" && typ != "text/javascript" && typ != "module" {
			continue
		}
		code := snapshot.TextContent(s)
		if _, err := w.vm.RunScript(fmt.Sprintf("%s#script%d", w.url, i), code); err != nil {
			w.reportError(err)
		}
	}

	w.fire(w.doc, "DOMContentLoaded", true)
	w.fire(w.global, "load", false)
	return nil
}

func (w *window) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, w.format(arg))
		}
		w.host.console(level, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// format renders a console argument the way a devtools console line would
func (w *window) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if _, isFunc := goja.AssertFunction(v); !isFunc && obj.ClassName() != "Error" {
			if raw, err := w.stringify(v); err == nil {
				return string(raw)
			}
		}
	}
	return v.String()
}

// ============================================================================
// IPC
// ============================================================================

func (w *window) invoke(call goja.FunctionCall) goja.Value {
	vm := w.vm
	command := call.Argument(0).String()
	promise, resolve, reject := vm.NewPromise()

	args, err := w.stringify(call.Argument(1))
	if err != nil {
		_ = reject(w.newError("Error", "invoke args are not serializable: "+err.Error()))
		return vm.ToValue(promise)
	}

	switch command {
	case w.host.cfg.Framer.CallbackCommand:
		var cb correlation.Callback
		if err := json.Unmarshal(args, &cb); err != nil || cb.ID == "" {
			_ = reject(w.newError("TypeError", "malformed eval callback"))
			break
		}
		w.host.evalCallback(cb)
		_ = resolve(goja.Null())

	case framer.DefaultConsoleCommand:
		var line struct {
			Level   string `json:"level"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(args, &line); err != nil {
			_ = reject(w.newError("TypeError", "malformed console callback"))
			break
		}
		w.host.console(line.Level, line.Message)
		_ = resolve(goja.Null())

	case EmitCommand:
		var ev struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(args, &ev); err != nil || ev.Event == "" {
			_ = reject(w.newError("TypeError", "emit needs an event name"))
			break
		}
		if err := w.host.Emit(ev.Event, ev.Payload); err != nil {
			_ = reject(w.newError("Error", err.Error()))
			break
		}
		_ = resolve(goja.Null())

	default:
		cmd, ok := w.host.command(command)
		if !ok {
			_ = reject(w.newError("Error", "unknown command: "+command))
			break
		}
		// Commands run off the loop; the promise settles in a later task
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.host.cfg.CommandTimeout)
			defer cancel()
			result, err := cmd.fn(ctx, args)

			_ = w.enqueue(func() error {
				if err != nil {
					return reject(w.newError("Error", err.Error()))
				}
				value, perr := w.parseJSON(result)
				if perr != nil {
					return reject(w.newError("Error", perr.Error()))
				}
				return resolve(value)
			})
		}()
	}

	return vm.ToValue(promise)
}

func (w *window) jsEmit(call goja.FunctionCall) goja.Value {
	payload, err := w.stringify(call.Argument(1))
	if err != nil {
		panic(w.newError("TypeError", "event payload is not serializable"))
	}
	if err := w.host.Emit(call.Argument(0).String(), payload); err != nil {
		panic(w.newError("Error", err.Error()))
	}
	return goja.Undefined()
}

func (w *window) jsListen(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); !ok {
		panic(w.newError("TypeError", "listener is not a function"))
	}
	w.appEvents[name] = append(w.appEvents[name], fn)

	return w.vm.ToValue(func(goja.FunctionCall) goja.Value {
		kept := w.appEvents[name][:0]
		for _, l := range w.appEvents[name] {
			if !l.SameAs(fn) {
				kept = append(kept, l)
			}
		}
		w.appEvents[name] = kept
		return goja.Undefined()
	})
}

// deliverAppEvent runs script listeners for an application event
func (w *window) deliverAppEvent(name string, payload json.RawMessage) error {
	listeners := append([]goja.Value(nil), w.appEvents[name]...)
	if len(listeners) == 0 {
		return nil
	}
	value, err := w.parseJSON(payload)
	if err != nil {
		return err
	}
	for _, l := range listeners {
		fn, _ := goja.AssertFunction(l)
		if _, err := fn(goja.Undefined(), value); err != nil {
			w.reportError(err)
		}
	}
	return nil
}

// ============================================================================
// Timers
// ============================================================================

func (w *window) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		var extra []goja.Value
		if len(call.Arguments) > 2 {
			extra = call.Arguments[2:]
		}

		w.nextTimer++
		timerID := w.nextTimer

		var schedule func()
		schedule = func() {
			w.timers[timerID] = time.AfterFunc(delay, func() {
				_ = w.enqueue(func() error {
					if _, live := w.timers[timerID]; !live {
						return nil
					}
					if repeat {
						schedule()
					} else {
						delete(w.timers, timerID)
					}
					_, err := fn(goja.Undefined(), extra...)
					return err
				})
			})
		}
		schedule()

		return w.vm.ToValue(timerID)
	}
}

func (w *window) clearTimer(call goja.FunctionCall) goja.Value {
	timerID := call.Argument(0).ToInteger()
	if t, ok := w.timers[timerID]; ok {
		t.Stop()
		delete(w.timers, timerID)
	}
	return goja.Undefined()
}

// ============================================================================
// Helpers
// ============================================================================

// stringify converts a script value to JSON. Undefined becomes null.
func (w *window) stringify(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return json.RawMessage("null"), nil
	}
	jsonObj := w.vm.Get("JSON").ToObject(w.vm)
	stringify, _ := goja.AssertFunction(jsonObj.Get("stringify"))
	out, err := stringify(jsonObj, v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(out) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out.String()), nil
}

// parseJSON turns a Go value into a script value through JSON
func (w *window) parseJSON(v any) (goja.Value, error) {
	var raw []byte
	switch p := v.(type) {
	case json.RawMessage:
		raw = p
	case nil:
		raw = []byte("null")
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	if len(raw) == 0 {
		raw = []byte("null")
	}

	jsonObj := w.vm.Get("JSON").ToObject(w.vm)
	parse, _ := goja.AssertFunction(jsonObj.Get("parse"))
	return parse(jsonObj, w.vm.ToValue(string(raw)))
}

// newError constructs a script error of the named class
func (w *window) newError(class, msg string) *goja.Object {
	ctor, ok := goja.AssertConstructor(w.vm.Get(class))
	if !ok {
		return w.vm.NewGoError(errors.New(msg))
	}
	obj, err := ctor(nil, w.vm.ToValue(msg))
	if err != nil {
		return w.vm.NewGoError(errors.New(msg))
	}
	return obj
}
