package headless

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
	"github.com/GriffinCanCode/debugbridge/internal/host"
)

// Builtin commands every headless host answers
const (
	GetStateCommand = "get_state"
	SetStateCommand = "set_state"

	// StateChangedEvent is emitted after set_state replaces the state
	StateChangedEvent = "state-changed"
)

// Config controls the headless host
type Config struct {
	Dir            string        `envconfig:"PAGES_DIR"`
	Pages          string        `envconfig:"PAGES" default:"**/*.html"`
	ScriptTimeout  time.Duration `envconfig:"SCRIPT_TIMEOUT" default:"10s"`
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"30s"`

	// Framer must match the bridge's framer so injected code finds the IPC
	Framer framer.Config `ignored:"true"`
}

// DefaultConfig returns the host defaults
func DefaultConfig() Config {
	return Config{
		Pages:          "**/*.html",
		ScriptTimeout:  10 * time.Second,
		CommandTimeout: 30 * time.Second,
		Framer:         framer.DefaultConfig(),
	}
}

// CommandFunc handles one invoke from script. The result is passed back
// through JSON.
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

type registeredCommand struct {
	info host.Command
	fn   CommandFunc
}

// Host runs pages in embedded script runtimes, one per window. It stands in
// for a real webview application when none is attached.
type Host struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	windows map[string]*window
	sink    host.Sink

	listenMu     sync.Mutex
	listeners    map[string]map[uint64]func(json.RawMessage)
	nextListener uint64

	cmdMu    sync.RWMutex
	commands map[string]registeredCommand

	stateMu sync.RWMutex
	state   json.RawMessage
}

var (
	_ host.Host           = (*Host)(nil)
	_ host.CommandLister  = (*Host)(nil)
	_ host.StateProvider  = (*Host)(nil)
	_ host.ConfigProvider = (*Host)(nil)
)

// New creates a host with no windows. Zero config fields take defaults.
func New(cfg Config) *Host {
	def := DefaultConfig()
	if cfg.Pages == "" {
		cfg.Pages = def.Pages
	}
	if cfg.ScriptTimeout <= 0 {
		cfg.ScriptTimeout = def.ScriptTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	cfg.Framer = framer.New(cfg.Framer).Config()

	h := &Host{
		cfg:       cfg,
		logger:    zap.NewNop(),
		windows:   make(map[string]*window),
		listeners: make(map[string]map[uint64]func(json.RawMessage)),
		commands:  make(map[string]registeredCommand),
		state:     json.RawMessage("{}"),
	}

	h.RegisterCommand(GetStateCommand, "Return the application state", func(context.Context, json.RawMessage) (any, error) {
		return h.State()
	})
	h.RegisterCommand(SetStateCommand, "Replace the application state", func(_ context.Context, args json.RawMessage) (any, error) {
		if !json.Valid(args) {
			return nil, errors.New("state must be JSON")
		}
		h.stateMu.Lock()
		h.state = append(json.RawMessage(nil), args...)
		h.stateMu.Unlock()
		return true, h.Emit(StateChangedEvent, args)
	})

	return h
}

// WithLogger sets the logger
func (h *Host) WithLogger(logger *zap.Logger) *Host {
	if logger != nil {
		h.logger = logger.Named("headless")
	}
	return h
}

// Config returns the effective configuration
func (h *Host) Config() Config {
	return h.cfg
}

// ============================================================================
// Windows
// ============================================================================

// Open starts a window for page. Labels are unique.
func (h *Host) Open(page Page) error {
	if page.Label == "" {
		return errors.New("page has no label")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.windows[page.Label]; exists {
		return fmt.Errorf("window %q already open", page.Label)
	}
	w, err := newWindow(h, page)
	if err != nil {
		return fmt.Errorf("open window %q: %w", page.Label, err)
	}
	h.windows[page.Label] = w

	h.logger.Info("Window opened", zap.String("window", page.Label), zap.String("url", page.URL))
	return nil
}

// LoadPages opens every page under fsys matching the configured pattern,
// or a blank main window when nothing matches
func (h *Host) LoadPages(fsys fs.FS) error {
	pages, err := FindPages(fsys, h.cfg.Pages)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		h.logger.Warn("No pages matched, opening blank window", zap.String("pattern", h.cfg.Pages))
		pages = []Page{BlankPage()}
	}
	for _, p := range pages {
		if err := h.Open(p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) window(label string) (*window, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	w, ok := h.windows[label]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrWindowNotFound, label)
	}
	return w, nil
}

// Windows lists open windows sorted by label. The main window, or the
// first one when there is no main, reports focus.
func (h *Host) Windows() ([]host.WindowInfo, error) {
	h.mu.RLock()
	windows := make([]*window, 0, len(h.windows))
	for _, w := range h.windows {
		windows = append(windows, w)
	}
	h.mu.RUnlock()

	sort.Slice(windows, func(i, j int) bool { return windows[i].label < windows[j].label })

	focused := ""
	for _, w := range windows {
		if w.label == "main" {
			focused = w.label
		}
	}
	if focused == "" && len(windows) > 0 {
		focused = windows[0].label
	}

	infos := make([]host.WindowInfo, 0, len(windows))
	for _, w := range windows {
		info := host.WindowInfo{
			Label:   w.label,
			URL:     w.url,
			Visible: true,
			Focused: w.label == focused,
		}

		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.ScriptTimeout)
		err := w.do(ctx, func() error {
			info.Title = snapshot.Title(w.doc)
			return nil
		})
		cancel()
		if err != nil && !errors.Is(err, errWindowClosed) {
			return nil, fmt.Errorf("read window %q: %w", w.label, err)
		}

		infos = append(infos, info)
	}
	return infos, nil
}

// ============================================================================
// host.Host
// ============================================================================

// Attach sets the sink that receives callbacks and console lines
func (h *Host) Attach(sink host.Sink) {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()
}

// Eval queues code on the window's loop. Code that does not compile is
// rejected here, before anything runs.
func (h *Host) Eval(label, code string) error {
	w, err := h.window(label)
	if err != nil {
		return err
	}

	prog, err := goja.Compile(label+"#eval", code, false)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}

	return w.enqueue(func() error {
		_, err := w.vm.RunProgram(prog)
		return err
	})
}

// Emit delivers an application event to Go listeners and to scripts in
// every window
func (h *Host) Emit(name string, payload json.RawMessage) error {
	if name == "" {
		return errors.New("event name is empty")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return errors.New("event payload is not valid JSON")
	}

	h.listenMu.Lock()
	fns := make([]func(json.RawMessage), 0, len(h.listeners[name]))
	ids := make([]uint64, 0, len(h.listeners[name]))
	for id := range h.listeners[name] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fns = append(fns, h.listeners[name][id])
	}
	h.listenMu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, w := range h.windows {
		_ = w.enqueue(func() error {
			return w.deliverAppEvent(name, payload)
		})
	}

	h.logger.Debug("Event emitted", zap.String("event", name), zap.Int("listeners", len(fns)))
	return nil
}

// Listen registers fn for events called name
func (h *Host) Listen(name string, fn func(json.RawMessage)) (func(), error) {
	if name == "" {
		return nil, errors.New("event name is empty")
	}

	h.listenMu.Lock()
	h.nextListener++
	listenerID := h.nextListener
	if h.listeners[name] == nil {
		h.listeners[name] = make(map[uint64]func(json.RawMessage))
	}
	h.listeners[name][listenerID] = fn
	h.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.listenMu.Lock()
			delete(h.listeners[name], listenerID)
			if len(h.listeners[name]) == 0 {
				delete(h.listeners, name)
			}
			h.listenMu.Unlock()
		})
	}, nil
}

func (h *Host) console(level, message string) {
	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()

	if sink != nil {
		sink.Console(level, message)
	}
}

func (h *Host) evalCallback(cb correlation.Callback) {
	h.mu.RLock()
	sink := h.sink
	h.mu.RUnlock()

	if sink == nil {
		h.logger.Debug("Dropping callback with no sink attached", zap.String("call_id", string(cb.ID)))
		return
	}
	sink.EvalCallback(cb)
}

// ============================================================================
// Commands and state
// ============================================================================

// RegisterCommand makes fn reachable from script through invoke.
// Registering a name again replaces the handler.
func (h *Host) RegisterCommand(name, description string, fn CommandFunc) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()
	h.commands[name] = registeredCommand{
		info: host.Command{Name: name, Description: description},
		fn:   fn,
	}
}

func (h *Host) command(name string) (registeredCommand, bool) {
	h.cmdMu.RLock()
	defer h.cmdMu.RUnlock()
	cmd, ok := h.commands[name]
	return cmd, ok
}

// Commands lists registered commands by name
func (h *Host) Commands() ([]host.Command, error) {
	h.cmdMu.RLock()
	defer h.cmdMu.RUnlock()

	cmds := make([]host.Command, 0, len(h.commands))
	for _, c := range h.commands {
		cmds = append(cmds, c.info)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds, nil
}

// State returns the state last stored with set_state
func (h *Host) State() (json.RawMessage, error) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return append(json.RawMessage(nil), h.state...), nil
}

// AppConfig describes how the host is set up
func (h *Host) AppConfig() (json.RawMessage, error) {
	h.mu.RLock()
	labels := make([]string, 0, len(h.windows))
	for label := range h.windows {
		labels = append(labels, label)
	}
	h.mu.RUnlock()
	sort.Strings(labels)

	data, err := sonic.Marshal(map[string]any{
		"host":            "headless",
		"windows":         labels,
		"pages":           h.cfg.Pages,
		"script_timeout":  h.cfg.ScriptTimeout.String(),
		"command_timeout": h.cfg.CommandTimeout.String(),
		"ipc":             h.cfg.Framer.IPC,
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ============================================================================
// Direct document access
// ============================================================================

// Do runs fn against the window's document on its loop
func (h *Host) Do(ctx context.Context, label string, fn func(doc *html.Node) error) error {
	w, err := h.window(label)
	if err != nil {
		return err
	}
	return w.do(ctx, func() error { return fn(w.doc) })
}

// Walk snapshots a window natively, seeing script-attached click handlers
// and values set after parsing the way the injected walker does
func (h *Host) Walk(ctx context.Context, label string) (snapshot.Response, error) {
	w, err := h.window(label)
	if err != nil {
		return snapshot.Response{}, err
	}

	var resp snapshot.Response
	err = w.do(ctx, func() error {
		resp = snapshot.Walk(w.doc, snapshot.Options{
			URL:          w.url,
			MarkRefs:     true,
			ClickHandler: w.hasClickHandler,
			Value: func(n *html.Node) (string, bool) {
				v, ok := w.values[n]
				return v, ok
			},
		})
		return nil
	})
	return resp, err
}

// Close stops every window
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for label, w := range h.windows {
		w.close()
		delete(h.windows, label)
	}
	h.logger.Info("Headless host closed")
	return nil
}
