package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/domain/framer"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// Operation names used for timeouts, metrics and logs
const (
	OpEval       = "eval"
	OpClick      = "click"
	OpFill       = "fill"
	OpInvoke     = "invoke"
	OpSnapshot   = "snapshot"
	OpScreenshot = "screenshot"
)

// Config holds per-operation timeouts
type Config struct {
	EvalTimeout       time.Duration `envconfig:"EVAL_TIMEOUT" default:"30s"`
	InvokeTimeout     time.Duration `envconfig:"INVOKE_TIMEOUT" default:"30s"`
	ActionTimeout     time.Duration `envconfig:"ACTION_TIMEOUT" default:"5s"`
	SnapshotTimeout   time.Duration `envconfig:"SNAPSHOT_TIMEOUT" default:"10s"`
	ScreenshotTimeout time.Duration `envconfig:"SCREENSHOT_TIMEOUT" default:"15s"`
	MaxTimeout        time.Duration `envconfig:"MAX_TIMEOUT" default:"5m"`
	DefaultWindow     string        `envconfig:"DEFAULT_WINDOW" default:"main"`
}

// DefaultConfig returns the default timeouts. Arbitrary code gets tens of
// seconds, UI actions a few.
func DefaultConfig() Config {
	return Config{
		EvalTimeout:       30 * time.Second,
		InvokeTimeout:     30 * time.Second,
		ActionTimeout:     5 * time.Second,
		SnapshotTimeout:   10 * time.Second,
		ScreenshotTimeout: 15 * time.Second,
		MaxTimeout:        5 * time.Minute,
		DefaultWindow:     "main",
	}
}

// Timeout returns the default timeout for op
func (c Config) Timeout(op string) time.Duration {
	switch op {
	case OpClick, OpFill:
		return c.ActionTimeout
	case OpInvoke:
		return c.InvokeTimeout
	case OpSnapshot:
		return c.SnapshotTimeout
	case OpScreenshot:
		return c.ScreenshotTimeout
	default:
		return c.EvalTimeout
	}
}

// Image is a decoded screenshot
type Image struct {
	Data        []byte
	ContentType string
}

// ConsoleLine is the payload of the console stream
type ConsoleLine struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Bridge turns the host's one-way injection primitive into bounded
// request/response calls and feeds sandbox push traffic into the relay.
//
// Every call registers exactly one waiter and injects exactly once. The
// waiter is removed by whichever of callback, timeout, cancellation or
// injection failure comes first; the others become no-ops.
type Bridge struct {
	host     host.Host
	registry *correlation.Registry
	framer   *framer.Framer
	relay    *relay.Relay
	cfg      Config

	logger  *zap.Logger
	metrics *monitoring.Metrics

	tapsMu sync.Mutex
	taps   map[string]*eventTap // Protected by tapsMu
}

type eventTap struct {
	refs     int
	unlisten func()
}

// New creates a bridge and attaches it to h as its sink
func New(h host.Host, r *relay.Relay, f *framer.Framer, cfg Config) *Bridge {
	def := DefaultConfig()
	if cfg.EvalTimeout <= 0 {
		cfg.EvalTimeout = def.EvalTimeout
	}
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = def.InvokeTimeout
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = def.ActionTimeout
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = def.SnapshotTimeout
	}
	if cfg.ScreenshotTimeout <= 0 {
		cfg.ScreenshotTimeout = def.ScreenshotTimeout
	}
	if cfg.MaxTimeout <= 0 {
		cfg.MaxTimeout = def.MaxTimeout
	}
	if cfg.DefaultWindow == "" {
		cfg.DefaultWindow = def.DefaultWindow
	}

	b := &Bridge{
		host:     h,
		registry: correlation.NewRegistry(),
		framer:   f,
		relay:    r,
		cfg:      cfg,
		logger:   zap.NewNop(),
		taps:     make(map[string]*eventTap),
	}
	h.Attach(b)
	return b
}

// WithLogger sets the logger
func (b *Bridge) WithLogger(logger *zap.Logger) *Bridge {
	if logger != nil {
		b.logger = logger.Named("bridge")
	}
	return b
}

// WithMetrics adds metrics tracking to the bridge
func (b *Bridge) WithMetrics(metrics *monitoring.Metrics) *Bridge {
	b.metrics = metrics
	if metrics != nil {
		metrics.RegisterPendingGauge(b.registry.Len)
	}
	return b
}

// Config returns the effective configuration
func (b *Bridge) Config() Config {
	return b.cfg
}

// Pending returns the number of calls awaiting a callback
func (b *Bridge) Pending() int {
	return b.registry.Len()
}

// RegistryStats returns correlation counters
func (b *Bridge) RegistryStats() correlation.Stats {
	return b.registry.Stats()
}

// ============================================================================
// Calls
// ============================================================================

// Call runs code in window and waits for its outcome. A zero timeout uses
// the eval default. Failures thrown by the code come back as an Outcome
// with Success false, not as an error.
//
// Bare single-line expressions are returned implicitly; multi-statement
// code must return its own value.
func (b *Bridge) Call(ctx context.Context, window, code string, timeout time.Duration) (correlation.Outcome, error) {
	return b.call(ctx, OpEval, window, code, timeout)
}

// Click clicks the element matched by selector: "@eN" refs from the last
// snapshot, "xpath=" expressions, or CSS selectors
func (b *Bridge) Click(ctx context.Context, window, selector string, timeout time.Duration) (correlation.Outcome, error) {
	code, err := framer.Click(selector)
	if err != nil {
		return correlation.Outcome{}, newError(CategoryMalformedInput, err, "%v", err)
	}
	return b.call(ctx, OpClick, window, code, timeout)
}

// Fill sets the value of the element matched by selector and fires
// input and change events
func (b *Bridge) Fill(ctx context.Context, window, selector, text string, timeout time.Duration) (correlation.Outcome, error) {
	code, err := framer.Fill(selector, text)
	if err != nil {
		return correlation.Outcome{}, newError(CategoryMalformedInput, err, "%v", err)
	}
	return b.call(ctx, OpFill, window, code, timeout)
}

// Invoke calls an application command through the sandbox IPC
func (b *Bridge) Invoke(ctx context.Context, window, command string, args json.RawMessage, timeout time.Duration) (correlation.Outcome, error) {
	code, err := b.framer.Invoke(command, args)
	if err != nil {
		return correlation.Outcome{}, newError(CategoryMalformedInput, err, "%v", err)
	}
	return b.call(ctx, OpInvoke, window, code, timeout)
}

// Snapshot walks the window's document and returns its interactive tree.
// Refs assigned here are what Click and Fill accept as "@eN".
func (b *Bridge) Snapshot(ctx context.Context, window string, interactiveOnly bool) (snapshot.Response, error) {
	outcome, err := b.call(ctx, OpSnapshot, window, framer.Snapshot(), 0)
	if err != nil {
		return snapshot.Response{}, err
	}
	if !outcome.Success {
		return snapshot.Response{}, newError(CategorySandboxFailure, nil, "snapshot failed: %s", outcome.ErrorText())
	}

	var resp snapshot.Response
	if err := sonic.Unmarshal(outcome.Value, &resp); err != nil {
		return snapshot.Response{}, newError(CategorySandboxFailure, err, "snapshot returned an unexpected value")
	}
	if resp.Elements == nil {
		resp.Elements = []snapshot.Node{}
	}
	if interactiveOnly {
		resp = resp.InteractiveOnly()
	}
	return resp, nil
}

// Screenshot captures the window as an image
func (b *Bridge) Screenshot(ctx context.Context, window string) (Image, error) {
	outcome, err := b.call(ctx, OpScreenshot, window, framer.Screenshot(), 0)
	if err != nil {
		return Image{}, err
	}
	if !outcome.Success {
		return Image{}, newError(CategorySandboxFailure, nil, "screenshot failed: %s", outcome.ErrorText())
	}

	var dataURL string
	if err := json.Unmarshal(outcome.Value, &dataURL); err != nil {
		return Image{}, newError(CategorySandboxFailure, err, "screenshot returned a non-string value")
	}
	return DecodeDataURL(dataURL)
}

// DecodeDataURL decodes a base64 image data URL and sniffs its type
func DecodeDataURL(dataURL string) (Image, error) {
	_, encoded, ok := strings.Cut(dataURL, ";base64,")
	if !ok || !strings.HasPrefix(dataURL, "data:") {
		return Image{}, newError(CategorySandboxFailure, nil, "screenshot is not a base64 data URL")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Image{}, newError(CategorySandboxFailure, err, "screenshot data is not valid base64")
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return Image{}, newError(CategorySandboxFailure, nil, "screenshot data is %s, not an image", mt.String())
	}
	return Image{Data: data, ContentType: mt.String()}, nil
}

func (b *Bridge) call(ctx context.Context, op, window, code string, timeout time.Duration) (correlation.Outcome, error) {
	if window == "" {
		window = b.cfg.DefaultWindow
	}
	if timeout <= 0 {
		timeout = b.cfg.Timeout(op)
	}
	if timeout > b.cfg.MaxTimeout {
		timeout = b.cfg.MaxTimeout
	}

	timer := monitoring.NewTimer(b.metrics, op)
	callID := id.NewCallID()
	log := b.logger.With(zap.String("op", op), zap.String("call_id", callID.String()), zap.String("window", window))

	waiter, err := b.registry.Register(callID)
	if err != nil {
		timer.Stop(string(CategoryInjectionFailed))
		return correlation.Outcome{}, newError(CategoryInjectionFailed, err, "could not register call")
	}

	if err := b.host.Eval(window, b.framer.Frame(callID, code)); err != nil {
		b.registry.Evict(callID)
		category := CategoryInjectionFailed
		detail := err.Error()
		if errors.Is(err, host.ErrWindowNotFound) {
			category = CategoryWindowNotFound
			detail = "window not found: " + window
		}
		timer.Stop(string(category))
		log.Debug("Injection failed", zap.Error(err))
		return correlation.Outcome{}, newError(category, err, "%s", detail)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case outcome := <-waiter.Done():
		return b.finish(timer, log, outcome), nil

	case <-deadline.C:
		if !b.registry.Evict(callID) {
			// The callback won the race
			return b.finish(timer, log, <-waiter.Done()), nil
		}
		d := timer.Stop(string(CategoryTimeout))
		log.Warn("Call timed out", zap.Duration("timeout", timeout), zap.Duration("elapsed", d))
		return correlation.Outcome{}, newError(CategoryTimeout, nil, "no result within %s", timeout)

	case <-ctx.Done():
		if !b.registry.Evict(callID) {
			return b.finish(timer, log, <-waiter.Done()), nil
		}
		timer.Stop(string(CategoryCanceled))
		log.Debug("Call canceled", zap.Error(ctx.Err()))
		return correlation.Outcome{}, newError(CategoryCanceled, ctx.Err(), "call canceled")
	}
}

func (b *Bridge) finish(timer *monitoring.Timer, log *zap.Logger, outcome correlation.Outcome) correlation.Outcome {
	result := "success"
	if !outcome.Success {
		result = string(CategorySandboxFailure)
	}
	d := timer.Stop(result)
	log.Debug("Call completed", zap.Bool("success", outcome.Success), zap.Duration("elapsed", d))
	return outcome
}

// ============================================================================
// Sink
// ============================================================================

// EvalCallback resolves the waiter for cb.ID. Callbacks for calls that
// already timed out are dropped.
func (b *Bridge) EvalCallback(cb correlation.Callback) {
	if b.registry.Resolve(cb.ID, cb.Outcome()) {
		return
	}
	b.logger.Debug("Dropped late callback", zap.String("call_id", cb.ID.String()))
	if b.metrics != nil {
		b.metrics.IncLateCallbacks()
	}
}

// Console publishes a console line. The level doubles as the message name
// so subscribers can filter on it.
func (b *Bridge) Console(level, message string) {
	if level == "" {
		level = "log"
	}
	if err := b.relay.Publish(relay.StreamConsole, level, ConsoleLine{Level: level, Message: message}); err != nil && !errors.Is(err, relay.ErrClosed) {
		b.logger.Warn("Failed to publish console line", zap.Error(err))
	}
}

// ============================================================================
// Windows, events and host capabilities
// ============================================================================

// ListWindows returns the host's windows
func (b *Bridge) ListWindows() ([]host.WindowInfo, error) {
	windows, err := b.host.Windows()
	if err != nil {
		return nil, hostError(err)
	}
	if windows == nil {
		windows = []host.WindowInfo{}
	}
	return windows, nil
}

// EmitEvent emits an application event
func (b *Bridge) EmitEvent(name string, payload json.RawMessage) error {
	if strings.TrimSpace(name) == "" {
		return newError(CategoryMalformedInput, nil, "event name is required")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	if !json.Valid(payload) {
		return newError(CategoryMalformedInput, nil, "event payload is not valid JSON")
	}
	if err := b.host.Emit(name, payload); err != nil {
		return hostError(err)
	}
	return nil
}

// EventNames returns event names seen since startup
func (b *Bridge) EventNames() []string {
	return b.relay.Names()
}

// SubscribeEvents streams payloads of the named application event. The
// first subscriber for a name installs one host listener, the last one
// to leave removes it.
func (b *Bridge) SubscribeEvents(ctx context.Context, name string) (*relay.Subscription, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(CategoryMalformedInput, nil, "event name is required")
	}
	if err := b.acquireTap(name); err != nil {
		return nil, err
	}

	sub, err := b.relay.Subscribe(ctx, relay.StreamEvents, relay.ByName(name))
	if err != nil {
		b.releaseTap(name)
		return nil, err
	}

	go func() {
		<-sub.Done()
		b.releaseTap(name)
	}()
	return sub, nil
}

// SubscribeConsole streams console lines, optionally only errors
func (b *Bridge) SubscribeConsole(ctx context.Context, errorsOnly bool) (*relay.Subscription, error) {
	var filter relay.Filter
	if errorsOnly {
		filter = relay.ByName("error")
	}
	return b.relay.Subscribe(ctx, relay.StreamConsole, filter)
}

func (b *Bridge) acquireTap(name string) error {
	b.tapsMu.Lock()
	defer b.tapsMu.Unlock()

	if tap, ok := b.taps[name]; ok {
		tap.refs++
		return nil
	}

	unlisten, err := b.host.Listen(name, func(payload json.RawMessage) {
		if err := b.relay.Publish(relay.StreamEvents, name, payload); err != nil && !errors.Is(err, relay.ErrClosed) {
			b.logger.Warn("Failed to publish event", zap.String("event", name), zap.Error(err))
		}
	})
	if err != nil {
		return hostError(err)
	}
	b.taps[name] = &eventTap{refs: 1, unlisten: unlisten}
	b.logger.Debug("Listening for event", zap.String("event", name))
	return nil
}

func (b *Bridge) releaseTap(name string) {
	b.tapsMu.Lock()
	tap, ok := b.taps[name]
	if !ok {
		b.tapsMu.Unlock()
		return
	}
	tap.refs--
	if tap.refs > 0 {
		b.tapsMu.Unlock()
		return
	}
	delete(b.taps, name)
	b.tapsMu.Unlock()

	if tap.unlisten != nil {
		tap.unlisten()
	}
	b.logger.Debug("Stopped listening for event", zap.String("event", name))
}

// Listeners returns how many subscribers hold each event tap
func (b *Bridge) Listeners() map[string]int {
	b.tapsMu.Lock()
	defer b.tapsMu.Unlock()

	out := make(map[string]int, len(b.taps))
	for name, tap := range b.taps {
		out[name] = tap.refs
	}
	return out
}

// Commands lists application commands when the host knows them
func (b *Bridge) Commands() ([]host.Command, error) {
	lister, ok := b.host.(host.CommandLister)
	if !ok {
		return nil, newError(CategoryNotSupported, nil, "host cannot list commands")
	}
	commands, err := lister.Commands()
	if err != nil {
		return nil, hostError(err)
	}
	if commands == nil {
		commands = []host.Command{}
	}
	return commands, nil
}

// State returns the application state when the host exposes it
func (b *Bridge) State() (json.RawMessage, error) {
	provider, ok := b.host.(host.StateProvider)
	if !ok {
		return nil, newError(CategoryNotSupported, nil, "host does not expose state")
	}
	state, err := provider.State()
	if err != nil {
		return nil, hostError(err)
	}
	return state, nil
}

// AppConfig returns the application configuration when the host exposes it
func (b *Bridge) AppConfig() (json.RawMessage, error) {
	provider, ok := b.host.(host.ConfigProvider)
	if !ok {
		return nil, newError(CategoryNotSupported, nil, "host does not expose configuration")
	}
	cfg, err := provider.AppConfig()
	if err != nil {
		return nil, hostError(err)
	}
	return cfg, nil
}

// Close removes every host event listener
func (b *Bridge) Close() {
	b.tapsMu.Lock()
	taps := b.taps
	b.taps = make(map[string]*eventTap)
	b.tapsMu.Unlock()

	for _, tap := range taps {
		if tap.unlisten != nil {
			tap.unlisten()
		}
	}
}

func hostError(err error) error {
	switch {
	case errors.Is(err, host.ErrWindowNotFound):
		return newError(CategoryWindowNotFound, err, "%v", err)
	case errors.Is(err, host.ErrNotSupported):
		return newError(CategoryNotSupported, err, "%v", err)
	default:
		return newError(CategoryInjectionFailed, err, "%v", err)
	}
}
