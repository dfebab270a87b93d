package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the number of frames queued for the application
	DefaultSendBuffer = 256

	// MaxFrameSize bounds one inbound frame
	MaxFrameSize = 32 << 20
)

// ErrBackpressure is returned when the application stops reading
var ErrBackpressure = errors.New("host channel send queue is full")

// session is one connected application
type session struct {
	id   id.ConnectionID
	conn *websocket.Conn
	send chan Frame
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Host forwards injections to an application connected over a WebSocket.
// At most one application is attached; a new connection replaces the old.
type Host struct {
	logger      *zap.Logger
	consoleHook string

	mu      sync.RWMutex
	current *session
	sink    host.Sink
	windows []host.WindowInfo
	hooked  map[string]bool

	listenMu     sync.Mutex
	listeners    map[string]map[uint64]func(json.RawMessage)
	nextListener uint64
}

var _ host.Host = (*Host)(nil)

// New creates a host. consoleHook is injected into every window the
// application reports, so console output flows back without app support.
func New(consoleHook string) *Host {
	return &Host{
		logger:      zap.NewNop(),
		consoleHook: consoleHook,
		hooked:      make(map[string]bool),
		listeners:   make(map[string]map[uint64]func(json.RawMessage)),
	}
}

// WithLogger sets the logger
func (h *Host) WithLogger(logger *zap.Logger) *Host {
	if logger != nil {
		h.logger = logger.Named("remote")
	}
	return h
}

// Connected reports whether an application is attached
func (h *Host) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current != nil
}

// ============================================================================
// Connection
// ============================================================================

// Serve runs the host channel over conn until it closes or ctx ends.
// It takes ownership of conn.
func (h *Host) Serve(ctx context.Context, conn *websocket.Conn) error {
	s := &session{
		id:   id.NewConnectionID(),
		conn: conn,
		send: make(chan Frame, DefaultSendBuffer),
		done: make(chan struct{}),
	}
	log := h.logger.With(zap.String("conn_id", s.id.String()))

	h.mu.Lock()
	previous := h.current
	h.current = s
	h.windows = nil
	h.hooked = make(map[string]bool)
	h.mu.Unlock()

	if previous != nil {
		log.Warn("Replacing connected application")
		previous.close()
	}
	log.Info("Application connected", zap.String("remote", conn.RemoteAddr().String()))

	// Replay active listeners so the application forwards their events
	for _, name := range h.listenerNames() {
		h.enqueue(s, Frame{Type: FrameListen, Name: name})
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- h.writePump(s) }()

	go func() {
		select {
		case <-ctx.Done():
			s.close()
		case <-s.done:
		}
	}()

	err := h.readPump(s, log)
	s.close()

	h.mu.Lock()
	if h.current == s {
		h.current = nil
		h.windows = nil
	}
	h.mu.Unlock()

	if werr := <-writeErr; err == nil {
		err = werr
	}
	log.Info("Application disconnected", zap.Error(err))

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return err
}

func (h *Host) readPump(s *session, log *zap.Logger) error {
	s.conn.SetReadLimit(MaxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handle(s, f, log)
	}
}

func (h *Host) writePump(s *session) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return nil

		case f := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				s.close()
				return fmt.Errorf("write %s frame: %w", f.Type, err)
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (h *Host) handle(s *session, f Frame, log *zap.Logger) {
	switch f.Type {
	case FrameEvalCallback:
		if f.ID == "" {
			log.Debug("Callback without id ignored")
			return
		}
		if sink := h.currentSink(); sink != nil {
			sink.EvalCallback(f.Callback())
		}

	case FrameConsole:
		if sink := h.currentSink(); sink != nil {
			sink.Console(f.Level, f.Message)
		}

	case FrameEvent:
		if f.Name == "" {
			return
		}
		h.deliver(f.Name, f.Payload)

	case FrameWindows:
		h.setWindows(s, f.Windows)

	default:
		log.Debug("Unknown frame type", zap.String("type", f.Type))
	}
}

// setWindows records the application's windows and installs the console
// hook in ones not seen before on this connection
func (h *Host) setWindows(s *session, windows []host.WindowInfo) {
	h.mu.Lock()
	if h.current != s {
		h.mu.Unlock()
		return
	}
	h.windows = append([]host.WindowInfo(nil), windows...)
	var fresh []string
	for _, w := range windows {
		if !h.hooked[w.Label] {
			h.hooked[w.Label] = true
			fresh = append(fresh, w.Label)
		}
	}
	h.mu.Unlock()

	if h.consoleHook == "" {
		return
	}
	for _, label := range fresh {
		if !h.enqueue(s, Frame{Type: FrameEval, Window: label, Code: h.consoleHook}) {
			h.logger.Warn("Could not install console hook", zap.String("window", label))
		}
	}
}

func (h *Host) enqueue(s *session, f Frame) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- f:
		return true
	default:
		return false
	}
}

func (h *Host) currentSink() host.Sink {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sink
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

// Eval sends code to the application. It fails when no application is
// attached or the window is not among those it reported.
func (h *Host) Eval(window, code string) error {
	h.mu.RLock()
	s := h.current
	known := h.windows != nil
	found := false
	for _, w := range h.windows {
		if w.Label == window {
			found = true
			break
		}
	}
	h.mu.RUnlock()

	if s == nil {
		return host.ErrNotConnected
	}
	if known && !found {
		return fmt.Errorf("%w: %s", host.ErrWindowNotFound, window)
	}
	if !h.enqueue(s, Frame{Type: FrameEval, Window: window, Code: code}) {
		return ErrBackpressure
	}
	return nil
}

// Windows returns what the application last reported
func (h *Host) Windows() ([]host.WindowInfo, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.current == nil {
		return nil, host.ErrNotConnected
	}
	return append([]host.WindowInfo{}, h.windows...), nil
}

// Emit delivers an event to local listeners and forwards it to the
// application
func (h *Host) Emit(name string, payload json.RawMessage) error {
	if name == "" {
		return errors.New("event name is empty")
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	h.deliver(name, payload)

	h.mu.RLock()
	s := h.current
	h.mu.RUnlock()
	if s == nil {
		return host.ErrNotConnected
	}
	if !h.enqueue(s, Frame{Type: FrameEmit, Name: name, Payload: payload}) {
		return ErrBackpressure
	}
	return nil
}

// Listen registers fn for application events called name. The first
// listener for a name asks the application to start forwarding it.
func (h *Host) Listen(name string, fn func(json.RawMessage)) (func(), error) {
	if name == "" {
		return nil, errors.New("event name is empty")
	}

	h.listenMu.Lock()
	h.nextListener++
	listenerID := h.nextListener
	first := len(h.listeners[name]) == 0
	if first {
		h.listeners[name] = make(map[uint64]func(json.RawMessage))
	}
	h.listeners[name][listenerID] = fn
	h.listenMu.Unlock()

	if first {
		h.notify(Frame{Type: FrameListen, Name: name})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.listenMu.Lock()
			delete(h.listeners[name], listenerID)
			last := len(h.listeners[name]) == 0
			if last {
				delete(h.listeners, name)
			}
			h.listenMu.Unlock()

			if last {
				h.notify(Frame{Type: FrameUnlisten, Name: name})
			}
		})
	}, nil
}

// notify sends a control frame if an application is attached
func (h *Host) notify(f Frame) {
	h.mu.RLock()
	s := h.current
	h.mu.RUnlock()
	if s != nil {
		h.enqueue(s, f)
	}
}

func (h *Host) deliver(name string, payload json.RawMessage) {
	h.listenMu.Lock()
	ids := make([]uint64, 0, len(h.listeners[name]))
	for listenerID := range h.listeners[name] {
		ids = append(ids, listenerID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(json.RawMessage), 0, len(ids))
	for _, listenerID := range ids {
		fns = append(fns, h.listeners[name][listenerID])
	}
	h.listenMu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

func (h *Host) listenerNames() []string {
	h.listenMu.Lock()
	defer h.listenMu.Unlock()

	names := make([]string, 0, len(h.listeners))
	for name := range h.listeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects the attached application
func (h *Host) Close() {
	h.mu.Lock()
	s := h.current
	h.current = nil
	h.mu.Unlock()

	if s != nil {
		s.close()
	}
}
