// Package host defines the boundary between the bridge and the application
// that owns the sandboxed windows.
package host

import (
	"encoding/json"
	"errors"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
)

var (
	// ErrWindowNotFound is returned by Eval for an unknown window label
	ErrWindowNotFound = errors.New("window not found")

	// ErrNotConnected is returned while no application is attached
	ErrNotConnected = errors.New("no application connected")

	// ErrNotSupported is returned for capabilities a host lacks
	ErrNotSupported = errors.New("not supported by host")
)

// WindowInfo describes one application window
type WindowInfo struct {
	Label   string `json:"label"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Visible bool   `json:"is_visible"`
	Focused bool   `json:"is_focused"`
}

// Host is the application runtime owning the sandboxed windows.
//
// Eval is one-way: a nil error means the code was accepted for injection,
// not that it ran. Results come back through the attached Sink.
type Host interface {
	Attach(sink Sink)
	Eval(window, code string) error
	Windows() ([]WindowInfo, error)
	Emit(name string, payload json.RawMessage) error
	Listen(name string, fn func(json.RawMessage)) (unlisten func(), err error)
}

// Sink receives what the sandbox sends back unprompted
type Sink interface {
	EvalCallback(cb correlation.Callback)
	Console(level, message string)
}

// Command describes an application command reachable through invoke
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CommandLister is implemented by hosts that know their commands
type CommandLister interface {
	Commands() ([]Command, error)
}

// StateProvider is implemented by hosts that can dump application state
type StateProvider interface {
	State() (json.RawMessage, error)
}

// ConfigProvider is implemented by hosts that can expose their configuration
type ConfigProvider interface {
	AppConfig() (json.RawMessage, error)
}
