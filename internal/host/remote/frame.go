package remote

import (
	"encoding/json"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/host"
	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// Frame types sent by the bridge
const (
	FrameEval     = "eval"
	FrameEmit     = "emit"
	FrameListen   = "listen"
	FrameUnlisten = "unlisten"
)

// Frame types sent by the application
const (
	FrameEvalCallback = "eval_callback"
	FrameConsole      = "console"
	FrameEvent        = "event"
	FrameWindows      = "windows"
)

// Frame is one JSON message on the host channel. Which fields are set
// depends on Type.
type Frame struct {
	Type string `json:"type"`

	// eval
	Window string `json:"window,omitempty"`
	Code   string `json:"code,omitempty"`

	// eval_callback
	ID      id.CallID       `json:"id,omitempty"`
	Success bool            `json:"success,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Error   *string         `json:"error,omitempty"`

	// console
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// emit, listen, unlisten, event
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// windows
	Windows []host.WindowInfo `json:"windows,omitempty"`
}

// Callback extracts the eval outcome carried by an eval_callback frame
func (f Frame) Callback() correlation.Callback {
	return correlation.Callback{
		ID:      f.ID,
		Success: f.Success,
		Value:   f.Value,
		Error:   f.Error,
	}
}
