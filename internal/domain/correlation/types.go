package correlation

import (
	"encoding/json"

	"github.com/GriffinCanCode/debugbridge/internal/shared/id"
)

// Outcome is the result of one bridged call as reported by the sandbox.
// Value is meaningful when Success is true, Error otherwise.
type Outcome struct {
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value"`
	Error   *string         `json:"error"`
}

// Callback is what the sandbox reports for a call id
type Callback struct {
	ID      id.CallID       `json:"id"`
	Success bool            `json:"success"`
	Value   json.RawMessage `json:"value,omitempty"`
	Error   *string         `json:"error,omitempty"`
}

// Outcome strips the correlation id
func (c Callback) Outcome() Outcome {
	value := c.Value
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return Outcome{Success: c.Success, Value: value, Error: c.Error}
}

// Succeeded builds a successful outcome carrying value
func Succeeded(value json.RawMessage) Outcome {
	if len(value) == 0 {
		value = json.RawMessage("null")
	}
	return Outcome{Success: true, Value: value}
}

// Failed builds a sandbox-reported failure
func Failed(message string) Outcome {
	return Outcome{Success: false, Value: json.RawMessage("null"), Error: &message}
}

// ErrorText returns the failure message, or "" for successes
func (o Outcome) ErrorText() string {
	if o.Error == nil {
		return ""
	}
	return *o.Error
}
