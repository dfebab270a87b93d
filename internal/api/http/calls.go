package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/tracing"
)

// EvalRequest is the body of POST /eval
type EvalRequest struct {
	Code      string `json:"code" binding:"required"`
	Window    string `json:"window"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// ClickRequest is the body of POST /click
type ClickRequest struct {
	Selector  string `json:"selector" binding:"required"`
	Window    string `json:"window"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// FillRequest is the body of POST /fill
type FillRequest struct {
	Selector  string `json:"selector" binding:"required"`
	Text      string `json:"text"`
	Window    string `json:"window"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// InvokeRequest is the body of POST /invoke
type InvokeRequest struct {
	Command   string          `json:"command" binding:"required"`
	Args      json.RawMessage `json:"args"`
	Window    string          `json:"window"`
	TimeoutMS int64           `json:"timeout_ms"`
}

// Eval runs JavaScript in a window
func (h *Handlers) Eval(c *gin.Context) {
	var req EvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	timeout, err := timeoutFrom(req.TimeoutMS)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.bridge.Call(c.Request.Context(), req.Window, req.Code, timeout)
	h.respondOutcome(c, outcome, err)
}

// Click clicks an element by ref, XPath or CSS selector
func (h *Handlers) Click(c *gin.Context) {
	var req ClickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	timeout, err := timeoutFrom(req.TimeoutMS)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.bridge.Click(c.Request.Context(), req.Window, req.Selector, timeout)
	h.respondOutcome(c, outcome, err)
}

// Fill types text into an element
func (h *Handlers) Fill(c *gin.Context) {
	var req FillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	timeout, err := timeoutFrom(req.TimeoutMS)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.bridge.Fill(c.Request.Context(), req.Window, req.Selector, req.Text, timeout)
	h.respondOutcome(c, outcome, err)
}

// Invoke calls an application command through the sandbox IPC
func (h *Handlers) Invoke(c *gin.Context) {
	var req InvokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	timeout, err := timeoutFrom(req.TimeoutMS)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	outcome, err := h.bridge.Invoke(c.Request.Context(), req.Window, req.Command, req.Args, timeout)
	h.respondOutcome(c, outcome, err)
}

// Snapshot returns the accessibility tree of a window
func (h *Handlers) Snapshot(c *gin.Context) {
	interactive, err := queryBool(c, "interactive")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	resp, err := h.bridge.Snapshot(c.Request.Context(), c.Query("window"), interactive)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Screenshot returns the window as an image body
func (h *Handlers) Screenshot(c *gin.Context) {
	img, err := h.bridge.Screenshot(c.Request.Context(), c.Query("window"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

// respondOutcome writes the outcome as-is. Failures thrown by the sandbox
// are still 200 with success false.
func (h *Handlers) respondOutcome(c *gin.Context, outcome correlation.Outcome, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	tracing.Annotate(c.Request.Context(), zap.Bool("success", outcome.Success))
	c.JSON(http.StatusOK, outcome)
}

func queryBool(c *gin.Context, key string) (bool, error) {
	v := c.Query(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}
