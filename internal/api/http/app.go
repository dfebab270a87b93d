package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

// EmitRequest is the body of POST /events/emit
type EmitRequest struct {
	Name    string          `json:"name" binding:"required"`
	Payload json.RawMessage `json:"payload"`
}

// Windows lists the application's windows
func (h *Handlers) Windows(c *gin.Context) {
	windows, err := h.bridge.ListWindows()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"windows": windows})
}

// Commands lists application commands reachable through /invoke
func (h *Handlers) Commands(c *gin.Context) {
	commands, err := h.bridge.Commands()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": commands})
}

// State returns the application state
func (h *Handlers) State(c *gin.Context) {
	h.rawJSON(c, h.bridge.State)
}

// Config returns the application configuration
func (h *Handlers) Config(c *gin.Context) {
	h.rawJSON(c, h.bridge.AppConfig)
}

func (h *Handlers) rawJSON(c *gin.Context, fetch func() (json.RawMessage, error)) {
	raw, err := fetch()
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// EmitEvent emits an application event
func (h *Handlers) EmitEvent(c *gin.Context) {
	var req EmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	if err := h.bridge.EmitEvent(req.Name, req.Payload); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"event":   req.Name,
	})
}

// ListEvents returns the event names observed since startup
func (h *Handlers) ListEvents(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events":    h.bridge.EventNames(),
		"listeners": h.bridge.Listeners(),
	})
}
