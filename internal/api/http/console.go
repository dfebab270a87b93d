package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConsoleEntry is one console line pushed by an application
type ConsoleEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ConsoleBatch is the body of POST /console. Applications that cannot hold
// the host channel open push their console output this way.
type ConsoleBatch struct {
	Source  string         `json:"source"`
	Entries []ConsoleEntry `json:"entries" binding:"required"`
}

// consoleLevels maps accepted levels to the ones the console stream uses
var consoleLevels = map[string]string{
	"log":     "log",
	"info":    "info",
	"warn":    "warn",
	"warning": "warn",
	"error":   "error",
	"debug":   "debug",
	"verbose": "debug",
}

// PushConsole feeds a batch of console lines into the console stream
func (h *Handlers) PushConsole(c *gin.Context) {
	var req ConsoleBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	accepted := 0
	for _, entry := range req.Entries {
		if entry.Message == "" {
			continue
		}
		level, ok := consoleLevels[strings.ToLower(entry.Level)]
		if !ok {
			h.logger.Debug("Unknown console level, using log",
				zap.String("level", entry.Level),
				zap.String("source", req.Source))
			level = "log"
		}
		h.bridge.Console(level, entry.Message)
		accepted++
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"entries_received": len(req.Entries),
		"entries_accepted": accepted,
		"timestamp":        time.Now().Unix(),
	})
}
