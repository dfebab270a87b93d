package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apihttp "github.com/GriffinCanCode/debugbridge/internal/api/http"
	"github.com/GriffinCanCode/debugbridge/internal/domain/bridge"
	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
	"github.com/GriffinCanCode/debugbridge/internal/host/remote"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/logging"
	"github.com/GriffinCanCode/debugbridge/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxClientMessage bounds what stream clients may send; they only
	// send control frames
	maxClientMessage = 512
)

// Requests are already gated by the bridge token, so any origin may connect
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler manages WebSocket connections
type Handler struct {
	bridge *bridge.Bridge
	relay  *relay.Relay
	remote *remote.Host

	logger  *zap.Logger
	metrics *monitoring.Metrics
}

// NewHandler creates a new WebSocket handler
func NewHandler(b *bridge.Bridge, r *relay.Relay) *Handler {
	return &Handler{
		bridge: b,
		relay:  r,
		logger: zap.NewNop(),
	}
}

// WithRemote enables the /host channel
func (h *Handler) WithRemote(host *remote.Host) *Handler {
	h.remote = host
	return h
}

// WithLogger sets the logger
func (h *Handler) WithLogger(logger *zap.Logger) *Handler {
	if logger != nil {
		h.logger = logger.Named("ws")
	}
	return h
}

// WithMetrics counts connections and messages
func (h *Handler) WithMetrics(metrics *monitoring.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// Register mounts the stream routes on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/console", h.Console)
	r.GET("/errors", h.Errors)
	r.GET("/logs", h.Logs)
	r.GET("/events/listen", h.Events)
	r.GET("/host", h.Host)
}

// Console streams every console line
func (h *Handler) Console(c *gin.Context) {
	h.stream(c, "console", func(ctx context.Context) (*relay.Subscription, error) {
		return h.bridge.SubscribeConsole(ctx, false)
	})
}

// Errors streams console lines logged at error level
func (h *Handler) Errors(c *gin.Context) {
	h.stream(c, "errors", func(ctx context.Context) (*relay.Subscription, error) {
		return h.bridge.SubscribeConsole(ctx, true)
	})
}

// Logs streams the bridge's own log entries at or above ?level=
// (default info)
func (h *Handler) Logs(c *gin.Context) {
	minLevel := zapcore.InfoLevel
	if raw := c.Query("level"); raw != "" {
		lvl, err := logging.ParseLevel(raw)
		if err != nil {
			h.fail(c, bridge.MalformedInput("unknown log level %q", raw))
			return
		}
		minLevel = lvl
	}

	h.stream(c, "logs", func(ctx context.Context) (*relay.Subscription, error) {
		return h.relay.Subscribe(ctx, relay.StreamLogs, func(m relay.Message) bool {
			return logging.AtLeast(m.Name, minLevel)
		})
	})
}

// Events streams payloads of the application event named by ?name=
func (h *Handler) Events(c *gin.Context) {
	name := c.Query("name")
	h.stream(c, "events", func(ctx context.Context) (*relay.Subscription, error) {
		return h.bridge.SubscribeEvents(ctx, name)
	})
}

// Host accepts the application side of the remote host channel
func (h *Handler) Host(c *gin.Context) {
	if h.remote == nil {
		h.fail(c, bridge.ErrNotSupported)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("route", "host"), zap.Error(err))
		return
	}
	h.connected("host")
	defer h.disconnected("host")

	if err := h.remote.Serve(c.Request.Context(), conn); err != nil {
		h.logger.Debug("Host channel ended", zap.Error(err))
	}
}

// stream subscribes before upgrading so a bad request still gets a plain
// HTTP error, then forwards each message payload as one text frame
func (h *Handler) stream(c *gin.Context, route string, subscribe func(context.Context) (*relay.Subscription, error)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := subscribe(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("route", route), zap.Error(err))
		return
	}
	defer conn.Close()

	h.connected(route)
	defer h.disconnected(route)
	log := h.logger.With(zap.String("route", route), zap.String("sub_id", sub.ID().String()))
	log.Debug("Stream opened")

	// The client only sends control frames; reading detects its close
	go func() {
		defer cancel()
		conn.SetReadLimit(maxClientMessage)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				h.closeStream(conn, sub.Err())
				log.Debug("Stream closed", zap.Error(sub.Err()))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
				log.Debug("Stream write failed", zap.Error(err))
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSMessage("out", route)
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeStream tells the client why its subscription ended
func (h *Handler) closeStream(conn *websocket.Conn, reason error) {
	code, text := websocket.CloseNormalClosure, ""
	switch {
	case errors.Is(reason, relay.ErrSlowSubscriber):
		code, text = websocket.CloseTryAgainLater, reason.Error()
	case errors.Is(reason, relay.ErrClosed):
		code, text = websocket.CloseGoingAway, "bridge shutting down"
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// fail answers a request that was never upgraded
func (h *Handler) fail(c *gin.Context, err error) {
	category := bridge.CategoryOf(err)
	if category == bridge.CategoryInternal {
		h.logger.Error("Stream setup failed", zap.Error(err))
	}
	c.AbortWithStatusJSON(apihttp.StatusFor(category), gin.H{
		"error":  string(category),
		"detail": bridge.DetailOf(err),
	})
}

func (h *Handler) connected(route string) {
	if h.metrics != nil {
		h.metrics.IncWSConnections(route)
	}
}

func (h *Handler) disconnected(route string) {
	if h.metrics != nil {
		h.metrics.DecWSConnections(route)
	}
}
