package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
)

// Stream paths
const (
	StreamConsole = "/console"
	StreamErrors  = "/errors"
	StreamLogs    = "/logs"
	StreamEvents  = "/events/listen"
)

// ErrStreamClosed is returned when the bridge ends a stream on purpose
var ErrStreamClosed = errors.New("stream closed by bridge")

// Stream calls fn with every text frame of a stream until ctx is done, fn
// fails, or the bridge closes the stream
func (c *Client) Stream(ctx context.Context, path string, query url.Values, fn func([]byte) error) error {
	u, err := url.Parse(c.opts.BaseURL + path)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = query.Encode()

	header := http.Header{}
	if c.opts.Token != "" {
		header.Set(auth.HeaderName, c.opts.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return streamError(resp)
		}
		return fmt.Errorf("connect to %s: %w", path, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.CloseNormalClosure {
					return nil
				}
				return fmt.Errorf("%w: %s (%d)", ErrStreamClosed, strings.TrimSpace(ce.Text), ce.Code)
			}
			return err
		}
		if err := fn(data); err != nil {
			return err
		}
	}
}

func streamError(resp *http.Response) error {
	defer resp.Body.Close()
	e := &APIError{Status: resp.StatusCode, Category: http.StatusText(resp.StatusCode)}
	var body APIError
	if err := decodeJSON(resp, &body); err == nil && body.Category != "" {
		e.Category, e.Detail = body.Category, body.Detail
	}
	return e
}
