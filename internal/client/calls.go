package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/GriffinCanCode/debugbridge/internal/domain/correlation"
	"github.com/GriffinCanCode/debugbridge/internal/domain/snapshot"
	"github.com/GriffinCanCode/debugbridge/internal/host"
)

// callMargin is added to a call's own timeout so the bridge answers with
// its timeout error before the HTTP request gives up
const callMargin = 5 * time.Second

// Target selects the window and timeout of a call. Zero values use the
// bridge defaults.
type Target struct {
	Window  string
	Timeout time.Duration
}

func (t Target) body(fields map[string]any) map[string]any {
	if t.Window != "" {
		fields["window"] = t.Window
	}
	if t.Timeout > 0 {
		fields["timeout_ms"] = t.Timeout.Milliseconds()
	}
	return fields
}

// request builds a request bounded by the client timeout, or by
// callTimeout plus a margin when that is longer
func (c *Client) request(ctx context.Context, callTimeout time.Duration) (*resty.Request, context.CancelFunc) {
	limit := c.opts.Timeout
	if callTimeout > 0 && callTimeout+callMargin > limit {
		limit = callTimeout + callMargin
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	return c.resty.R().SetContext(ctx), cancel
}

func (c *Client) do(req *resty.Request, method, path string, out any) error {
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return apiError(resp)
	}
	return nil
}

func (c *Client) call(ctx context.Context, path string, t Target, fields map[string]any) (correlation.Outcome, error) {
	req, cancel := c.request(ctx, t.Timeout)
	defer cancel()

	var outcome correlation.Outcome
	err := c.do(req.SetBody(t.body(fields)), http.MethodPost, path, &outcome)
	return outcome, err
}

// Eval runs code in a window
func (c *Client) Eval(ctx context.Context, t Target, code string) (correlation.Outcome, error) {
	return c.call(ctx, "/eval", t, map[string]any{"code": code})
}

// Click clicks by "@eN" ref, "xpath=" expression or CSS selector
func (c *Client) Click(ctx context.Context, t Target, selector string) (correlation.Outcome, error) {
	return c.call(ctx, "/click", t, map[string]any{"selector": selector})
}

// Fill sets an input's value
func (c *Client) Fill(ctx context.Context, t Target, selector, text string) (correlation.Outcome, error) {
	return c.call(ctx, "/fill", t, map[string]any{"selector": selector, "text": text})
}

// Invoke calls an application command
func (c *Client) Invoke(ctx context.Context, t Target, command string, args json.RawMessage) (correlation.Outcome, error) {
	fields := map[string]any{"command": command}
	if len(args) > 0 {
		fields["args"] = args
	}
	return c.call(ctx, "/invoke", t, fields)
}

// Snapshot fetches a window's accessibility tree
func (c *Client) Snapshot(ctx context.Context, window string, interactiveOnly bool) (snapshot.Response, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	if window != "" {
		req.SetQueryParam("window", window)
	}
	if interactiveOnly {
		req.SetQueryParam("interactive", strconv.FormatBool(true))
	}
	var resp snapshot.Response
	err := c.do(req, http.MethodGet, "/snapshot", &resp)
	return resp, err
}

// Screenshot returns the image bytes and their content type
func (c *Client) Screenshot(ctx context.Context, window string) ([]byte, string, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	if window != "" {
		req.SetQueryParam("window", window)
	}
	resp, err := req.Get("/screenshot")
	if err != nil {
		return nil, "", err
	}
	if resp.IsError() {
		return nil, "", apiError(resp)
	}
	return resp.Body(), resp.Header().Get("Content-Type"), nil
}

// Windows lists the application's windows
func (c *Client) Windows(ctx context.Context) ([]host.WindowInfo, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	var out struct {
		Windows []host.WindowInfo `json:"windows"`
	}
	err := c.do(req, http.MethodGet, "/windows", &out)
	return out.Windows, err
}

// Commands lists application commands
func (c *Client) Commands(ctx context.Context) ([]host.Command, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	var out struct {
		Commands []host.Command `json:"commands"`
	}
	err := c.do(req, http.MethodGet, "/commands", &out)
	return out.Commands, err
}

// State returns the application state
func (c *Client) State(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, "/state")
}

// AppConfig returns the application configuration
func (c *Client) AppConfig(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, "/config")
}

// Stats returns the bridge's /stats document
func (c *Client) Stats(ctx context.Context) (json.RawMessage, error) {
	return c.raw(ctx, "/stats")
}

func (c *Client) raw(ctx context.Context, path string) (json.RawMessage, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, apiError(resp)
	}
	return json.RawMessage(resp.Body()), nil
}

// Emit emits an application event
func (c *Client) Emit(ctx context.Context, name string, payload json.RawMessage) error {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	body := map[string]any{"name": name}
	if len(payload) > 0 {
		body["payload"] = payload
	}
	return c.do(req.SetBody(body), http.MethodPost, "/events/emit", nil)
}

// EventNames lists events observed since the bridge started
func (c *Client) EventNames(ctx context.Context) ([]string, error) {
	req, cancel := c.request(ctx, 0)
	defer cancel()

	var out struct {
		Events []string `json:"events"`
	}
	err := c.do(req, http.MethodGet, "/events/list", &out)
	return out.Events, err
}
