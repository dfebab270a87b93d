package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/GriffinCanCode/debugbridge/internal/domain/auth"
)

// Version is the client's own version, sent as the User-Agent
var Version = "0.3.0"

// SupportedServers is the range of bridge versions this client speaks to
const SupportedServers = ">= 0.3.0, < 1.0.0"

// ErrIncompatible is returned by CheckVersion for an unsupported server
var ErrIncompatible = errors.New("incompatible bridge version")

// Options configures a Client
type Options struct {
	BaseURL string
	Token   string

	// Timeout bounds one HTTP request. Calls that carry their own
	// timeout_ms get that plus a margin.
	Timeout time.Duration

	// Retries applies to idempotent reads only; eval and actions are
	// never replayed
	Retries int
}

// Client talks to one running bridge
type Client struct {
	opts  Options
	resty *resty.Client
	probe *retryablehttp.Client
}

// New creates a client
func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}

	probe := retryablehttp.NewClient()
	probe.RetryMax = 4
	probe.RetryWaitMin = 100 * time.Millisecond
	probe.RetryWaitMax = 2 * time.Second
	probe.Logger = nil

	r := resty.New()
	r.SetBaseURL(opts.BaseURL).
		SetHeader("User-Agent", "bridgectl/"+Version).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryReads)
	if opts.Token != "" {
		r.SetHeader(auth.HeaderName, opts.Token)
	}
	r.JSONMarshal = sonic.Marshal
	r.JSONUnmarshal = sonic.Unmarshal

	// Share the pooled transport between both clients
	r.SetTransport(probe.HTTPClient.Transport)

	return &Client{opts: opts, resty: r, probe: probe}
}

// retryReads retries GETs that failed in transit or hit a busy server
func retryReads(resp *resty.Response, err error) bool {
	if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	switch resp.StatusCode() {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// BaseURL returns the bridge address
func (c *Client) BaseURL() string {
	return c.opts.BaseURL
}

// ============================================================================
// Errors
// ============================================================================

// APIError is a non-2xx response from the bridge
type APIError struct {
	Status   int    `json:"-"`
	Category string `json:"error"`
	Detail   string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail == "" || e.Detail == e.Category {
		return fmt.Sprintf("%s (HTTP %d)", e.Category, e.Status)
	}
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Category, e.Detail, e.Status)
}

// IsCategory reports whether err is an APIError of category
func IsCategory(err error, category string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Category == category
}

func apiError(resp *resty.Response) error {
	e := &APIError{Status: resp.StatusCode()}
	if err := sonic.Unmarshal(resp.Body(), e); err != nil || e.Category == "" {
		e.Category = http.StatusText(resp.StatusCode())
		e.Detail = strings.TrimSpace(string(resp.Body()))
	}
	return e
}

// ============================================================================
// Health and version
// ============================================================================

// Health is the body of GET /health
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health checks that the bridge is up, retrying while it starts
func (c *Client) Health(ctx context.Context) (Health, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+"/health", nil)
	if err != nil {
		return Health{}, err
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("bridge at %s is not reachable: %w", c.opts.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, fmt.Errorf("bridge health check returned %s", resp.Status)
	}
	var h Health
	if err := decodeJSON(resp, &h); err != nil {
		return Health{}, fmt.Errorf("decode health: %w", err)
	}
	return h, nil
}

// CheckVersion fails when serverVersion is outside SupportedServers.
// Unparseable versions are accepted.
func CheckVersion(serverVersion string) error {
	v, err := semver.NewVersion(serverVersion)
	if err != nil {
		return nil
	}
	constraint, err := semver.NewConstraint(SupportedServers)
	if err != nil {
		return err
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: bridge is %s, client supports %s", ErrIncompatible, v, SupportedServers)
	}
	return nil
}

func decodeJSON(resp *http.Response, v any) error {
	return sonic.ConfigDefault.NewDecoder(resp.Body).Decode(v)
}
