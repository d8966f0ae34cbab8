// ABOUTME: HTTP client for the remote exploration agent
// ABOUTME: Maps connection failures to ErrSessionEnded and parses replies with gjson

package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
)

// Defaults for the handshake and per-request timeout.
const (
	DefaultHandshakeAttempts = 10
	DefaultHandshakeInterval = 2 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
)

var (
	// ErrSessionEnded indicates the agent closed its endpoint, which is how
	// it signals that the session timed out.
	ErrSessionEnded = errors.New("exploration session ended remotely")

	// ErrAgentUnreachable indicates the handshake never succeeded.
	ErrAgentUnreachable = errors.New("exploration agent unreachable")

	// ErrBadResponse indicates a non-OK status or an unparseable body.
	ErrBadResponse = errors.New("unexpected response from exploration agent")
)

// Phase is the lifecycle position of a property execution.
type Phase string

// Execution phases.
const (
	PhaseStart Phase = "start"
	PhasePass  Phase = "pass"
	PhaseFail  Phase = "fail"
	PhaseError Phase = "error"
)

// ScriptEvent is the most recent property transition, echoed to the agent
// so its step log can be annotated.
type ScriptEvent struct {
	Name  string `json:"name"`
	Phase Phase  `json:"state"`
}

// InitOptions are sent once when a session starts.
type InitOptions struct {
	PackageNames    []string `json:"package_names"`
	TakeScreenshots bool     `json:"take_screenshots"`
	LogStamp        string   `json:"log_stamp"`
	RunningMinutes  int      `json:"running_minutes,omitempty"`
	ThrottleMillis  int64    `json:"throttle,omitempty"`
	ProfilePeriod   int      `json:"profile_period,omitempty"`
}

// StepRequest asks for one exploration step.
type StepRequest struct {
	Step         int      `json:"step"`
	BlockWidgets []string `json:"block_widgets"`
	BlockTrees   []string `json:"block_trees"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// NewClient creates a client for the agent listening at baseURL.
func NewClient(baseURL string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultRequestTimeout},
		logger:  logger.With("component", "agent"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the agent endpoint.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping checks that the agent is listening.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/ping", nil)
	return err
}

// WaitAlive pings up to attempts times, pausing interval between tries.
func (c *Client) WaitAlive(ctx context.Context, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = DefaultHandshakeAttempts
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		lastErr = c.Ping(ctx)
		if lastErr == nil {
			c.logger.Info("exploration agent is alive", "attempt", i)
			return nil
		}
		c.logger.Debug("waiting for exploration agent", "attempt", i, "error", lastErr)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrAgentUnreachable, attempts, lastErr)
}

// Init starts a session and returns the remote output directory.
func (c *Client) Init(ctx context.Context, opts InitOptions) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/init", opts)
	if err != nil {
		return "", err
	}
	dir := gjson.GetBytes(body, "result").String()
	if dir == "" {
		return "", fmt.Errorf("%w: init reply has no output directory", ErrBadResponse)
	}
	return dir, nil
}

// Step performs one exploration step and returns the UI hierarchy.
func (c *Client) Step(ctx context.Context, req StepRequest) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/step", req)
	if err != nil {
		return "", err
	}
	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return "", fmt.Errorf("%w: step reply has no result", ErrBadResponse)
	}
	return result.String(), nil
}

// Stop ends the session. A session that already ended is not an error.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/stop", nil)
	if errors.Is(err, ErrSessionEnded) {
		return nil
	}
	return err
}

// LogScript records ev in the agent's step log. Failures are logged and
// returned for the caller to ignore.
func (c *Client) LogScript(ctx context.Context, ev ScriptEvent) error {
	_, err := c.do(ctx, http.MethodPost, "/logScript", ev)
	if err != nil {
		c.logger.Warn("logScript not acknowledged", "property", ev.Name, "phase", ev.Phase, "error", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == nil && isConnectionError(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrSessionEnded, path, err)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrBadResponse, path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if len(bytes.TrimSpace(body)) > 0 && !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: %s reply is not JSON", ErrBadResponse, path)
	}
	return body, nil
}

// isConnectionError reports whether err means the agent endpoint is gone,
// as opposed to a slow or malformed reply.
func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
