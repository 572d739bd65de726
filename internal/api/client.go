// Package api provides the HTTP transport to the fraud investigation backend.
package api

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
	"net/url"
	"strings"
	"time"

	wberrors "fraud-workbench/internal/errors"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every request when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// maxErrorBody limits how much of a failed response body is read for the message.
const maxErrorBody = 64 * 1024

// RequestObserver is notified after every request completes.
type RequestObserver func(method, endpoint string, status int, duration time.Duration, err error)

// Transport is the subset of the client used by domain packages.
type Transport interface {
	Get(ctx context.Context, path string, query Query) ([]byte, error)
	Post(ctx context.Context, path string, body any) ([]byte, error)
}

// Client handles API communication with the investigation backend.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	apiKey       string
	apiKeyHeader string
	logger       *slog.Logger
	observer     RequestObserver
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithAPIKey sends key in header on every request.
func WithAPIKey(header, key string) Option {
	return func(c *Client) {
		c.apiKeyHeader = header
		c.apiKey = key
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver registers a request observer (metrics).
func WithObserver(o RequestObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient replaces the underlying http.Client. The configured timeout
// is kept unless the replacement sets its own.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Timeout == 0 {
			hc.Timeout = c.httpClient.Timeout
		}
		c.httpClient = hc
	}
}

// NewClient creates a new API client for baseURL (e.g. http://localhost:5005/api).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		apiKeyHeader: "X-API-Key",
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API base the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get issues a GET and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string, query Query) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, target, nil)
}

// Post marshals body (validating struct bodies first) and issues a POST.
// A nil body sends no payload.
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		if err := validateBody(body); err != nil {
			return nil, wberrors.Validation("POST "+path, err.Error())
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, wberrors.Wrap("POST "+path, wberrors.KindValidation, fmt.Errorf("failed to encode request: %w", err))
		}
		payload = data
	}
	return c.do(ctx, http.MethodPost, path, c.baseURL+path, payload)
}

// GetJSON issues a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query Query, out any) error {
	return GetJSONFrom(ctx, c, path, query, out)
}

// PostJSON issues a POST and decodes the JSON response into out (may be nil).
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return PostJSONTo(ctx, c, path, in, out)
}

// DecodeJSON decodes a response body returned by Get or Post. An empty body
// leaves out untouched.
func DecodeJSON(op string, body []byte, out any) error {
	return decode(op, body, out)
}

func decode(op string, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &wberrors.Error{Op: op, Kind: wberrors.KindServer, Message: "invalid response body", Err: err}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, target string, payload []byte) ([]byte, error) {
	op := method + " " + path
	start := time.Now()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, wberrors.Wrap(op, wberrors.KindValidation, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		werr := classifyTransportError(ctx, op, err)
		c.observe(method, path, 0, start, werr)
		c.logger.Debug("request failed", "op", op, "error", err)
		return nil, werr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		werr := wberrors.Server(op, resp.StatusCode, errorMessage(data, resp.Status))
		c.observe(method, path, resp.StatusCode, start, werr)
		c.logger.Debug("request rejected", "op", op, "status", resp.StatusCode)
		return nil, werr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		werr := classifyTransportError(ctx, op, err)
		c.observe(method, path, resp.StatusCode, start, werr)
		return nil, werr
	}

	c.observe(method, path, resp.StatusCode, start, nil)
	return data, nil
}

func (c *Client) observe(method, path string, status int, start time.Time, err error) {
	if c.observer != nil {
		c.observer(method, Endpoint(path), status, time.Since(start), err)
	}
}

// Endpoint reduces a request path to a low-cardinality label: the first two
// path segments ("/neo4j/graph/account/123" -> "/neo4j/graph").
func Endpoint(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

func classifyTransportError(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return wberrors.Wrap(op, wberrors.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return wberrors.Wrap(op, wberrors.KindTimeout, err)
	}
	return wberrors.Wrap(op, wberrors.KindNetwork, err)
}

// errorMessage extracts a user-facing message from a failed response body.
// The backend uses {"message": ...} (JSON handlers) and {"description": ...}
// (aborted requests).
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Description != "":
			return payload.Description
		case payload.Error != "":
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" || strings.HasPrefix(text, "<") {
		return fallback
	}
	if r := []rune(text); len(r) > 200 {
		text = string(r[:197]) + "..."
	}
	return text
}

// PathEscape escapes an id for use as a single path segment.
func PathEscape(id string) string {
	return url.PathEscape(id)
}

// GetJSONFrom issues a GET on any Transport and decodes the response.
func GetJSONFrom(ctx context.Context, t Transport, path string, query Query, out any) error {
	body, err := t.Get(ctx, path, query)
	if err != nil {
		return err
	}
	return decode("GET "+path, body, out)
}

// PostJSONTo issues a POST on any Transport and decodes the response into
// out (may be nil).
func PostJSONTo(ctx context.Context, t Transport, path string, in, out any) error {
	body, err := t.Post(ctx, path, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decode("POST "+path, body, out)
}
