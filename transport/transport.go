package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/c360/sparqlgate/errors"
)

const (
	// StatusAllShapesFailed is the synthetic status reported when every
	// request shape has been exhausted without a usable response.
	StatusAllShapesFailed = 599

	// bodyTruncate bounds how much of an error response body is kept
	// for diagnostics.
	bodyTruncate = 2000

	defaultUserAgent = "sparqlgate/1.0"
)

// Shape identifies one way of submitting a query to an endpoint.
type Shape struct {
	Method     string
	FormatJSON bool
}

// Name returns a short label for logs and diagnostics.
func (s Shape) Name() string {
	if s.FormatJSON {
		return strings.ToLower(s.Method) + "+format"
	}
	return strings.ToLower(s.Method)
}

// shapes is the fallback order. POST without a format parameter is the
// standards-compliant shape, so it goes first.
var shapes = []Shape{
	{Method: http.MethodPost},
	{Method: http.MethodPost, FormatJSON: true},
	{Method: http.MethodGet},
	{Method: http.MethodGet, FormatJSON: true},
}

// Value is a single RDF term from a result binding.
type Value struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	XMLLang  string `json:"xml:lang,omitempty"`
}

// Response holds a parsed SPARQL JSON result set.
type Response struct {
	Status  int
	Shape   Shape
	Vars    []string
	Rows    []map[string]Value
	Boolean *bool
	Elapsed time.Duration
}

// RowCount returns the number of result rows.
func (r *Response) RowCount() int {
	return len(r.Rows)
}

// sparqlJSON mirrors the SPARQL 1.1 JSON results format.
type sparqlJSON struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results *struct {
		Bindings []map[string]Value `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

// StatusError reports a failed execution. Status is the synthetic
// all-shapes-failed code when every shape was tried; LastStatus and
// LastBody preserve the most recent real endpoint response so rate
// limits and server errors stay observable to callers.
type StatusError struct {
	Status     int
	LastStatus int
	LastBody   string
	LastShape  string
	Timeout    bool
}

func (e *StatusError) Error() string {
	if e.Timeout && e.LastStatus == 0 {
		return fmt.Sprintf("sparql request failed (status %d): all request shapes timed out", e.Status)
	}
	return fmt.Sprintf("sparql request failed (status %d): last shape %s returned %d: %s",
		e.Status, e.LastShape, e.LastStatus, e.LastBody)
}

// Unwrap maps the failure onto a domain sentinel so errors.Classify
// works without string matching.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Timeout && e.LastStatus == 0:
		return errors.ErrQueryTimeout
	case e.LastStatus == http.StatusTooManyRequests:
		return errors.ErrRateLimited
	case e.LastStatus >= 500:
		return errors.ErrEndpointError
	default:
		return errors.ErrAllShapesFailed
	}
}

// RateLimited reports whether the last real response was a 429.
func (e *StatusError) RateLimited() bool {
	return e.LastStatus == http.StatusTooManyRequests
}

// Client executes queries against a single SPARQL endpoint.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header on outgoing requests.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithLogger sets the logger used for per-shape diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a Client for the given endpoint URL.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "transport", "New", "validate endpoint URL")
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, errors.WrapInvalid(err, "transport", "New", "parse endpoint URL")
	}
	c := &Client{
		endpoint:   endpoint,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute runs query against the endpoint, trying each request shape
// until one succeeds. timeout bounds each individual attempt. On total
// failure the returned error is a *StatusError with the synthetic
// all-shapes-failed status.
func (c *Client) Execute(ctx context.Context, query string, timeout time.Duration) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.WrapInvalid(errors.ErrQueryEmpty, "transport", "Execute", "validate query")
	}

	failure := &StatusError{Status: StatusAllShapesFailed}
	for _, shape := range shapes {
		if err := ctx.Err(); err != nil {
			failure.Timeout = true
			return nil, failure
		}

		resp, err := c.attempt(ctx, shape, query, timeout)
		if err == nil {
			return resp, nil
		}

		var se *shapeError
		if stderrors.As(err, &se) {
			if se.status > 0 {
				failure.LastStatus = se.status
				failure.LastBody = se.body
				failure.Timeout = false
			} else {
				failure.Timeout = true
			}
			failure.LastShape = shape.Name()
		}
		c.log.Debug("request shape failed",
			"shape", shape.Name(),
			"status", failure.LastStatus,
			"error", err)
	}
	return nil, failure
}

// shapeError records a single failed attempt. status 0 means the
// request never produced a response (timeout or transport error).
type shapeError struct {
	status int
	body   string
	err    error
}

func (e *shapeError) Error() string {
	if e.status == 0 {
		return fmt.Sprintf("request failed: %v", e.err)
	}
	return fmt.Sprintf("endpoint returned %d: %s", e.status, e.body)
}

func (c *Client) attempt(ctx context.Context, shape Shape, query string, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(attemptCtx, shape, query)
	if err != nil {
		return nil, &shapeError{err: err}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &shapeError{err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return nil, &shapeError{err: err}
	}

	if httpResp.StatusCode >= 400 {
		return nil, &shapeError{status: httpResp.StatusCode, body: truncate(string(body), bodyTruncate)}
	}

	var parsed sparqlJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &shapeError{status: httpResp.StatusCode,
			body: "unparseable response body: " + truncate(string(body), bodyTruncate)}
	}

	resp := &Response{
		Status:  httpResp.StatusCode,
		Shape:   shape,
		Vars:    parsed.Head.Vars,
		Boolean: parsed.Boolean,
		Elapsed: time.Since(start),
	}
	if parsed.Results != nil {
		resp.Rows = parsed.Results.Bindings
	}
	return resp, nil
}

func (c *Client) buildRequest(ctx context.Context, shape Shape, query string) (*http.Request, error) {
	params := url.Values{"query": {query}}
	if shape.FormatJSON {
		params.Set("format", "json")
	}

	var req *http.Request
	var err error
	switch shape.Method {
	case http.MethodPost:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
			strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet,
			c.endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/sparql-results+json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
