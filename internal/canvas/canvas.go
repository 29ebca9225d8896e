// Package canvas provides a client for the subset of the Canvas LMS
// REST API needed to read courses, assignments, submissions and files,
// and to post grades.  It handles bearer-token injection, Link-header
// pagination, rate limiting and retries on transient failures.
package canvas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the hosted Canvas instance used when no base
	// URL is configured.
	DefaultBaseURL = "https://canvas.instructure.com"

	apiRoot = "/api/v1"

	// perPage is the page size requested from listing endpoints.
	perPage = 100

	// defLimit is the default request rate, in requests per second.
	// Canvas throttles per-token; 5 rps stays well under its quota.
	defLimit = 5
)

// Client is a Canvas API client bound to one base URL and one access
// token.
type Client struct {
	cl      *http.Client
	baseURL string
	token   string

	lim     *rate.Limiter
	retries int
	lg      *slog.Logger
}

// Option is the functional option for the Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(cl *http.Client) Option {
	return func(c *Client) {
		if cl != nil {
			c.cl = cl
		}
	}
}

// WithLimiter overrides the built-in rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.lim = l
		}
	}
}

// WithRetries sets the number of attempts for each API call.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithLogger sets the logger.  A nil logger falls back to
// slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.lg = lg
		}
	}
}

// New creates a new Canvas client.  baseURL may be empty, in which case
// DefaultBaseURL is used.  token must not be empty.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("canvas: token is empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		cl:      http.DefaultClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		lim:     rate.NewLimiter(defLimit, 1),
		retries: defNumAttempts,
		lg:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the base URL the client is bound to.
func (cl *Client) BaseURL() string {
	return cl.baseURL
}

// apiURL builds an absolute URL for an API path with the given query.
func (cl *Client) apiURL(path string, q url.Values) string {
	u := cl.baseURL + apiRoot + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do executes one HTTP request with the auth header injected, mapping
// non-2xx responses to typed errors.  The caller owns the response body
// on success.
func (cl *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cl.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := cl.cl.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, StatusCodeError{
			Code:       resp.StatusCode,
			Status:     resp.Status,
			RetryAfter: retryAfter(resp),
		}
	}
	return resp, nil
}

// get performs a GET with retry on transient failures.
func (cl *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	var resp *http.Response
	err := withRetry(ctx, cl.lim, cl.retries, func() error {
		var err error
		resp, err = cl.do(ctx, http.MethodGet, rawURL, nil, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// getJSON fetches rawURL and decodes the body into v.
func (cl *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := cl.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// parseJSON decodes a response body into v.  The caller retains
// ownership of the body.
func (cl *Client) parseJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// getPaginated fetches every page of a listing endpoint, following the
// Link header until there is no rel="next" target.
func getPaginated[T any](ctx context.Context, cl *Client, path string, q url.Values) ([]T, error) {
	if q == nil {
		q = make(url.Values)
	}
	q.Set("per_page", fmt.Sprint(perPage))

	var all []T
	next := cl.apiURL(path, q)
	for next != "" {
		resp, err := cl.get(ctx, next)
		if err != nil {
			return nil, err
		}
		var page []T
		err = json.NewDecoder(resp.Body).Decode(&page)
		link := resp.Header.Get("Link")
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", next, err)
		}
		all = append(all, page...)
		next = nextLink(link)
	}
	return all, nil
}

// nextLink extracts the rel="next" target from an RFC 5988 Link header.
// It returns an empty string when there is no next page.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(sections[0]), "<>")
		for _, param := range sections[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}

// retryAfter parses the Retry-After header as a number of seconds.
func retryAfter(resp *http.Response) time.Duration {
	s := resp.Header.Get("Retry-After")
	if s == "" {
		return 0
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
