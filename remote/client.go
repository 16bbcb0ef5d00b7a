package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/goliatone/go-refcache/entitycache"
	"github.com/goliatone/go-refcache/query"
)

// RequestIDHeader carries a per-request uuid for correlating client and server logs.
const RequestIDHeader = "X-Request-Id"

// maxErrorBody caps how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Client speaks the remote store's HTTP protocol. It performs no retries;
// every failure is returned to the caller as is.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	headers   map[string]string
	logger    *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Config.Timeout is then ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates cfg and creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}

	c := &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		headers:   cfg.Headers,
		logger:    slog.New(slog.DiscardHandler),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchIndex returns one page of identifiers: GET /{collection}/paginate?{params}.
func (c *Client) FetchIndex(ctx context.Context, collection string, params url.Values) (query.PageIndex, error) {
	u := c.endpoint(url.PathEscape(collection), "paginate")
	u.RawQuery = params.Encode()

	var page query.PageIndex
	if err := c.do(ctx, http.MethodGet, u, nil, &page); err != nil {
		return query.PageIndex{}, err
	}
	if page.IDs == nil {
		page.IDs = []string{}
	}
	return page, nil
}

// FetchBatch returns the requested documents keyed by id:
// GET /{collection}/get/{id1,id2,...}?fields=a,b. Ids the store does not know
// are simply absent from the result. An empty fields list requests full documents.
func (c *Client) FetchBatch(ctx context.Context, collection string, ids []string, fields []string) (map[string]entitycache.Entity, error) {
	if len(ids) == 0 {
		return map[string]entitycache.Entity{}, nil
	}

	escaped := make([]string, len(ids))
	for i, id := range ids {
		escaped[i] = url.PathEscape(id)
	}

	u := c.endpoint(url.PathEscape(collection), "get", strings.Join(escaped, ","))
	if len(fields) > 0 {
		u.RawQuery = url.Values{"fields": {strings.Join(fields, ",")}}.Encode()
	}

	out := map[string]entitycache.Entity{}
	if err := c.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create posts a new document: POST /{collection}.
func (c *Client) Create(ctx context.Context, collection string, body any) (entitycache.Entity, error) {
	var out entitycache.Entity
	if err := c.do(ctx, http.MethodPost, c.endpoint(url.PathEscape(collection)), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces fields of a document: PUT /{collection}/{id}.
func (c *Client) Update(ctx context.Context, collection, id string, body any) (entitycache.Entity, error) {
	var out entitycache.Entity
	if err := c.do(ctx, http.MethodPut, c.endpoint(url.PathEscape(collection), url.PathEscape(id)), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a document: DELETE /{collection}/{id}.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	return c.do(ctx, http.MethodDelete, c.endpoint(url.PathEscape(collection), url.PathEscape(id)), nil, nil)
}

// endpoint appends already escaped segments to the base URL.
func (c *Client) endpoint(segments ...string) *url.URL {
	u := *c.baseURL
	raw := strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + "/" + strings.Join(segments, "/")
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path = p
		u.RawPath = raw
	}
	return &u
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("remote: rate limit: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("remote: create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "remote request failed",
			"method", method,
			"path", u.Path,
			"request_id", requestID,
			"error", err,
		)
		return fmt.Errorf("remote: %s %s: %w", method, u.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.DebugContext(ctx, "remote request",
		"method", method,
		"path", u.Path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       u.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			RequestID:  requestID,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, method, u.Path, err)
	}
	return nil
}
