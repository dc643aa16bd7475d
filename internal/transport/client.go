// Package transport is the HTTP client the gateway uses to reach the clinic API.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
)

// Response is a completed 2xx exchange.
type Response struct {
	Status int
	Data   []byte
}

// Error is returned for every failed call. Response is nil when the server was
// never reached (DNS, refused connection, timeout).
type Error struct {
	Method   string
	URL      string
	Response *Response
	Err      error
}

func (e *Error) Error() string {
	if e.Response != nil {
		return fmt.Sprintf("request failed with status code %d", e.Response.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// UnauthorizedHandler runs after a 401 cleared the stored credential.
type UnauthorizedHandler func(ctx context.Context)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL        string
	httpClient     *http.Client
	timeout        time.Duration
	store          identity.Store
	logger         *zap.Logger
	onUnauthorized UnauthorizedHandler
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds each request. It applies to a copy of the HTTP client,
// never to one passed through WithHTTPClient.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithUnauthorizedHandler(h UnauthorizedHandler) ClientOption {
	return func(c *Client) {
		c.onUnauthorized = h
	}
}

// NewClient creates a client for baseURL that reads its bearer credential from store.
func NewClient(baseURL string, store identity.Store, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Ping issues a HEAD against the base URL; any HTTP answer counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &Error{Method: method, URL: target, Err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("transport request failed",
			zap.String("method", method),
			zap.String("url", target),
			zap.Error(err),
		)
		return nil, &Error{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Method: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("transport request complete",
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	out := &Response{Status: resp.StatusCode, Data: data}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, nil
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.handleUnauthorized(ctx)
	}
	return nil, &Error{Method: method, URL: target, Response: out}
}

func (c *Client) token(ctx context.Context) string {
	if c.store == nil {
		return ""
	}
	token, ok, err := c.store.Get(ctx, identity.KeyToken)
	if err != nil {
		c.logger.Warn("read credential failed", zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	return token
}

func (c *Client) handleUnauthorized(ctx context.Context) {
	if c.store != nil {
		if err := c.store.Remove(ctx, identity.KeyToken); err != nil {
			c.logger.Warn("clear credential failed", zap.Error(err))
		}
	}
	c.logger.Info("credential rejected, session requires login")
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}
