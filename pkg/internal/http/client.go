// Package http is a minimal HTTP request helper for the probing channel:
// just enough of the teacher SDK's client (pkg/internal/http) to fire a
// single query-parameter-carrying request and read back the body. The
// JSON-body, streaming, and convenience-method surface of that client has
// no caller in an HTTP-probing core and was trimmed rather than kept dead.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultHTTPClient is a shared HTTP client with sensible defaults.
var DefaultHTTPClient = &http.Client{
	Timeout: 60 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	},
}

// Client wraps an HTTP client with a base URL and default headers.
type Client struct {
	client  *http.Client
	baseURL string
	headers map[string]string
}

// Config contains configuration for an HTTP client.
type Config struct {
	// BaseURL is the base URL for all requests.
	BaseURL string

	// Headers are default headers to send with all requests.
	Headers map[string]string

	// HTTPClient is the underlying HTTP client to use.
	// If nil, DefaultHTTPClient is used.
	HTTPClient *http.Client
}

// NewClient creates a new HTTP client with the given config.
func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = DefaultHTTPClient
	}
	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
		headers: cfg.Headers,
	}
}

// Request represents an HTTP request. Query values are form-urlencoded the
// way a target server's own query-string parser expects, since injected
// payloads routinely contain characters (base64's '+' among them) that are
// not safe to concatenate raw.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Query   map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do performs an HTTP request and reads the full response body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		target += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       respBody,
	}, nil
}
