package engine

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/metrics"
)

// HTTPConfig contains HTTP client configuration.
type HTTPConfig struct {
	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPConfig returns sensible defaults for load testing.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient builds the http.Client shared by all simulated users.
func NewHTTPClient(cfg HTTPConfig) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// Request describes one call made through a Client.
type Request struct {
	Method string
	Path   string

	// Name is the label the sample is reported under. Requests without a
	// name count towards the totals but get no row of their own.
	Name string

	// Body is encoded as JSON when non-nil.
	Body any
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the status code is 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client issues named requests against the target host and records every
// call in the metrics engine.
//
// A Client is immutable; WithBearer returns a copy, so the shared client
// can be specialised per user.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Engine
	header  http.Header
}

// NewClient creates a client for host.
func NewClient(host string, httpClient *http.Client, metricsEngine *metrics.Engine) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultHTTPConfig())
	}
	return &Client{
		baseURL: strings.TrimRight(host, "/"),
		http:    httpClient,
		metrics: metricsEngine,
		header:  make(http.Header),
	}
}

// WithBearer returns a copy of c that sends token as a bearer credential.
func (c *Client) WithBearer(token string) *Client {
	cp := *c
	cp.header = c.header.Clone()
	cp.header.Set("Authorization", "Bearer "+token)
	return &cp
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, path, name string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Name: name})
}

// Post issues a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path, name string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Name: name, Body: body})
}

// Do executes req and records it.
//
// The sample counts as a success when the server answered with a status
// below 400. A transport failure is recorded as a failed sample and
// returned as an error; HTTP error statuses are not errors.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range c.header {
		httpReq.Header[key] = values
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.record(time.Since(start), req.Name, false, 0)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		c.record(duration, req.Name, false, int64(len(respBody)))
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.record(duration, req.Name, resp.StatusCode < 400, int64(len(respBody)))

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Duration:   duration,
	}, nil
}

func (c *Client) record(d time.Duration, name string, success bool, bytes int64) {
	if c.metrics != nil {
		c.metrics.RecordRequest(d, name, success, bytes)
	}
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}
