// Package http is the transport of the client: one pooled mutual-TLS HTTP
// session per endpoint plus the websocket dialer for the events channel.
// It moves bytes and classifies network failures; it never interprets the
// response body and never retries.
package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/lxd-client/internal/constants"
	"github.com/fivetwenty-io/lxd-client/pkg/lxd"
)

// Logger is the logging interface used by the transport.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// Request is a single API request.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    interface{}
	Headers map[string]string
}

// Response is the raw result of a round trip.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client performs HTTP requests against one endpoint.
type Client struct {
	baseURL        string
	httpClient     *retryablehttp.Client
	transport      *http.Transport
	dialer         *websocket.Dialer
	tlsConfig      *tls.Config
	logger         Logger
	debug          bool
	userAgent      string
	requestTimeout time.Duration
	interceptors   *lxd.InterceptorChain
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables request/response logging.
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithTLSConfig sets the mutual TLS configuration used for requests and the
// events channel.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = tlsConfig
	}
}

// WithRequestTimeout bounds every request. The caller's context still applies.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithInterceptors sets the interceptor chain run around each request.
func WithInterceptors(chain *lxd.InterceptorChain) Option {
	return func(c *Client) {
		c.interceptors = chain
	}
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: constants.DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.interceptors == nil {
		client.interceptors = lxd.NewInterceptorChain()
	}

	client.transport = cleanhttp.DefaultPooledTransport()
	client.transport.TLSClientConfig = client.tlsConfig

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{Transport: client.transport}
	retryClient.RetryMax = 0
	retryClient.CheckRetry = neverRetry
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = nil

	if client.logger != nil {
		retryClient.Logger = &leveledLogger{logger: client.logger}
	}

	client.httpClient = retryClient

	client.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  client.tlsConfig,
		HandshakeTimeout: constants.WebsocketHandshakeTimeout,
	}

	return client
}

// BaseURL returns the endpoint the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do performs exactly one round trip.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	fullURL := c.buildURL(req.Path, req.Query)

	var body []byte

	if req.Body != nil {
		var err error

		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	intercepted := &lxd.Request{
		Method:  req.Method,
		Path:    req.Path,
		Headers: c.headers(req, body != nil),
		Body:    body,
	}

	err := c.interceptors.ExecuteRequestInterceptors(ctx, intercepted)
	if err != nil {
		return nil, err
	}

	var rawBody interface{}
	if intercepted.Body != nil {
		rawBody = intercepted.Body
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, rawBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header = intercepted.Headers

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Request", map[string]interface{}{
			"method": req.Method,
			"url":    fullURL,
		})
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		roundTripErr := classifyError(ctx, req.Method, fullURL, err)
		_ = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &lxd.Response{Error: roundTripErr})

		return nil, roundTripErr
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		readErr := classifyError(ctx, req.Method, fullURL, err)
		_ = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &lxd.Response{
			StatusCode: resp.StatusCode,
			Error:      readErr,
		})

		return nil, readErr
	}

	if c.debug && c.logger != nil {
		c.logger.Debug("HTTP Response", map[string]interface{}{
			"method":   req.Method,
			"url":      fullURL,
			"status":   resp.StatusCode,
			"duration": time.Since(start).String(),
		})
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}

	err = c.interceptors.ExecuteResponseInterceptors(ctx, intercepted, &lxd.Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	})
	if err != nil {
		return response, err
	}

	return response, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post performs a POST request.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

// Patch performs a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// DialWebsocket opens a websocket on path over the same TLS identity.
func (c *Client) DialWebsocket(ctx context.Context, path string, query url.Values) (*websocket.Conn, error) {
	wsURL := c.buildURL(path, query)

	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	headers := http.Header{}
	headers.Set("User-Agent", c.userAgent)

	conn, resp, err := c.dialer.DialContext(ctx, wsURL, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, classifyError(ctx, http.MethodGet, wsURL, err)
	}

	return conn, nil
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}

func (c *Client) buildURL(path string, query url.Values) string {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	return fullURL
}

func (c *Client) headers(req *Request, hasBody bool) http.Header {
	headers := http.Header{}
	headers.Set("Accept", "application/json")
	headers.Set("User-Agent", c.userAgent)

	if hasBody {
		headers.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		headers.Set(key, value)
	}

	return headers
}

// classifyError maps a round-trip failure to the client's error kinds.
func classifyError(ctx context.Context, method, target string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &lxd.TimeoutError{Kind: lxd.TimeoutRequest, Err: context.DeadlineExceeded}
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", method, target, context.Canceled)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &lxd.TimeoutError{Kind: lxd.TimeoutRequest, Err: context.DeadlineExceeded}
	}

	return &lxd.ConnectionError{Method: method, URL: target, Err: err}
}

func neverRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	return false, nil
}

// leveledLogger forwards retryablehttp warnings and errors. Its per-attempt
// debug lines are dropped; Do logs requests itself.
type leveledLogger struct {
	logger Logger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, fieldsOf(keysAndValues))
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, fieldsOf(keysAndValues))
}

func fieldsOf(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)

	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}

	return fields
}
