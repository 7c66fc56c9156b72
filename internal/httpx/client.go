package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds each request attempt unless overridden at
// construction time.
const DefaultTimeout = 3 * time.Second

// defaultRetryMax is the number of retries after the initial attempt,
// giving 3 attempts total.
const defaultRetryMax = 2

// retryStatusCodes are the transient statuses worth another attempt.
var retryStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client. Its Timeout field is
// left untouched, so callers own the full transport configuration.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithLogger enables retry logging through the supplied logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRetryMax overrides the number of retries after the first attempt.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithRetryWait overrides the backoff base and cap. Mostly useful for tests
// that exercise the retry path without real delays.
func WithRetryWait(base, max time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.waitBase = base
		}
		if max > 0 {
			c.waitMax = max
		}
	}
}

// Client performs HTTP requests against a fixed base URL. Idempotent methods
// (HEAD, GET, OPTIONS) are retried on transient failures; everything else is
// issued exactly once. Non-2xx responses surface as *HTTPError and transport
// failures as *ConnectionError. Safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	retrying   *retryablehttp.Client
	logger     *logrus.Logger

	timeout  time.Duration
	retryMax int
	waitBase time.Duration
	waitMax  time.Duration
}

// Request describes a single outbound request. Path may be relative to the
// base URL or a fully qualified URL (e.g. a server-issued continuation link),
// in which case it is used verbatim.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewClient creates a Client for the provided base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("httpx: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "httpx: invalid base URL")
	}

	c := &Client{
		baseURL:  parsed,
		timeout:  DefaultTimeout,
		retryMax: defaultRetryMax,
		waitBase: time.Second,
		waitMax:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}

	c.retrying = &retryablehttp.Client{
		HTTPClient:   c.httpClient,
		RetryMax:     c.retryMax,
		RetryWaitMin: c.waitBase,
		RetryWaitMax: c.waitMax,
		CheckRetry:   checkRetry,
		Backoff:      exponentialBackoff,
		ErrorHandler: retryablehttp.PassthroughErrorHandler,
	}
	if c.logger != nil {
		c.retrying.Logger = c.logger
	} else {
		c.retrying.Logger = nil
	}
	return c, nil
}

// HTTPClient exposes the underlying non-retrying HTTP client, e.g. for plain
// fetches against URLs outside the base address.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do executes the request. The caller owns the response body on success.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: request is nil")
	}
	if req.Method == "" {
		return nil, errors.New("httpx: HTTP method is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fullURL, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	if retryableMethod(req.Method) {
		resp, err = c.doRetrying(ctx, req, fullURL)
	} else {
		resp, err = c.doOnce(ctx, req, fullURL)
	}
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, ErrorFromResponse(resp)
	}
	return resp, nil
}

func (c *Client) doRetrying(ctx context.Context, req *Request, fullURL string) (*http.Response, error) {
	var body interface{}
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	copyHeader(httpReq.Header, req.Header)
	return c.retrying.Do(httpReq)
}

func (c *Client) doOnce(ctx context.Context, req *Request, fullURL string) (*http.Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, body)
	if err != nil {
		return nil, err
	}
	copyHeader(httpReq.Header, req.Header)
	return c.httpClient.Do(httpReq)
}

// buildURL resolves path against the base URL. Absolute URLs pass through
// unchanged so continuation links keep their server-issued query string.
func (c *Client) buildURL(path string, q url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", errors.Wrapf(err, "httpx: invalid request path %q", path)
	}
	if len(q) > 0 {
		ref.RawQuery = q.Encode()
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// checkRetry retries transient transport errors and the transient status
// codes. The retryablehttp policy handles the error branch so that
// non-recoverable failures (bad scheme, TLS verification) are not retried.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil || resp == nil {
		return retryablehttp.ErrorPropagatedRetryPolicy(ctx, resp, err)
	}
	return retryStatusCodes[resp.StatusCode], nil
}

func retryableMethod(method string) bool {
	switch method {
	case http.MethodHead, http.MethodGet, http.MethodOptions:
		return true
	}
	return false
}

func copyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

// ReadAllAndClose drains the reader and ensures it is closed.
func ReadAllAndClose(rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}
