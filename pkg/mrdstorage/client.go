package mrdstorage

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/ismrmrd/mrd-storage-client-go/internal/httpx"
)

// DefaultSubject tags blobs stored without an explicit subject.
const DefaultSubject = "$null"

const (
	healthcheckPath = "healthcheck"
	blobsPath       = "v1/blobs"
	blobDataPath    = "v1/blobs/data"
	latestPath      = "v1/blobs/data/latest"
)

// Option configures a Client at construction time.
type Option func(*options)

type options struct {
	subject    string
	device     string
	session    string
	serializer Serializer
	httpOpts   []httpx.Option
}

// WithSubject sets the subject tag applied to every request. Defaults to
// DefaultSubject.
func WithSubject(subject string) Option {
	return func(o *options) {
		if subject != "" {
			o.subject = subject
		}
	}
}

// WithDevice adds a device tag to every request.
func WithDevice(device string) Option {
	return func(o *options) { o.device = device }
}

// WithSession adds a session tag to every request.
func WithSession(session string) Option {
	return func(o *options) { o.session = session }
}

// WithSerializer overrides the payload serializer. Defaults to
// JSONSerializer.
func WithSerializer(s Serializer) Option {
	return func(o *options) {
		if s != nil {
			o.serializer = s
		}
	}
}

// WithTimeout overrides the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, httpx.WithTimeout(d)) }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, httpx.WithHTTPClient(h)) }
}

// WithLogger enables transport retry logging.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, httpx.WithLogger(l)) }
}

// WithRetryWait overrides the retry backoff base and cap.
func WithRetryWait(base, max time.Duration) Option {
	return func(o *options) { o.httpOpts = append(o.httpOpts, httpx.WithRetryWait(base, max)) }
}

// StoreOptions carries the optional write-time parameters for Store.
type StoreOptions struct {
	// Name tags the blob for later lookup.
	Name string
	// TTL asks the server to expire the blob after the given duration.
	TTL time.Duration
	// CustomTags are merged into the request parameters last, winning any
	// key collision (including name and _ttl).
	CustomTags map[string]string
}

// QueryOptions carries the optional filter parameters for the fetch
// operations. All provided keys must match exactly for a blob to qualify.
type QueryOptions struct {
	// Name restricts results to blobs stored under the given name.
	Name string
	// At restricts results to blobs valid at or before the given time.
	At time.Time
	// CustomTags are merged into the request parameters last, winning any
	// key collision (including name and _at).
	CustomTags map[string]string
}

// Client talks to an MRD storage server. The subject/device/session tags
// fixed at construction are merged into every request; per-call parameters
// never mutate them, so a Client is safe for concurrent use.
type Client struct {
	http       *httpx.Client
	base       url.Values
	serializer Serializer
}

// New constructs a Client for the storage server at address:port.
func New(address string, port int, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errors.New("mrdstorage: address is required")
	}
	if port <= 0 || port > 65535 {
		return nil, errors.Newf("mrdstorage: invalid port %d", port)
	}

	o := &options{
		subject:    DefaultSubject,
		serializer: JSONSerializer{},
	}
	for _, opt := range opts {
		opt(o)
	}

	baseURL := fmt.Sprintf("http://%s/", net.JoinHostPort(address, strconv.Itoa(port)))
	httpClient, err := httpx.NewClient(baseURL, o.httpOpts...)
	if err != nil {
		return nil, err
	}

	base := url.Values{"subject": {o.subject}}
	if o.device != "" {
		base.Set("device", o.device)
	}
	if o.session != "" {
		base.Set("session", o.session)
	}

	return &Client{
		http:       httpClient,
		base:       base,
		serializer: o.serializer,
	}, nil
}

// Healthcheck verifies the server is up and reports healthy. It returns an
// error marked ErrHealthcheck when the server responds with a non-OK status
// and one marked ErrConnection when the server cannot be reached.
func (c *Client) Healthcheck(ctx context.Context) error {
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   healthcheckPath,
	})
	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return errors.Mark(err, ErrHealthcheck)
		}
		return translateErr(err)
	}
	resp.Body.Close()
	return nil
}

// WaitUntilHealthy polls Healthcheck with exponential backoff until the
// server reports healthy, maxWait elapses, or ctx is done. Handy when the
// storage server is starting up alongside the caller.
func (c *Client) WaitUntilHealthy(ctx context.Context, maxWait time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait
	return backoff.Retry(func() error {
		err := c.Healthcheck(ctx)
		if err == nil || errors.Is(err, ErrConnection) || errors.Is(err, ErrHealthcheck) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(policy, ctx))
}

// Store serializes value and stores it as a blob tagged with the client's
// base tags plus the options' name, TTL, and custom tags. A value the
// serializer cannot represent fails with an error marked ErrSerialization.
func Store[T any](ctx context.Context, c *Client, value T, opts *StoreOptions) error {
	if opts == nil {
		opts = &StoreOptions{}
	}
	payload, err := c.serializer.Marshal(value)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "mrdstorage: encode value"), ErrSerialization)
	}

	var ttl string
	if opts.TTL > 0 {
		ttl = opts.TTL.String()
	}
	params := c.mergeParams(opts.Name, "_ttl", ttl, opts.CustomTags)

	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: http.MethodPost,
		Path:   blobDataPath,
		Query:  params,
		Header: http.Header{"Content-Type": {"application/octet-stream"}},
		Body:   payload,
	})
	if err != nil {
		return translateErr(err)
	}
	resp.Body.Close()
	return nil
}

// Fetch returns the deserialized payloads of all blobs matching the query, in
// search-result order. A payload the serializer cannot decode fails the whole
// call with an error marked ErrSerialization.
func Fetch[T any](ctx context.Context, c *Client, opts *QueryOptions) ([]T, error) {
	cur := c.FetchBlobs(opts)
	var out []T
	for cur.Next(ctx) {
		data, err := cur.Blob().Data(ctx)
		if err != nil {
			return nil, err
		}
		var value T
		if err := c.serializer.Unmarshal(data, &value); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "mrdstorage: decode value"), ErrSerialization)
		}
		out = append(out, value)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchBlobs returns a cursor over the raw blob handles matching the query,
// leaving payload retrieval to the caller. No network traffic happens until
// the cursor is first advanced.
func (c *Client) FetchBlobs(opts *QueryOptions) *Cursor {
	return newCursor(c, blobsPath, c.queryParams(opts))
}

// FetchLatest returns the deserialized payload of the single latest blob
// matching the query. The server resolves "latest" directly; no pagination is
// involved.
func FetchLatest[T any](ctx context.Context, c *Client, opts *QueryOptions) (T, error) {
	var value T
	resp, err := c.http.Do(ctx, &httpx.Request{
		Method: http.MethodGet,
		Path:   latestPath,
		Query:  c.queryParams(opts),
	})
	if err != nil {
		return value, translateErr(err)
	}
	data, err := httpx.ReadAllAndClose(resp.Body)
	if err != nil {
		return value, errors.Wrap(err, "mrdstorage: read latest payload")
	}
	if err := c.serializer.Unmarshal(data, &value); err != nil {
		return value, errors.Mark(errors.Wrap(err, "mrdstorage: decode value"), ErrSerialization)
	}
	return value, nil
}

func (c *Client) queryParams(opts *QueryOptions) url.Values {
	if opts == nil {
		opts = &QueryOptions{}
	}
	var at string
	if !opts.At.IsZero() {
		at = opts.At.Format(time.RFC3339)
	}
	return c.mergeParams(opts.Name, "_at", at, opts.CustomTags)
}

// mergeParams builds the request parameters: base tags, then name and the
// control parameter when set, then custom tags last so they win every key
// collision. The base tags are copied, never mutated.
func (c *Client) mergeParams(name, controlKey, controlValue string, custom map[string]string) url.Values {
	params := url.Values{}
	for k, vs := range c.base {
		params[k] = append([]string(nil), vs...)
	}
	if name != "" {
		params.Set("name", name)
	}
	if controlValue != "" {
		params.Set(controlKey, controlValue)
	}
	for k, v := range custom {
		params.Set(k, v)
	}
	return params
}
