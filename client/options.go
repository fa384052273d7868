package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamwoolhether/reposearch/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error

type options struct {
	client   *http.Client
	rt       http.RoundTripper
	timeout  *time.Duration
	headers  http.Header
	throttle *throttle.Config
	logger   *slog.Logger
}

// WithClient replaces the default [http.Client] used by the [Client].
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout bounds every call, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent sets the User-Agent of every request. GitHub rejects API
// calls without one.
func WithUserAgent(ua string) Option {
	return WithDefaultHeader("User-Agent", ua)
}

// WithDefaultHeader sets key on every request that does not set it itself.
func WithDefaultHeader(key, value string) Option {
	return func(c *options) error {
		if key == "" || value == "" {
			return fmt.Errorf("default header[%s: %s] must have a key and a value", key, value)
		}
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Set(key, value)
		return nil
	}
}

// WithThrottle shares one token bucket between every request made through
// the client, expressed as requests per minute and burst.
func WithThrottle(perMinute, burst int) Option {
	return func(c *options) error {
		if perMinute <= 0 || burst <= 0 {
			return fmt.Errorf("perMinute[%d] and burst[%d] %w", perMinute, burst, throttle.ErrMustNotBeZero)
		}
		c.throttle = &throttle.Config{PerMinute: perMinute, Burst: burst}
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// defaultHeaders fills in headers the request left unset.
type defaultHeaders struct {
	header http.Header
	base   http.RoundTripper
}

func (d defaultHeaders) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	for k, v := range d.header {
		if _, ok := cpy.Header[k]; !ok {
			cpy.Header[k] = v
		}
	}

	return d.base.RoundTrip(cpy)
}

// DoOption is a functional option for [Client.Do].
type DoOption func(options *doOpts) error

type doOpts struct {
	responseBody   any
	responseHeader *http.Header
}

// WithDestination decodes the JSON response body into bodyTemplate.
func WithDestination[T any](bodyTemplate *T) DoOption {
	return func(opts *doOpts) error {
		if bodyTemplate == nil {
			return errors.New("destination must not be nil")
		}
		opts.responseBody = bodyTemplate

		return nil
	}
}

// WithResponseHeader copies the headers of a successful response into dst,
// e.g. to read quota headers. Failed calls carry theirs in
// [UnexpectedStatusError].
func WithResponseHeader(dst *http.Header) DoOption {
	return func(opts *doOpts) error {
		if dst == nil {
			return errors.New("header destination must not be nil")
		}
		opts.responseHeader = dst

		return nil
	}
}

// RequestOption is a functional option for [Request].
type RequestOption func(options *requestOpts) error

type requestOpts struct {
	body    any
	headers http.Header
}

// WithPayload sets the JSON-encoded request body.
func WithPayload(body any) RequestOption {
	return func(opts *requestOpts) error {
		opts.body = body

		return nil
	}
}

// WithHeaders adds headers to the outgoing request. They take precedence
// over the client's default headers.
func WithHeaders(headers http.Header) RequestOption {
	return func(opts *requestOpts) error {
		if opts.headers == nil {
			opts.headers = make(http.Header, len(headers))
		}
		for k, v := range headers {
			for _, element := range v {
				opts.headers.Add(k, element)
			}
		}

		return nil
	}
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
}

// WithQueryStrings sets query parameters on the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}
