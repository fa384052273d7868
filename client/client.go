package client

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

	"github.com/adamwoolhether/reposearch/throttle"
)

// Client sends JSON requests to a single upstream API. The zero options
// give an *http.Client on http.DefaultTransport.
type Client struct {
	c      *http.Client
	logger *slog.Logger
}

// Build returns a Client configured by optFns. Transports are layered
// base → default headers → throttle, so the quota is spent only by requests
// that actually leave the process.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := &Client{
		c:      &http.Client{},
		logger: slog.Default(),
	}

	if opts.client != nil {
		client.c = opts.client
	}
	if opts.logger != nil {
		client.logger = opts.logger
	}
	if opts.timeout != nil {
		client.c.Timeout = *opts.timeout
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if len(opts.headers) > 0 {
		transport = defaultHeaders{header: opts.headers, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	client.c.Transport = transport

	return client, nil
}

// Do sends req and fails with an [*UnexpectedStatusError] unless the
// response status is expCode. On success the JSON body is decoded into the
// destination given by [WithDestination], if any.
func (c *Client) Do(req *http.Request, expCode int, opts ...DoOption) error {
	var settings doOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return err
		}
	}

	resp, err := c.c.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer c.drain(resp.Body)

	c.logger.Debug("upstream response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)

	if settings.responseHeader != nil {
		*settings.responseHeader = resp.Header.Clone()
	}

	if resp.StatusCode != expCode {
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
		if err != nil {
			b = []byte("unable to read body")
		}

		return &UnexpectedStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
			Header:     resp.Header.Clone(),
			Err:        statusErr(resp.StatusCode),
		}
	}

	if settings.responseBody == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(settings.responseBody); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}

// Request builds an *http.Request; see the package-level [Request].
func (c *Client) Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	return Request(ctx, reqURL, method, opts...)
}

// URL builds a url.URL; see the package-level [URL].
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

// drain empties and closes body so the connection can be reused.
func (c *Client) drain(body io.ReadCloser) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		c.logger.Warn("discarding response body", "error", err)
	}
	if err := body.Close(); err != nil {
		c.logger.Warn("closing response body", "error", err)
	}
}

// Request instantiates an *http.Request with the provided information.
// A body is only attached when WithPayload is given, in which case the
// Content-Type is `application/json`.
func Request(ctx context.Context, reqURL *url.URL, method string, opts ...RequestOption) (*http.Request, error) {
	var settings requestOpts
	for _, opt := range opts {
		if err := opt(&settings); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if settings.body != nil {
		b, err := json.Marshal(settings.body)
		if err != nil {
			return nil, fmt.Errorf("encoding request payload: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range settings.headers {
		req.Header[k] = v
	}

	return req, nil
}

// URL creates a url.URL for use in Request.
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if len(settings.queryStrings) > 0 {
		q := make(url.Values, len(settings.queryStrings))
		for k, v := range settings.queryStrings {
			q.Set(k, v)
		}
		endpoint.RawQuery = q.Encode()
	}

	return &endpoint
}
