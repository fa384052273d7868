package server

import (
	"context"
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	host            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	shutdownFuncs   []shutdownFunc
	background      []backgroundFunc
	tlsCertFile     string
	tlsKeyFile      string
}

type shutdownFunc func(ctx context.Context) error

type backgroundFunc func(ctx context.Context)

// WithHost sets the host address the server listens on. Default is ":8080".
func WithHost(host string) Option {
	return func(opts *options) {
		opts.host = host
	}
}

// WithReadTimeout sets the maximum duration for reading the entire
// request, including the body. Default is 5s.
func WithReadTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.readTimeout = d
	}
}

// WithWriteTimeout sets the maximum duration before timing out writes of
// the response. It must cover a blocking results request. Default is 20s.
func WithWriteTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.writeTimeout = d
	}
}

// WithIdleTimeout sets the maximum amount of time to wait for the
// next request when keep-alives are enabled. Default is 120s.
func WithIdleTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.idleTimeout = d
	}
}

// WithShutdownTimeout bounds how long [Server.Run] waits for in-flight
// requests after shutdown starts. Default is 20s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.shutdownTimeout = d
	}
}

// WithLogger sets the logger used for server lifecycle events and
// net/http's own error log. Default is slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithShutdownFunc registers a function to call during graceful shutdown,
// before the HTTP server is stopped. Multiple shutdown functions are
// called in the order they were registered.
func WithShutdownFunc(fn func(ctx context.Context) error) Option {
	return func(opts *options) {
		opts.shutdownFuncs = append(opts.shutdownFuncs, fn)
	}
}

// WithBackground runs fn in its own goroutine while the server runs. Its
// context is cancelled when shutdown starts, and Run waits for it to
// return.
func WithBackground(fn func(ctx context.Context)) Option {
	return func(opts *options) {
		opts.background = append(opts.background, fn)
	}
}

// WithTLS configures the server to serve TLS with the given certificate
// and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(opts *options) {
		opts.tlsCertFile = certFile
		opts.tlsKeyFile = keyFile
	}
}
