// Package mux provides helpers for middleware and route handling.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// App is the core web application, managing routing and middleware.
type App struct {
	mux      *http.ServeMux
	root     Handler
	mw       []Middleware
	group    string
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Handler is a http.Handler that returns an error.
type Handler func(ctx context.Context, w http.ResponseWriter, r *http.Request) error

// Middleware defines a signature to chain Handler together.
type Middleware func(handler Handler) Handler

// New creates an App with the given options. A no-op tracer and the
// default slog logger are used unless overridden via options.
func New(optFns ...Option) *App {
	var opts options
	for _, opt := range optFns {
		opt(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.tracer == nil {
		opts.tracer = noop.NewTracerProvider().Tracer("no-op tracer")
	}

	app := &App{
		mux:      http.NewServeMux(),
		mw:       opts.mw,
		logger:   opts.logger,
		tracer:   opts.tracer,
	}

	app.root = wrap(opts.globalMW, func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		app.mux.ServeHTTP(w, r)
		return nil
	})

	if opts.static != nil {
		app.HandleNoMiddleware(http.MethodGet, "", opts.staticPath, opts.static)
	}

	return app
}

// ServeHTTP implements http.Handler. Global middleware such as CORS and
// CSRF sees every request, including unmatched routes and static files.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := a.root(r.Context(), w, r); err != nil {
		a.logger.Error("serve http", "path", r.URL.Path, "error", err)
	}
}

// Mount returns a new App scoped to the given sub-route prefix.
// All routes registered on the returned App are prefixed with subRoute.
func (a *App) Mount(subRoute string) *App {
	return &App{
		mux:      a.mux,
		root:     a.root,
		mw:       slices.Clone(a.mw),
		logger:   a.logger,
		group:    strings.Trim(subRoute, "/"),
		tracer:   a.tracer,
	}
}

// Use appends the given middleware to the underlying mw stack.
func (a *App) Use(mw ...Middleware) {
	a.mw = append(a.mw, mw...)
}

// Get registers a handler for GET requests at the given path.
func (a *App) Get(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodGet, a.group, path, fn, mw...)
}

// Post registers a handler for POST requests at the given path.
func (a *App) Post(path string, fn Handler, mw ...Middleware) {
	a.Handle(http.MethodPost, a.group, path, fn, mw...)
}

// Handle registers handler for method and path under group, wrapped in the
// route middleware and then the App's middleware. Each request gets a span
// and a fresh set of [Values].
func (a *App) Handle(method, group, path string, handler Handler, mw ...Middleware) {
	handler = wrap(mw, handler)
	handler = wrap(a.mw, handler)

	pattern := pattern(method, group, path)

	h := func(w http.ResponseWriter, r *http.Request) {
		ctx, span := a.startSpan(w, r, pattern)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		if !span.SpanContext().TraceID().IsValid() {
			traceID = uuid.New().String()
		}

		v := Values{
			TraceID: traceID,
			Route:   pattern,
			Now:     time.Now().UTC(),
			Tracer:  a.tracer,
		}

		r = r.WithContext(setValues(ctx, &v))

		if err := handler(r.Context(), w, r); err != nil {
			a.logger.Error("handle", "route", pattern, "trace_id", traceID, "error", err)
		}
	}

	a.mux.HandleFunc(pattern, h)
}

// HandleNoMiddleware registers a handler without wrapping it in the
// route-level or group-level middleware stack.
func (a *App) HandleNoMiddleware(method, group, path string, handler Handler) {
	pattern := pattern(method, group, path)

	h := func(w http.ResponseWriter, r *http.Request) {
		if err := handler(r.Context(), w, r); err != nil {
			a.logger.Error("handle no mw", "route", pattern, "error", err)
		}
	}

	a.mux.HandleFunc(pattern, h)
}

// startSpan initializes the request by adding a span and writing
// otel-related info into the response writer for the response.
func (a *App) startSpan(w http.ResponseWriter, r *http.Request, route string) (context.Context, trace.Span) {
	ctx, span := a.tracer.Start(r.Context(), route)
	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.String("path", r.RequestURI),
	)

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(w.Header()))

	return ctx, span
}

func pattern(method, group, path string) string {
	if group != "" {
		path = fmt.Sprintf("/%s%s", group, path)
	}

	return fmt.Sprintf("%s %s", method, path)
}

// wrap middleware around the handler and execute in order given.
func wrap(mw []Middleware, handler Handler) Handler {
	for _, mwFn := range slices.Backward(mw) {
		if mwFn != nil {
			handler = mwFn(handler)
		}
	}

	return handler
}
