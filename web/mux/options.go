package mux

import (
	"cmp"
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"reflect"
	"runtime"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// Option configures an App.
type Option func(*options)

type options struct {
	static     Handler
	staticPath string
	tracer     trace.Tracer
	logger     *slog.Logger
	globalMW   []Middleware
	mw         []Middleware
}

// stage places a known middleware in the chain. Global stages wrap the
// whole ServeMux; the rest wrap each route.
type stage struct {
	rank   int
	global bool
}

const customRank = 6

var stages = map[string]stage{
	"CORS":    {rank: 1, global: true},
	"CSRF":    {rank: 2, global: true},
	"Logger":  {rank: 3},
	"Metrics": {rank: 4},
	"Errors":  {rank: 5},
	"Panics":  {rank: 100},
}

// WithMiddleware sorts mw into the App's global and per-route chains.
// Middleware is recognised by the name of the function that built it, so
// the order callers pass it in does not matter: CORS and CSRF guard every
// request, then Logger, Metrics and Errors run per route around any custom
// middleware, with Panics innermost.
func WithMiddleware(mw ...Middleware) Option {
	type ranked struct {
		stage
		fn Middleware
	}

	all := make([]ranked, 0, len(mw))
	for _, m := range mw {
		s, ok := stages[name(m)]
		if !ok {
			s = stage{rank: customRank}
		}
		all = append(all, ranked{stage: s, fn: m})
	}
	slices.SortStableFunc(all, func(a, b ranked) int { return cmp.Compare(a.rank, b.rank) })

	return func(opts *options) {
		for _, r := range all {
			if r.global {
				opts.globalMW = append(opts.globalMW, r.fn)
				continue
			}
			opts.mw = append(opts.mw, r.fn)
		}
	}
}

// WithTracer sets the tracer used for request spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(opts *options) {
		opts.tracer = tracer
	}
}

// WithLogger sets the logger for handler errors that escape middleware.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithStaticFS serves fsys under pathPrefix, bypassing route middleware.
func WithStaticFS(fsys fs.FS, pathPrefix string) Option {
	return func(opts *options) {
		opts.static = Adapt(http.StripPrefix(pathPrefix, http.FileServerFS(fsys)))
		opts.staticPath = pathPrefix
	}
}

// Adapt lifts a plain http.Handler, such as the Prometheus exposition
// handler, into a Handler.
func Adapt(h http.Handler) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		h.ServeHTTP(w, r)
		return nil
	}
}

// name returns the function that built mw: a closure from
// ".../web/middleware.CORS.func1" yields "CORS".
func name(mw Middleware) string {
	fn := runtime.FuncForPC(reflect.ValueOf(mw).Pointer()).Name()
	fn = fn[strings.LastIndex(fn, "/")+1:]

	parts := strings.SplitN(fn, ".", 3)
	if len(parts) < 2 {
		return fn
	}

	return parts[1]
}
