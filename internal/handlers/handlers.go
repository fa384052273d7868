// Package handlers binds the search sessions to the HTTP surface: the HTML
// page, its form posts, the JSON API, health and metrics.
package handlers

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/reposearch/internal/metrics"
	"github.com/adamwoolhether/reposearch/search"
	"github.com/adamwoolhether/reposearch/web/middleware"
	"github.com/adamwoolhether/reposearch/web/mux"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DefaultWaitTimeout bounds GET /api/results?wait=true.
const DefaultWaitTimeout = 15 * time.Second

// Config holds the dependencies of the routes.
type Config struct {
	Build       string
	Logger      *slog.Logger
	Registry    *search.Registry
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	CORSOrigins []string
	WaitTimeout time.Duration
}

// Routes builds the application's handler.
func Routes(cfg Config) (*mux.App, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry must not be nil")
	}
	if cfg.Metrics == nil {
		return nil, errors.New("metrics must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("opening static files: %w", err)
	}

	opts := []mux.Option{
		mux.WithLogger(cfg.Logger),
		mux.WithStaticFS(static, "/static/"),
		mux.WithMiddleware(
			middleware.CORS(cfg.CORSOrigins),
			middleware.CSRF(cfg.Logger, trustedOrigins(cfg.CORSOrigins)...),
			middleware.Logger(cfg.Logger),
			middleware.Metrics(cfg.Metrics),
			middleware.Errors(cfg.Logger),
			middleware.Panics(),
		),
	}
	if cfg.Tracer != nil {
		opts = append(opts, mux.WithTracer(cfg.Tracer))
	}

	app := mux.New(opts...)

	h := handlers{
		build:       cfg.Build,
		log:         cfg.Logger,
		registry:    cfg.Registry,
		tmpl:        tmpl,
		waitTimeout: cfg.WaitTimeout,
	}

	app.Get("/{$}", h.index)
	app.Post("/search", h.submit)
	app.Post("/page", h.paginate)
	app.Get("/health", h.health)
	app.Get("/metrics", mux.Adapt(cfg.Metrics.Handler()))

	api := app.Mount("/api/")
	api.Get("/results", h.results)
	api.Post("/search", h.apiSearch)
	api.Post("/page", h.apiPage)

	return app, nil
}

// trustedOrigins keeps the exact origins; CSRF protection has no notion
// of wildcards.
func trustedOrigins(origins []string) []string {
	var out []string
	for _, o := range origins {
		for o := range strings.SplitSeq(o, ",") {
			if o = strings.TrimSpace(o); o != "" && !strings.Contains(o, "*") {
				out = append(out, o)
			}
		}
	}

	return out
}
