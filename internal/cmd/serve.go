package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/internal/handlers"
	"github.com/adamwoolhether/reposearch/internal/metrics"
	"github.com/adamwoolhether/reposearch/search"
	"github.com/adamwoolhether/reposearch/throttle"
	"github.com/adamwoolhether/reposearch/web/server"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the search web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("host", "", "listen address, host:port")
	f.Duration("cooldown", 0, "minimum time between two actions of one session")
	f.StringSlice("cors-origins", nil, "origins allowed to call the JSON API")

	bind(a.v, f, map[string]string{
		"server.host":         "host",
		"search.cooldown":     "cooldown",
		"server.cors_origins": "cors-origins",
	})

	return cmd
}

func (a *app) serve(ctx context.Context) error {
	m := metrics.New()

	gh, err := a.searcher()
	if err != nil {
		return err
	}

	cache, err := fetch.NewCache(m.Fetcher(gh), append(a.cacheOptions(), fetch.WithObserver(m.ObserveCache))...)
	if err != nil {
		return fmt.Errorf("creating cache: %w", err)
	}

	reg, err := search.NewRegistry(cache,
		search.WithGateOptions(
			throttle.WithCooldown(a.cfg.Search.Cooldown),
			throttle.WithObserver(m.ObserveGate),
		),
		search.WithIdleTTL(a.cfg.Search.SessionIdleTTL),
		search.WithSweepInterval(a.cfg.Search.SweepInterval),
		search.WithSessionObserver(m.SetSessions),
		search.WithLogger(a.log),
	)
	if err != nil {
		return fmt.Errorf("creating session registry: %w", err)
	}

	routes, err := handlers.Routes(handlers.Config{
		Build:       a.build.Version,
		Logger:      a.log,
		Registry:    reg,
		Metrics:     m,
		Tracer:      otel.Tracer(service),
		CORSOrigins: a.cfg.Server.CORSOrigins,
		WaitTimeout: a.cfg.Search.WaitTimeout,
	})
	if err != nil {
		return fmt.Errorf("building routes: %w", err)
	}

	sc := a.cfg.Server
	opts := []server.Option{
		server.WithHost(sc.Host),
		server.WithReadTimeout(sc.ReadTimeout),
		server.WithWriteTimeout(sc.WriteTimeout),
		server.WithIdleTimeout(sc.IdleTimeout),
		server.WithShutdownTimeout(sc.ShutdownTimeout),
		server.WithLogger(a.log),
		server.WithBackground(reg.Run),
		server.WithShutdownFunc(func(context.Context) error {
			reg.Close()
			return nil
		}),
	}
	if sc.TLSCertFile != "" {
		opts = append(opts, server.WithTLS(sc.TLSCertFile, sc.TLSKeyFile))
	}

	a.log.Info("starting server", "host", sc.Host, "version", a.build.Version, "github", a.cfg.GitHub.BaseURL,
		"cooldown", a.cfg.Search.Cooldown)

	return server.New(routes, opts...).Run(ctx)
}
