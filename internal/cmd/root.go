// Package cmd implements the reposearch command line: the web server and a
// one-shot terminal search.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adamwoolhether/reposearch/client"
	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/ghapi"
	"github.com/adamwoolhether/reposearch/internal/config"
	"github.com/adamwoolhether/reposearch/internal/logger"
)

const service = "reposearch"

// Build identifies the binary.
type Build struct {
	Version string
	Commit  string
	Date    string
}

type app struct {
	build   Build
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
}

// NewRoot returns the root command with every subcommand attached.
func NewRoot(build Build) *cobra.Command {
	a := &app{build: build, v: config.New()}

	root := &cobra.Command{
		Use:           service,
		Short:         "Search GitHub repositories",
		Long:          "reposearch searches GitHub repositories from a browser or the terminal.\nEvery session accepts at most one search or page change per cool-down.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("github-url", "", "GitHub API base URL")
	pf.String("user-agent", "", "User-Agent sent to the GitHub API")

	bind(a.v, pf, map[string]string{
		"log.level":         "log-level",
		"log.format":        "log-format",
		"github.base_url":   "github-url",
		"github.user_agent": "user-agent",
	})

	root.AddCommand(a.serveCmd(), a.searchCmd(), a.versionCmd())

	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context, build Build) error {
	return NewRoot(build).ExecuteContext(ctx)
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cmd.ErrOrStderr(), service, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	a.cfg = cfg
	a.log = log

	return nil
}

// searcher builds the GitHub API stack shared by serve and search.
func (a *app) searcher() (*ghapi.Searcher, error) {
	gh := a.cfg.GitHub

	c, err := client.Build(
		client.WithTimeout(gh.Timeout),
		client.WithUserAgent(gh.UserAgent),
		client.WithThrottle(gh.RatePerMinute, gh.RateBurst),
		client.WithLogger(a.log),
	)
	if err != nil {
		return nil, fmt.Errorf("building http client: %w", err)
	}

	s, err := ghapi.New(c, ghapi.WithBaseURL(gh.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("building searcher: %w", err)
	}

	return s, nil
}

func (a *app) cacheOptions() []fetch.CacheOption {
	s := a.cfg.Search

	return []fetch.CacheOption{
		fetch.WithTTL(s.CacheTTL),
		fetch.WithErrorTTL(s.ErrorTTL),
		fetch.WithLoadTimeout(s.LoadTimeout),
		fetch.WithLogger(a.log),
	}
}

// bind maps config keys to flags. A flag only overrides the config when it
// is set on the command line.
func bind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}
