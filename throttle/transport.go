package throttle

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrMustNotBeZero = errors.New("must be greater than zero")
	ErrWaitingFailed = errors.New("limiter waiting failed")
	ErrContextEnded  = errors.New("throttle context ended")
)

// Config defines the outbound quota as requests per minute plus the
// number of requests allowed back to back.
type Config struct {
	PerMinute int
	Burst     int
}

// Limit converts the per-minute quota into a token refill rate.
func (c Config) Limit() rate.Limit {
	return rate.Every(time.Minute / time.Duration(c.PerMinute))
}

// transport is an http.RoundTripper that spends a token from a shared
// bucket before every outbound call.
type transport struct {
	limiter *rate.Limiter
	cfg     Config
	next    http.RoundTripper
	logFn   func() *slog.Logger
}

// NewRoundTripper returns an http.RoundTripper that throttles outbound
// requests with a token bucket. logFn lazily resolves the logger at
// request time, so option ordering on the caller side is irrelevant.
// A nil-returning logFn disables the exhaustion log lines.
func NewRoundTripper(cfg Config, logFn func() *slog.Logger, next http.RoundTripper) (http.RoundTripper, error) {
	if cfg.PerMinute <= 0 || cfg.Burst <= 0 {
		return nil, fmt.Errorf("perMinute[%d] and burst[%d] %w", cfg.PerMinute, cfg.Burst, ErrMustNotBeZero)
	}
	if next == nil {
		next = http.DefaultTransport
	}
	if logFn == nil {
		logFn = func() *slog.Logger { return nil }
	}

	t := transport{
		limiter: rate.NewLimiter(cfg.Limit(), cfg.Burst),
		cfg:     cfg,
		next:    next,
		logFn:   logFn,
	}

	return &t, nil
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx := r.Context()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w early: %w", ErrContextEnded, err)
	}

	var waited time.Duration
	logger := t.logFn()
	if logger != nil && t.limiter.Tokens() < 1 {
		logger.Info("upstream quota exhausted", "per_minute", t.cfg.PerMinute, "burst", t.cfg.Burst, "path", r.URL.Path)

		defer func() {
			logger.Info("upstream quota wait complete", "waited", waited.String())
		}()
	}

	start := time.Now()
	err := t.limiter.Wait(ctx)
	waited = time.Since(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWaitingFailed, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w post-wait: %w", ErrContextEnded, err)
	}

	return t.next.RoundTrip(r)
}
