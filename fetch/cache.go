package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Outcome labels what a cache access resolved to.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Cache holds query results shared by every session. Concurrent loads of
// the same Key share a single upstream call.
type Cache struct {
	fetcher     Fetcher
	group       singleflight.Group
	mu          sync.Mutex
	entries     map[Key]entry
	ttl         time.Duration
	errTTL      time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	observe     func(Outcome)
}

type entry struct {
	result  Result
	err     error
	expires time.Time
}

// NewCache returns a Cache backed by f.
func NewCache(f Fetcher, optFns ...CacheOption) (*Cache, error) {
	if f == nil {
		return nil, errors.New("fetcher must not be nil")
	}

	opts := cacheOpts{
		ttl:         5 * time.Minute,
		errTTL:      10 * time.Second,
		loadTimeout: 15 * time.Second,
		now:         time.Now,
		logger:      slog.Default(),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying cache option: %w", err)
		}
	}

	c := Cache{
		fetcher:     f,
		entries:     make(map[Key]entry),
		ttl:         opts.ttl,
		errTTL:      opts.errTTL,
		loadTimeout: opts.loadTimeout,
		now:         opts.now,
		logger:      opts.logger,
		observe:     opts.observe,
	}

	return &c, nil
}

// Lookup returns the stored outcome for key. ok is false when nothing
// fresh is stored, in which case res and err are zero.
func (c *Cache) Lookup(key Key) (res Result, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found {
		return Result{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return Result{}, false, nil
	}

	return e.result, true, e.err
}

// Load returns the result for key, fetching it when nothing fresh is
// stored. ctx bounds how long the caller waits; the upstream call itself
// runs detached so other waiters on the same key are not cut short.
func (c *Cache) Load(ctx context.Context, key Key) (Result, error) {
	if res, ok, err := c.Lookup(key); ok {
		c.report(OutcomeHit)
		return res, err
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-c.start(ctx, key):
		if r.Err != nil {
			return Result{}, r.Err
		}
		return r.Val.(Result), nil
	}
}

// Prefetch starts loading key in the background unless a load for it is
// already in flight.
func (c *Cache) Prefetch(ctx context.Context, key Key) {
	c.start(ctx, key)
}

// Purge drops expired entries.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var n int
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
			n++
		}
	}

	return n
}

func (c *Cache) start(ctx context.Context, key Key) <-chan singleflight.Result {
	return c.group.DoChan(key.String(), func() (any, error) {
		c.report(OutcomeMiss)

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
		defer cancel()

		res, err := c.fetcher.Search(fctx, key.Term, key.Page)
		c.store(key, res, err)
		if err != nil {
			c.report(OutcomeError)
			c.logger.Warn("search fetch failed", "term", key.Term, "page", key.Page, "error", err)
			return Result{}, err
		}

		return res, nil
	})
}

func (c *Cache) store(key Key, res Result, err error) {
	ttl := c.ttl
	if err != nil {
		ttl = c.errTTL
		res = Result{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{result: res, err: err, expires: c.now().Add(ttl)}
}

func (c *Cache) report(o Outcome) {
	if c.observe != nil {
		c.observe(o)
	}
}

// CacheOption is a functional option for [NewCache].
type CacheOption func(*cacheOpts) error

type cacheOpts struct {
	ttl         time.Duration
	errTTL      time.Duration
	loadTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
	observe     func(Outcome)
}

// WithTTL sets how long successful results are reused. Default is 5m.
func WithTTL(d time.Duration) CacheOption {
	return func(o *cacheOpts) error {
		if d <= 0 {
			return errors.New("ttl must be positive")
		}
		o.ttl = d
		return nil
	}
}

// WithErrorTTL sets how long a failed query is remembered before it is
// retried. Default is 10s.
func WithErrorTTL(d time.Duration) CacheOption {
	return func(o *cacheOpts) error {
		if d <= 0 {
			return errors.New("error ttl must be positive")
		}
		o.errTTL = d
		return nil
	}
}

// WithLoadTimeout bounds a single upstream call. Default is 15s.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(o *cacheOpts) error {
		if d <= 0 {
			return errors.New("load timeout must be positive")
		}
		o.loadTimeout = d
		return nil
	}
}

// WithNow replaces the wall clock used for expiry.
func WithNow(now func() time.Time) CacheOption {
	return func(o *cacheOpts) error {
		if now == nil {
			return errors.New("now must not be nil")
		}
		o.now = now
		return nil
	}
}

// WithLogger sets the logger used for failed fetches.
func WithLogger(logger *slog.Logger) CacheOption {
	return func(o *cacheOpts) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithObserver registers fn to be called with every cache outcome.
func WithObserver(fn func(Outcome)) CacheOption {
	return func(o *cacheOpts) error {
		o.observe = fn
		return nil
	}
}
