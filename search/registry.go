package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/throttle"
)

// Defaults for a Registry.
const (
	DefaultIdleTTL       = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// ErrClosed is returned by a Registry after Close.
var ErrClosed = errors.New("session registry closed")

// Registry owns the live sessions. All sessions share one result cache but
// each has its own gate and query.
type Registry struct {
	cache         *fetch.Cache
	gateOpts      []throttle.GateOption
	idleTTL       time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	observe       func(active int)

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry returns a Registry whose sessions read through cache.
func NewRegistry(cache *fetch.Cache, optFns ...RegistryOption) (*Registry, error) {
	if cache == nil {
		return nil, errors.New("cache must not be nil")
	}

	opts := registryOpts{
		idleTTL:       DefaultIdleTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying registry option: %w", err)
		}
	}

	r := Registry{
		cache:         cache,
		gateOpts:      opts.gateOpts,
		idleTTL:       opts.idleTTL,
		sweepInterval: opts.sweepInterval,
		now:           opts.now,
		logger:        opts.logger,
		observe:       opts.observe,
		sessions:      make(map[string]*Session),
		done:          make(chan struct{}),
	}

	// Fail on bad gate options here rather than on the first request.
	if _, err := throttle.NewGate(r.gateOpts...); err != nil {
		return nil, fmt.Errorf("validating gate options: %w", err)
	}

	return &r, nil
}

// Get returns the session id, if it is live, and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()

	if ok {
		s.touch(r.now())
	}

	return s, ok
}

// Obtain returns the session id, or a new session with a fresh id when id
// is unknown. Client-chosen ids are never adopted.
func (r *Registry) Obtain(id string) (*Session, error) {
	if s, ok := r.Get(id); ok {
		return s, nil
	}

	gate, err := throttle.NewGate(append([]throttle.GateOption{throttle.WithLogger(r.logger)}, r.gateOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating gate: %w", err)
	}

	s := newSession(uuid.NewString(), gate, fetch.NewQuery(r.cache), r.logger, r.now())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.sessions[s.ID] = s
	active := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug("session created", "session", s.ID, "active", active)
	r.report(active)

	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the idle TTL and returns how
// many were removed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	var evicted []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	active := len(r.sessions)
	r.mu.Unlock()

	for _, s := range evicted {
		s.gate.Reset()
	}

	if len(evicted) > 0 {
		r.logger.Info("sessions evicted", "evicted", len(evicted), "active", active)
		r.report(active)
	}

	return len(evicted)
}

// Run sweeps idle sessions and expired cache entries until ctx ends or
// the registry is closed.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.Sweep()
			if n := r.cache.Purge(); n > 0 {
				r.logger.Debug("cache purged", "entries", n)
			}
		}
	}
}

// Close drops all sessions and stops Run.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		sessions := r.sessions
		r.sessions = make(map[string]*Session)
		r.closed = true
		r.mu.Unlock()

		for _, s := range sessions {
			s.gate.Reset()
		}
		r.report(0)
	})
}

func (r *Registry) report(active int) {
	if r.observe != nil {
		r.observe(active)
	}
}

// RegistryOption is a functional option for [NewRegistry].
type RegistryOption func(*registryOpts) error

type registryOpts struct {
	gateOpts      []throttle.GateOption
	idleTTL       time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	logger        *slog.Logger
	observe       func(active int)
}

// WithGateOptions configures every session's gate.
func WithGateOptions(opts ...throttle.GateOption) RegistryOption {
	return func(o *registryOpts) error {
		o.gateOpts = append(o.gateOpts, opts...)
		return nil
	}
}

// WithIdleTTL sets how long an unused session is kept.
func WithIdleTTL(d time.Duration) RegistryOption {
	return func(o *registryOpts) error {
		if d <= 0 {
			return fmt.Errorf("idle ttl[%v] must be positive", d)
		}
		o.idleTTL = d
		return nil
	}
}

// WithSweepInterval sets how often Run evicts idle sessions.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(o *registryOpts) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval[%v] must be positive", d)
		}
		o.sweepInterval = d
		return nil
	}
}

// WithNow overrides the registry's clock.
func WithNow(now func() time.Time) RegistryOption {
	return func(o *registryOpts) error {
		if now == nil {
			return errors.New("now func must not be nil")
		}
		o.now = now
		return nil
	}
}

// WithLogger sets the logger for the registry and its sessions.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(o *registryOpts) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithSessionObserver is called with the live session count after every
// change.
func WithSessionObserver(fn func(active int)) RegistryOption {
	return func(o *registryOpts) error {
		o.observe = fn
		return nil
	}
}
