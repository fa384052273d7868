package throttle

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultCooldown matches the upstream search quota of 10 requests a minute.
const DefaultCooldown = 6 * time.Second

// ErrInvalidCooldown is returned for a non-positive cool-down.
var ErrInvalidCooldown = errors.New("cooldown must be positive")

// State is the gate position.
type State int

const (
	Open State = iota
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Gate is a two-state leading-edge throttle. It is safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	state    State
	timer    Timer
	gen      uint64
	cooldown time.Duration
	clock    Clock
	logger   *slog.Logger
	observe  func(fired bool)
}

// NewGate returns an Open gate.
func NewGate(optFns ...GateOption) (*Gate, error) {
	opts := gateOpts{
		cooldown: DefaultCooldown,
		clock:    SystemClock{},
	}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, err
		}
	}

	g := Gate{
		state:    Open,
		cooldown: opts.cooldown,
		clock:    opts.clock,
		logger:   opts.logger,
		observe:  opts.observe,
	}

	return &g, nil
}

// Attempt runs action and closes the gate for one cool-down if the gate
// is open. While closed it does nothing. It reports whether action ran.
func (g *Gate) Attempt(action func()) bool {
	g.mu.Lock()
	if g.state == Closed {
		g.mu.Unlock()
		g.report(false)
		return false
	}

	g.state = Closed
	g.gen++
	gen := g.gen
	g.timer = g.clock.AfterFunc(g.cooldown, func() { g.expire(gen) })
	g.mu.Unlock()

	g.report(true)

	if action != nil {
		action()
	}

	return true
}

// State returns the current gate position.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Reset cancels a pending cool-down and opens the gate.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
	g.state = Open
}

// Cooldown returns the configured cool-down.
func (g *Gate) Cooldown() time.Duration {
	return g.cooldown
}

// expire reopens the gate unless a Reset or a newer closure superseded
// the timer that scheduled it.
func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gen != g.gen {
		return
	}

	g.state = Open
	g.timer = nil
}

func (g *Gate) report(fired bool) {
	if g.logger != nil && !fired {
		g.logger.Debug("throttle gate dropped trigger", "cooldown", g.cooldown.String())
	}
	if g.observe != nil {
		g.observe(fired)
	}
}

// GateOption is a functional option for [NewGate].
type GateOption func(*gateOpts) error

type gateOpts struct {
	cooldown time.Duration
	clock    Clock
	logger   *slog.Logger
	observe  func(fired bool)
}

// WithCooldown sets how long the gate stays closed after a fired trigger.
// Default is [DefaultCooldown].
func WithCooldown(d time.Duration) GateOption {
	return func(o *gateOpts) error {
		if d <= 0 {
			return ErrInvalidCooldown
		}
		o.cooldown = d
		return nil
	}
}

// WithClock replaces the [SystemClock].
func WithClock(c Clock) GateOption {
	return func(o *gateOpts) error {
		if c == nil {
			return errors.New("clock must not be nil")
		}
		o.clock = c
		return nil
	}
}

// WithLogger logs dropped triggers at debug level.
func WithLogger(logger *slog.Logger) GateOption {
	return func(o *gateOpts) error {
		o.logger = logger
		return nil
	}
}

// WithObserver registers fn to be called with the outcome of every Attempt.
func WithObserver(fn func(fired bool)) GateOption {
	return func(o *gateOpts) error {
		o.observe = fn
		return nil
	}
}
