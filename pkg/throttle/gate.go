// Package throttle bounds concurrent backend queries and converts prolonged
// downstream failure into fast local failure via a circuit breaker.
package throttle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrCircuitOpen is returned by Acquire while the breaker is open and the
// cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit open: backend marked unhealthy")

// CircuitState is the breaker state.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitHalfOpen CircuitState = "half_open"
	CircuitOpen     CircuitState = "open"
)

// Config holds the gate tuning knobs.
type Config struct {
	// Capacity is the maximum number of concurrent in-flight queries.
	Capacity int

	// Window is the rolling window over which error counters are evaluated.
	Window time.Duration

	// ServerErrorThreshold opens the circuit when exceeded within Window.
	ServerErrorThreshold int

	// Cooldown is how long the circuit stays open before admitting a probe.
	Cooldown time.Duration
}

// DefaultConfig returns the built-in gate defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:             4,
		Window:               60 * time.Second,
		ServerErrorThreshold: 5,
		Cooldown:             30 * time.Second,
	}
}

// Gate is a per-backend semaphore plus adaptive circuit breaker.
// Every Acquire must be paired with a Release.
type Gate struct {
	name string
	cfg  Config
	sem  *semaphore.Weighted

	mu           sync.Mutex
	state        CircuitState
	openUntil    time.Time
	probing      bool // a half-open probe is in flight
	rateLimits   []time.Time
	serverErrors []time.Time
	successes    []time.Time
	inFlight     int

	// now is swappable for tests.
	now func() time.Time
}

// NewGate creates a gate for the named backend.
func NewGate(name string, cfg Config) *Gate {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.ServerErrorThreshold <= 0 {
		cfg.ServerErrorThreshold = DefaultConfig().ServerErrorThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Gate{
		name:  name,
		cfg:   cfg,
		sem:   semaphore.NewWeighted(int64(cfg.Capacity)),
		state: CircuitClosed,
		now:   time.Now,
	}
}

// Acquire blocks until a slot is free and the circuit admits the call.
// While the circuit is open it fails fast with ErrCircuitOpen instead of
// queueing; a caller either holds a slot or fails quickly.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.admit(); err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		g.abandonProbe()
		return err
	}
	g.mu.Lock()
	g.inFlight++
	g.mu.Unlock()
	return nil
}

// Release frees a slot. Unconditional; paired with every successful Acquire.
func (g *Gate) Release() {
	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()
	g.sem.Release(1)
}

// admit applies the circuit check and, when the cooldown has elapsed,
// transitions Open → HalfOpen admitting a single probe.
func (g *Gate) admit() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case CircuitOpen:
		if g.now().Before(g.openUntil) {
			return ErrCircuitOpen
		}
		slog.Info("Circuit half-open, admitting probe", "gate", g.name)
		g.state = CircuitHalfOpen
		g.probing = true
		return nil
	case CircuitHalfOpen:
		if g.probing {
			return ErrCircuitOpen
		}
		g.probing = true
		return nil
	}
	return nil
}

// abandonProbe rolls back the probe reservation when Acquire fails after admit.
func (g *Gate) abandonProbe() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == CircuitHalfOpen {
		g.probing = false
	}
}

// RecordSuccess notes a successful query. One success closes a half-open circuit.
func (g *Gate) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.successes = appendPruned(g.successes, now, g.cfg.Window)
	if g.state == CircuitHalfOpen {
		slog.Info("Circuit closed after successful probe", "gate", g.name)
		g.state = CircuitClosed
		g.probing = false
		g.serverErrors = nil
	}
}

// Record429 notes a rate-limit response. Rate limits are tracked for
// observability but do not open the circuit: the backend is alive, just busy.
func (g *Gate) Record429() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rateLimits = appendPruned(g.rateLimits, g.now(), g.cfg.Window)
}

// RecordServerError notes a 5xx-class failure and applies the breaker
// transition rules.
func (g *Gate) RecordServerError() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.serverErrors = appendPruned(g.serverErrors, now, g.cfg.Window)

	switch g.state {
	case CircuitHalfOpen:
		slog.Warn("Circuit re-opened after failed probe", "gate", g.name)
		g.open(now)
	case CircuitClosed:
		if len(g.serverErrors) > g.cfg.ServerErrorThreshold {
			slog.Warn("Circuit opened",
				"gate", g.name,
				"server_errors", len(g.serverErrors),
				"window", g.cfg.Window)
			g.open(now)
		}
	}
}

// open transitions to Open. Caller holds g.mu.
func (g *Gate) open(now time.Time) {
	g.state = CircuitOpen
	g.openUntil = now.Add(g.cfg.Cooldown)
	g.probing = false
}

// Snapshot describes the gate's current state for health reporting.
type Snapshot struct {
	Name         string       `json:"name"`
	State        CircuitState `json:"state"`
	InFlight     int          `json:"in_flight"`
	Capacity     int          `json:"capacity"`
	RateLimits   int          `json:"rate_limits"`
	ServerErrors int          `json:"server_errors"`
	Successes    int          `json:"successes"`
}

// Snapshot returns the current gate state with counters pruned to the window.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.rateLimits = prune(g.rateLimits, now, g.cfg.Window)
	g.serverErrors = prune(g.serverErrors, now, g.cfg.Window)
	g.successes = prune(g.successes, now, g.cfg.Window)
	return Snapshot{
		Name:         g.name,
		State:        g.state,
		InFlight:     g.inFlight,
		Capacity:     g.cfg.Capacity,
		RateLimits:   len(g.rateLimits),
		ServerErrors: len(g.serverErrors),
		Successes:    len(g.successes),
	}
}

func appendPruned(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	return append(prune(ts, now, window), now)
}

func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(ts); i++ {
		if ts[i].After(cutoff) {
			break
		}
	}
	return ts[i:]
}
