// Package session owns investigation session identity: admission, lifecycle,
// idle expiry, the recent-session cache, and durable recording of every
// terminal outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/probelab/inquest/pkg/database"
	"github.com/probelab/inquest/pkg/models"
)

var (
	// ErrCapacityExceeded is returned when the active-session ceiling is hit.
	ErrCapacityExceeded = errors.New("active session capacity exceeded")

	// ErrNotFound is returned when no live or recent session has the id.
	ErrNotFound = errors.New("session not found")

	// ErrNotContinuable is returned by Continue on a session that is not in
	// Completed state. A failed session starts over as a new session.
	ErrNotContinuable = errors.New("session is not in a continuable state")
)

// Runner drives one turn of a session and delivers its event sequence.
type Runner interface {
	Run(ctx context.Context, session *models.Session, input string) <-chan models.StreamEvent
}

// Config holds the registry tuning knobs.
type Config struct {
	MaxActive   int           // admission ceiling (default 20)
	RecentSize  int           // finalized-session cache size (default 100)
	IdleTimeout time.Duration // eviction delay after Completed (default 10m)
}

func (c Config) withDefaults() Config {
	if c.MaxActive <= 0 {
		c.MaxActive = 20
	}
	if c.RecentSize <= 0 {
		c.RecentSize = 100
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	return c
}

// entry is one active session plus its turn bookkeeping.
type entry struct {
	session   *models.Session
	log       *EventLog
	idleTimer *time.Timer

	// timerGen invalidates idle-timer callbacks that fired before a
	// Continue could stop them. Bumped under the registry mutex whenever the
	// timer is armed or the session leaves the idle state; a callback whose
	// captured generation no longer matches is stale and must not evict.
	timerGen uint64
}

// Registry owns the active and recent session collections. A session lives
// in exactly one of: the active map, the recent cache, or the durable store.
type Registry struct {
	cfg    Config
	runner Runner
	store  database.Store

	mu     sync.Mutex
	active map[string]*entry
	recent *lru.Cache[string, models.Snapshot]
}

// NewRegistry creates a registry over the given runner and durable store.
func NewRegistry(runner Runner, store database.Store, cfg Config) (*Registry, error) {
	cfg = cfg.withDefaults()
	recent, err := lru.New[string, models.Snapshot](cfg.RecentSize)
	if err != nil {
		return nil, fmt.Errorf("creating recent cache: %w", err)
	}
	return &Registry{
		cfg:    cfg,
		runner: runner,
		store:  store,
		active: map[string]*entry{},
		recent: recent,
	}, nil
}

// Create admits a new session in Pending state. Fails with
// ErrCapacityExceeded at the active ceiling.
func (r *Registry) Create(scenario, alertText string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.active) >= r.cfg.MaxActive {
		return nil, fmt.Errorf("%w: %d active", ErrCapacityExceeded, len(r.active))
	}

	session := models.NewSession(uuid.New().String(), scenario, alertText)
	r.active[session.ID] = &entry{session: session, log: NewEventLog()}
	slog.Info("Session created", "session_id", session.ID, "scenario", scenario)
	return session, nil
}

// Start transitions the session to InProgress and launches its turn worker.
// Non-blocking.
func (r *Registry) Start(session *models.Session) {
	r.mu.Lock()
	e, ok := r.active[session.ID]
	r.mu.Unlock()
	if !ok {
		slog.Warn("Start on unknown session", "session_id", session.ID)
		return
	}
	session.SetStatus(models.StatusInProgress)
	go r.runTurn(e, session.AlertText)
}

// Continue starts a follow-up turn. Valid only while the session is
// Completed and still in the active map.
func (r *Registry) Continue(id, followUpText string) (*models.Session, error) {
	r.mu.Lock()
	e, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotFound
	}
	if e.session.Status() != models.StatusCompleted {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: status %s", ErrNotContinuable, e.session.Status())
	}
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
	// Stop does not guarantee the callback has not already fired; the bump
	// makes any in-flight callback a stale no-op.
	e.timerGen++
	e.log = NewEventLog()
	r.mu.Unlock()

	e.session.ClearError()
	turn := e.session.IncrementTurn()
	e.session.SetStatus(models.StatusInProgress)
	slog.Info("Session continued", "session_id", id, "turn", turn)

	go r.runTurn(e, followUpText)
	return e.session, nil
}

// runTurn consumes the runner's event sequence into the turn log, then
// finalizes. The registry is the guaranteed consumer: an SSE client walking
// away never stalls the run.
func (r *Registry) runTurn(e *entry, input string) {
	ch := r.runner.Run(context.Background(), e.session, input)
	for ev := range ch {
		e.log.Append(ev)
	}
	e.log.Close()
	r.finalize(e)
}

// finalize maps the observed end-of-turn state to a terminal status:
// cancel signal set evicts as Cancelled; an error with no diagnosis evicts
// as Failed; otherwise the session completes and idles for later follow-ups.
func (r *Registry) finalize(e *entry) {
	s := e.session
	switch {
	case s.IsCancelled():
		s.SetStatus(models.StatusCancelled)
		slog.Info("Session cancelled", "session_id", s.ID)
		r.evict(s.ID)

	case s.ErrorDetail() != "" && s.Diagnosis() == "":
		s.SetStatus(models.StatusFailed)
		slog.Warn("Session failed", "session_id", s.ID, "error", s.ErrorDetail())
		r.evict(s.ID)

	default:
		s.SetStatus(models.StatusCompleted)
		r.persist(s.Snapshot())
		r.armIdleTimer(e)
		slog.Info("Session completed",
			"session_id", s.ID,
			"steps", s.StepCount(),
			"turn", s.Turn())
	}
}

// armIdleTimer schedules eviction after the idle window, replacing any
// previous timer.
func (r *Registry) armIdleTimer(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.timerGen++
	id, gen := e.session.ID, e.timerGen
	e.idleTimer = time.AfterFunc(r.cfg.IdleTimeout, func() {
		r.evictIdle(id, gen)
	})
}

// evictIdle is the idle-timer callback. It re-checks under the mutex that
// the timer generation still matches and the session is still idle: a
// Continue racing the fired callback wins, and the stale callback backs off.
func (r *Registry) evictIdle(id string, gen uint64) {
	r.mu.Lock()
	e, ok := r.active[id]
	if !ok || e.timerGen != gen || e.session.Status() != models.StatusCompleted {
		r.mu.Unlock()
		return
	}
	slog.Info("Session idle timeout", "session_id", id)
	snap := r.removeLocked(e)
	r.mu.Unlock()

	r.persist(snap)
}

// evict moves a session from the active map to the recent cache, persisting
// its final snapshot. Persist failures are logged, never propagated.
func (r *Registry) evict(id string) {
	r.mu.Lock()
	e, ok := r.active[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	snap := r.removeLocked(e)
	r.mu.Unlock()

	r.persist(snap)
}

// removeLocked drops the entry from the active map and records its snapshot
// in the recent cache. Caller holds r.mu.
func (r *Registry) removeLocked(e *entry) models.Snapshot {
	if e.idleTimer != nil {
		e.idleTimer.Stop()
	}
	e.timerGen++
	delete(r.active, e.session.ID)
	snap := e.session.Snapshot()
	r.recent.Add(snap.ID, snap)
	return snap
}

func (r *Registry) persist(snap models.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.SaveSnapshot(ctx, snap); err != nil {
		slog.Error("Failed to persist session", "session_id", snap.ID, "error", err)
	}
}

// Get returns a snapshot of a live or recently-finalized session. Callers
// fall back to the durable store on ErrNotFound.
func (r *Registry) Get(id string) (models.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.active[id]; ok {
		return e.session.Snapshot(), nil
	}
	if snap, ok := r.recent.Get(id); ok {
		return snap, nil
	}
	return models.Snapshot{}, ErrNotFound
}

// Log returns the current turn's event log for a live session.
func (r *Registry) Log(id string) (*EventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.active[id]; ok {
		return e.log, nil
	}
	return nil, ErrNotFound
}

// Session returns the live session object, used for cancellation.
func (r *Registry) Session(id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.active[id]; ok {
		return e.session, nil
	}
	return nil, ErrNotFound
}

// Cancel raises the session's cancel signal. An idle (Completed) session is
// evicted immediately; an in-progress one is finalized by its own worker at
// the next submission point.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	e, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.session.Cancel()
	if e.session.Status().Terminal() {
		e.session.SetStatus(models.StatusCancelled)
		e.log.Close()
		r.evict(id)
	}
	return nil
}

// List returns active sessions most-recent-first, then recent-cache entries
// newest-first, optionally filtered by scenario.
func (r *Registry) List(scenario string) []models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var activeSnaps []models.Snapshot
	for _, e := range r.active {
		snap := e.session.Snapshot()
		if scenario != "" && snap.Scenario != scenario {
			continue
		}
		activeSnaps = append(activeSnaps, snap)
	}
	sort.Slice(activeSnaps, func(i, j int) bool {
		return activeSnaps[i].CreatedAt.After(activeSnaps[j].CreatedAt)
	})

	// LRU keys run oldest to newest; walk them backwards.
	keys := r.recent.Keys()
	out := activeSnaps
	for i := len(keys) - 1; i >= 0; i-- {
		snap, ok := r.recent.Peek(keys[i])
		if !ok {
			continue
		}
		if scenario != "" && snap.Scenario != scenario {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// ListWithHistory merges the in-memory listing with the durable store,
// deduplicating by id with in-memory precedence.
func (r *Registry) ListWithHistory(ctx context.Context, scenario string, limit int) ([]models.Snapshot, error) {
	out := r.List(scenario)
	seen := make(map[string]bool, len(out))
	for _, snap := range out {
		seen[snap.ID] = true
	}

	stored, err := r.store.ListRecent(ctx, scenario, limit)
	if err != nil {
		slog.Warn("History listing unavailable", "error", err)
		stored = nil
	}
	for _, snap := range stored {
		if seen[snap.ID] {
			continue
		}
		out = append(out, snap)
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ActiveCount reports the number of live sessions.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
