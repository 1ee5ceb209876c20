// Package orchestrator drives a remote agent thread to completion,
// translating its callback-driven streaming protocol into a strictly-ordered
// event sequence with stall detection and whole-run retry.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/probelab/inquest/pkg/agents"
	"github.com/probelab/inquest/pkg/models"
)

// StreamerAPI is the slice of the agent-service client the runtime drives.
type StreamerAPI interface {
	CreateThread(ctx context.Context) (string, error)
	PostMessage(ctx context.Context, threadID, role, content string) error
	StreamRun(ctx context.Context, threadID, agentID string, handler agents.RunHandler) error
	ListMessages(ctx context.Context, threadID string) ([]agents.ThreadMessage, error)
}

// Config tunes the runtime.
type Config struct {
	// StallWatchdog is the maximum silence between events before the run is
	// declared stuck (default 120s).
	StallWatchdog time.Duration

	// MaxAttempts is the whole-run attempt budget (default 2).
	MaxAttempts int

	// ChannelDepth bounds the internal worker-to-consumer channel (default 16).
	ChannelDepth int
}

func (c Config) withDefaults() Config {
	if c.StallWatchdog <= 0 {
		c.StallWatchdog = 120 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.ChannelDepth <= 0 {
		c.ChannelDepth = 16
	}
	return c
}

// Runtime binds sessions to remote agent threads. One Runtime serves all
// scenarios; fleets are registered per scenario after provisioning.
type Runtime struct {
	api StreamerAPI
	cfg Config

	mu     sync.RWMutex
	fleets map[string]*agents.FleetRecord
}

// New creates a runtime over the given agent-service client.
func New(api StreamerAPI, cfg Config) *Runtime {
	return &Runtime{
		api:    api,
		cfg:    cfg.withDefaults(),
		fleets: map[string]*agents.FleetRecord{},
	}
}

// BindFleet registers the provisioned fleet for a scenario.
func (r *Runtime) BindFleet(scenario string, fleet *agents.FleetRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fleets[scenario] = fleet
}

// Fleet returns the fleet bound to a scenario, or nil.
func (r *Runtime) Fleet(scenario string) *agents.FleetRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fleets[scenario]
}

// Run drives one turn of the session. The returned channel delivers a finite,
// ordered event sequence ending with exactly one of run_complete or error,
// then closes. The sequence is not restartable.
//
// The worker observes the session's cancel signal at submission points; a
// consumer that walks away does not cancel the worker, its later emissions
// are simply discarded.
func (r *Runtime) Run(ctx context.Context, session *models.Session, input string) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent)
	internal := make(chan models.StreamEvent, r.cfg.ChannelDepth)
	abandoned := make(chan struct{})

	emit := func(ev models.StreamEvent) bool {
		select {
		case internal <- ev:
			return true
		case <-abandoned:
			return false
		}
	}

	go func() {
		defer close(internal)
		r.drive(ctx, session, input, emit)
	}()

	go r.consume(session, internal, out, abandoned)
	return out
}

// consume forwards worker events to the caller, enforcing the stall watchdog.
// A silence of exactly the watchdog duration is tolerated; one tick longer
// trips it.
func (r *Runtime) consume(session *models.Session, internal <-chan models.StreamEvent, out chan<- models.StreamEvent, abandoned chan struct{}) {
	defer close(out)
	watchdog := time.NewTimer(r.cfg.StallWatchdog)
	defer watchdog.Stop()

	for {
		select {
		case ev, ok := <-internal:
			if !ok {
				return
			}
			out <- ev
			if !watchdog.Stop() {
				select {
				case <-watchdog.C:
				default:
				}
			}
			watchdog.Reset(r.cfg.StallWatchdog)

		case <-watchdog.C:
			slog.Error("Investigation stalled",
				"session_id", session.ID,
				"watchdog", r.cfg.StallWatchdog)
			msg := fmt.Sprintf("Investigation appears stuck: no progress for %s", r.cfg.StallWatchdog)
			session.SetError(msg)
			out <- models.StreamEvent{
				Name: models.EventError,
				Turn: session.Turn(),
				Data: models.ErrorPayload{Message: msg},
			}
			close(abandoned)
			return
		}
	}
}

// drive runs the attempt loop on the worker goroutine.
func (r *Runtime) drive(ctx context.Context, session *models.Session, input string, emit func(models.StreamEvent) bool) {
	turn := session.Turn()
	started := time.Now()

	fleet := r.Fleet(session.Scenario)
	if fleet == nil || fleet.Orchestrator() == nil {
		msg := fmt.Sprintf("Scenario %q is not configured: no agent fleet has been provisioned", session.Scenario)
		session.SetError(msg)
		emit(models.StreamEvent{Name: models.EventError, Turn: turn, Data: models.ErrorPayload{Message: msg}})
		return
	}
	orchestratorID := fleet.Orchestrator().ID

	if session.IsCancelled() {
		return
	}

	// Bind the remote thread on turn 0; later turns reuse the handle.
	threadID := session.ThreadID()
	if threadID == "" {
		id, err := r.api.CreateThread(ctx)
		if err != nil {
			msg := "Could not start the investigation: " + err.Error()
			session.SetError(msg)
			emit(models.StreamEvent{Name: models.EventError, Turn: turn, Data: models.ErrorPayload{Message: msg}})
			return
		}
		if err := session.SetThreadID(id); err != nil {
			session.SetError(err.Error())
			emit(models.StreamEvent{Name: models.EventError, Turn: turn, Data: models.ErrorPayload{Message: err.Error()}})
			return
		}
		threadID = id
	}

	h := &runHandler{
		session: session,
		fleet:   fleet,
		turn:    turn,
		emit:    emit,
	}

	message := input
	var lastFailure string
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if session.IsCancelled() {
			return
		}
		if attempt > 1 {
			emit(models.StreamEvent{
				Name: models.EventStepThinking,
				Turn: turn,
				Data: models.StepThinkingPayload{
					Agent:  "Orchestrator",
					Status: fmt.Sprintf("Retrying (%d/%d)", attempt, r.cfg.MaxAttempts),
				},
			})
			message = fmt.Sprintf(
				"The previous investigation attempt failed: %s. Try a simpler query or skip a data source.",
				lastFailure)
		}

		if err := r.api.PostMessage(ctx, threadID, "user", message); err != nil {
			lastFailure = "posting message: " + err.Error()
			slog.Warn("Run attempt failed", "session_id", session.ID, "attempt", attempt, "error", lastFailure)
			continue
		}
		if session.IsCancelled() {
			return
		}

		h.beginAttempt()
		err := r.api.StreamRun(ctx, threadID, orchestratorID, h)
		switch {
		case err != nil:
			lastFailure = err.Error()
		case h.runFailed != "":
			lastFailure = h.runFailed
		default:
			// Success: flush the accumulated message, then close the run.
			text := h.messageText()
			if text == "" {
				// Some service tiers don't stream deltas; read the stored reply.
				text = r.lastAssistantMessage(ctx, threadID)
			}
			if text != "" {
				session.SetDiagnosis(text)
				emit(models.StreamEvent{Name: models.EventMessage, Turn: turn,
					Data: models.MessagePayload{Text: text}})
			}
			elapsed := models.FormatDuration(time.Since(started))
			session.SetElapsed(elapsed)
			meta := session.RunMeta()
			emit(models.StreamEvent{Name: models.EventRunComplete, Turn: turn,
				Data: models.RunCompletePayload{Steps: meta.Steps, Tokens: meta.Tokens, Time: elapsed}})
			return
		}
		slog.Warn("Run attempt failed", "session_id", session.ID, "attempt", attempt, "error", lastFailure)
	}

	if session.IsCancelled() {
		return
	}
	msg := fmt.Sprintf("Investigation failed after %d attempts: %s", r.cfg.MaxAttempts, lastFailure)
	session.SetError(msg)
	emit(models.StreamEvent{Name: models.EventError, Turn: turn, Data: models.ErrorPayload{Message: msg}})
}

// lastAssistantMessage reads the thread's newest assistant reply. Best effort;
// an empty string means the stream carried the text (or the read failed).
func (r *Runtime) lastAssistantMessage(ctx context.Context, threadID string) string {
	msgs, err := r.api.ListMessages(ctx, threadID)
	if err != nil {
		slog.Warn("Could not read thread messages", "thread_id", threadID, "error", err)
		return ""
	}
	for _, m := range msgs {
		if m.Role == "assistant" {
			return m.Content
		}
	}
	return ""
}
