// Package models holds the core domain types shared across the investigation
// runtime: sessions, steps, and the outbound stream event catalog.
package models

import (
	"fmt"
	"sync"
	"time"
)

// Status represents the current state of an investigation session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Step records one tool-call result observed during a run.
// Steps are append-only; indices are monotonic within a session and never
// reused across turns.
type Step struct {
	Index    int    `json:"index"`
	Agent    string `json:"agent"`
	Duration string `json:"duration"`
	Query    string `json:"query"`
	Response string `json:"response"`
	Error    bool   `json:"error,omitempty"`
	Turn     int    `json:"turn"`
}

// RunMeta accumulates run-level totals across all turns of a session.
type RunMeta struct {
	Steps   int    `json:"steps"`
	Tokens  int    `json:"tokens"`
	Elapsed string `json:"elapsed,omitempty"`
}

// Session represents one investigation: the initial alert plus follow-ups.
// Mutations are only performed by the orchestrator task bound to the session;
// external readers take a consistent snapshot via Snapshot.
type Session struct {
	ID        string
	Scenario  string
	AlertText string

	mu          sync.RWMutex
	status      Status
	threadID    string
	steps       []Step
	diagnosis   string
	runMeta     RunMeta
	errorDetail string
	turn        int
	createdAt   time.Time
	updatedAt   time.Time
	cancelCh    chan struct{}
	cancelOnce  sync.Once
}

// NewSession creates a session in Pending state.
func NewSession(id, scenario, alertText string) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Scenario:  scenario,
		AlertText: alertText,
		status:    StatusPending,
		createdAt: now,
		updatedAt: now,
		cancelCh:  make(chan struct{}),
	}
}

// Snapshot is a consistent read-only copy of a session's mutable state.
type Snapshot struct {
	ID          string    `json:"id"`
	Scenario    string    `json:"scenario"`
	AlertText   string    `json:"alert_text"`
	Status      Status    `json:"status"`
	ThreadID    string    `json:"thread_id,omitempty"`
	Steps       []Step    `json:"steps"`
	Diagnosis   string    `json:"diagnosis,omitempty"`
	RunMeta     RunMeta   `json:"run_meta"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	TurnCount   int       `json:"turn_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a deep copy of the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := make([]Step, len(s.steps))
	copy(steps, s.steps)

	return Snapshot{
		ID:          s.ID,
		Scenario:    s.Scenario,
		AlertText:   s.AlertText,
		Status:      s.status,
		ThreadID:    s.threadID,
		Steps:       steps,
		Diagnosis:   s.diagnosis,
		RunMeta:     s.runMeta,
		ErrorDetail: s.errorDetail,
		TurnCount:   s.turn,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus updates the session status.
func (s *Session) SetStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.updatedAt = time.Now()
}

// SetError records the per-turn error detail.
func (s *Session) SetError(detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorDetail = detail
	s.updatedAt = time.Now()
}

// ClearError clears the per-turn error detail (used by Continue).
func (s *Session) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorDetail = ""
}

// ErrorDetail returns the recorded error detail, if any.
func (s *Session) ErrorDetail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errorDetail
}

// SetThreadID binds the remote thread handle. The handle is immutable once
// set; a second call with a different id is an error.
func (s *Session) SetThreadID(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadID != "" && s.threadID != id {
		return fmt.Errorf("thread id already bound to %q", s.threadID)
	}
	s.threadID = id
	s.updatedAt = time.Now()
	return nil
}

// ThreadID returns the bound remote thread handle ("" if unbound).
func (s *Session) ThreadID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threadID
}

// AppendStep appends a step and bumps the run total.
func (s *Session) AppendStep(step Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
	s.runMeta.Steps++
	s.updatedAt = time.Now()
}

// NextStepIndex returns the index the next appended step should carry.
// Indices continue across turns.
func (s *Session) NextStepIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps) + 1
}

// StepCount returns the number of recorded steps.
func (s *Session) StepCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.steps)
}

// SetDiagnosis records the investigation conclusion text.
func (s *Session) SetDiagnosis(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnosis = text
	s.updatedAt = time.Now()
}

// Diagnosis returns the recorded diagnosis text.
func (s *Session) Diagnosis() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diagnosis
}

// AddTokens accumulates token usage into the run meta.
func (s *Session) AddTokens(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runMeta.Tokens += n
}

// SetElapsed records the total elapsed time string for the last run.
func (s *Session) SetElapsed(elapsed string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runMeta.Elapsed = elapsed
}

// RunMeta returns the accumulated run totals.
func (s *Session) RunMeta() RunMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runMeta
}

// Turn returns the current turn index (0 for the initial alert).
func (s *Session) Turn() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turn
}

// IncrementTurn advances to the next follow-up turn and returns its index.
func (s *Session) IncrementTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	s.updatedAt = time.Now()
	return s.turn
}

// Cancel raises the session's cancel signal. Idempotent.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.cancelCh) })
}

// CancelSignal returns a channel closed when the session is cancelled.
// The orchestrator worker observes it at every submission point.
func (s *Session) CancelSignal() <-chan struct{} {
	return s.cancelCh
}

// IsCancelled reports whether the cancel signal has been raised.
func (s *Session) IsCancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}
