package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"
)

// Stream event names. These are part of the SSE wire contract and must not
// change without coordinating with dashboard clients.
const (
	EventRunStart      = "run_start"
	EventThreadCreated = "thread_created"
	EventStepThinking  = "step_thinking"
	EventStepStart     = "step_start"
	EventStepComplete  = "step_complete"
	EventMessage       = "message"
	EventRunComplete   = "run_complete"
	EventError         = "error"
)

// Truncation budgets for tool-call text carried on step_complete events.
const (
	QueryTruncateLen    = 500
	ResponseTruncateLen = 2000
)

// StreamEvent is one message on the outbound investigation stream.
// Events are ephemeral: they are forwarded to the SSE response and never
// persisted.
type StreamEvent struct {
	Name string
	Turn int
	Data any
}

// MarshalData serializes the payload with the turn tag injected.
func (e StreamEvent) MarshalData() ([]byte, error) {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", e.Name, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshaling %s payload: %w", e.Name, err)
	}
	m["turn"] = e.Turn
	return json.Marshal(m)
}

// RunStartPayload announces the start of a run. RunID may be empty until the
// remote service assigns one.
type RunStartPayload struct {
	RunID     string `json:"run_id"`
	Alert     string `json:"alert"`
	Timestamp string `json:"timestamp"`
}

// ThreadCreatedPayload carries the remote thread handle, emitted on turn 0 only.
type ThreadCreatedPayload struct {
	ThreadID string `json:"thread_id"`
}

// StepThinkingPayload signals that an agent is reasoning about its next move.
type StepThinkingPayload struct {
	Agent  string `json:"agent"`
	Status string `json:"status"`
}

// StepStartPayload marks the beginning of one tool invocation.
type StepStartPayload struct {
	Step  int    `json:"step"`
	Agent string `json:"agent"`
}

// StepCompletePayload carries the outcome of one tool invocation. Query and
// Response are truncated to their budgets plus ellipsis.
type StepCompletePayload struct {
	Step     int    `json:"step"`
	Agent    string `json:"agent"`
	Duration string `json:"duration"`
	Query    string `json:"query"`
	Response string `json:"response"`
	Error    bool   `json:"error"`
}

// MessagePayload is the agent's accumulated assistant text, flushed once
// after the run completes.
type MessagePayload struct {
	Text string `json:"text"`
}

// RunCompletePayload closes a successful run with accumulated totals.
type RunCompletePayload struct {
	Steps  int    `json:"steps"`
	Tokens int    `json:"tokens"`
	Time   string `json:"time"`
}

// ErrorPayload closes a failed run with a plain-English explanation.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Truncate shortens s to at most max bytes, appending an ellipsis on
// overflow. The cut never splits a multi-byte rune, so the result stays
// valid UTF-8 at no more than max+3 bytes.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// FormatDuration renders a duration the way the dashboard expects, e.g. "2.3s".
func FormatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 1, 64) + "s"
}
