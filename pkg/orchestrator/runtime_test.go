package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/agents"
	"github.com/probelab/inquest/pkg/models"
)

// fakeStreamer scripts the remote agent service: each StreamRun call consumes
// the next script in order.
type fakeStreamer struct {
	mu        sync.Mutex
	threads   int
	messages  []string
	scripts   []func(h agents.RunHandler) error
	calls     int
	stored    []agents.ThreadMessage
	listCalls int
}

func (f *fakeStreamer) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads++
	return fmt.Sprintf("th-%d", f.threads), nil
}

func (f *fakeStreamer) PostMessage(ctx context.Context, threadID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return nil
}

func (f *fakeStreamer) StreamRun(ctx context.Context, threadID, agentID string, h agents.RunHandler) error {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()
	if i >= len(f.scripts) {
		return fmt.Errorf("unexpected StreamRun call %d", i)
	}
	return f.scripts[i](h)
}

func (f *fakeStreamer) ListMessages(ctx context.Context, threadID string) ([]agents.ThreadMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return f.stored, nil
}

func testFleet() *agents.FleetRecord {
	return &agents.FleetRecord{
		Scenario: "telco-backbone",
		Agents: map[string]agents.ProvisionedAgent{
			"GraphExplorerAgent": {ID: "agent-graph", Name: "GraphExplorerAgent", Role: "graph"},
			"TelemetryAgent":     {ID: "agent-telemetry", Name: "TelemetryAgent", Role: "telemetry"},
			"Orchestrator":       {ID: "agent-orch", Name: "Orchestrator", IsOrchestrator: true,
				ConnectedAgents: []string{"GraphExplorerAgent", "TelemetryAgent"}},
		},
	}
}

func toolStep(id, agentID, query, output string) agents.RunStep {
	return agents.RunStep{
		ID: id, Status: "completed", Type: "tool_calls",
		StartedAt: 100, EndedAt: 102,
		ToolCalls: []agents.ToolCall{{
			ID: id + "-tc", Kind: agents.ToolKindConnectedAgent, AgentID: agentID,
			Arguments: fmt.Sprintf(`{"query": %q}`, query), Output: output,
		}},
	}
}

// happyScript emits the standard two-step investigation.
func happyScript(h agents.RunHandler) error {
	h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})

	h.OnRunStep(agents.RunStep{ID: "st-1", Status: "in_progress", Type: "tool_calls"})
	h.OnRunStep(toolStep("st-1", "agent-graph", "MATCH (l:Link) RETURN l", "LINK-01 down"))

	h.OnRunStep(agents.RunStep{ID: "st-2", Status: "in_progress", Type: "tool_calls"})
	h.OnRunStep(toolStep("st-2", "agent-telemetry", "LinkErrors | take 10", "error spike at 01:05"))

	h.OnMessageDelta("The fibre link ")
	h.OnMessageDelta("was cut at 01:05.")
	h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "completed", Usage: agents.Usage{TotalTokens: 900}})
	return nil
}

func collect(ch <-chan models.StreamEvent) []models.StreamEvent {
	var events []models.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func names(events []models.StreamEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Name
	}
	return out
}

func newTestRuntime(streamer *fakeStreamer) *Runtime {
	r := New(streamer, Config{StallWatchdog: 2 * time.Second})
	r.BindFleet("telco-backbone", testFleet())
	return r
}

func TestRunHappyPathOrdering(t *testing.T) {
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "LINK-SYD-MEL-FIBRE-01 down")

	events := collect(r.Run(context.Background(), session, session.AlertText))

	assert.Equal(t, []string{
		"run_start", "thread_created",
		"step_thinking", "step_start", "step_complete",
		"step_thinking", "step_start", "step_complete",
		"message", "run_complete",
	}, names(events))

	// Thread bound and reused.
	assert.Equal(t, "th-1", session.ThreadID())
	assert.Equal(t, "th-1", events[1].Data.(models.ThreadCreatedPayload).ThreadID)

	// Tool calls resolved to display names via the fleet.
	first := events[4].Data.(models.StepCompletePayload)
	assert.Equal(t, 1, first.Step)
	assert.Equal(t, "GraphExplorerAgent", first.Agent)
	assert.Equal(t, "MATCH (l:Link) RETURN l", first.Query)
	assert.Equal(t, "2.0s", first.Duration)

	second := events[7].Data.(models.StepCompletePayload)
	assert.Equal(t, 2, second.Step)
	assert.Equal(t, "TelemetryAgent", second.Agent)

	// Deltas flushed as one message; totals on run_complete.
	assert.Equal(t, "The fibre link was cut at 01:05.", events[8].Data.(models.MessagePayload).Text)
	complete := events[9].Data.(models.RunCompletePayload)
	assert.Equal(t, 2, complete.Steps)
	assert.Equal(t, 900, complete.Tokens)

	// Session state mirrors the stream.
	assert.Equal(t, 2, session.StepCount())
	assert.Equal(t, "The fibre link was cut at 01:05.", session.Diagnosis())

	// Every event carries the turn tag.
	for _, ev := range events {
		assert.Equal(t, 0, ev.Turn)
	}
}

func TestRunReadsStoredReplyWhenNoDeltas(t *testing.T) {
	// A run that completes without streaming any message deltas.
	quiet := func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		h.OnRunStep(agents.RunStep{ID: "st-1", Status: "in_progress", Type: "tool_calls"})
		h.OnRunStep(toolStep("st-1", "agent-graph", "MATCH (l:Link) RETURN l", "LINK-01 down"))
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "completed"})
		return nil
	}
	streamer := &fakeStreamer{
		scripts: []func(agents.RunHandler) error{quiet},
		stored: []agents.ThreadMessage{
			{ID: "m-2", Role: "assistant", Content: "Fibre cut confirmed."},
			{ID: "m-1", Role: "user", Content: "LINK-01 down"},
		},
	}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "LINK-01 down")

	events := collect(r.Run(context.Background(), session, session.AlertText))

	require.Equal(t, 1, streamer.listCalls)
	var msg string
	for _, ev := range events {
		if ev.Name == models.EventMessage {
			msg = ev.Data.(models.MessagePayload).Text
		}
	}
	assert.Equal(t, "Fibre cut confirmed.", msg)
	assert.Equal(t, "Fibre cut confirmed.", session.Diagnosis())
}

func TestRunTruncatesQueryAndResponse(t *testing.T) {
	longQuery := strings.Repeat("q", 800)
	longOutput := strings.Repeat("r", 3000)
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		h.OnRunStep(toolStep("st-1", "agent-graph", longQuery, longOutput))
		h.OnThreadRun(agents.ThreadRun{Status: "completed"})
		return nil
	}}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	var payload models.StepCompletePayload
	for _, ev := range events {
		if ev.Name == models.EventStepComplete {
			payload = ev.Data.(models.StepCompletePayload)
		}
	}
	assert.Len(t, payload.Query, models.QueryTruncateLen+3)
	assert.True(t, strings.HasSuffix(payload.Query, "..."))
	assert.Len(t, payload.Response, models.ResponseTruncateLen+3)
}

func TestRunNotConfiguredFallback(t *testing.T) {
	r := New(&fakeStreamer{}, Config{})
	session := models.NewSession("s-1", "unknown-scenario", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	require.Len(t, events, 1)
	assert.Equal(t, models.EventError, events[0].Name)
	assert.Contains(t, events[0].Data.(models.ErrorPayload).Message, "not configured")
	assert.Contains(t, session.ErrorDetail(), "not configured")
}

func TestRunRetryThenSuccess(t *testing.T) {
	failing := func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		h.OnThreadRun(agents.ThreadRun{Status: "failed",
			LastError: &agents.RunError{Code: "server_error", Message: "model overloaded"}})
		return nil
	}
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{failing, happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))

	// Intermediate failure surfaces as a retry notice, not an error.
	var retryNotices int
	for _, ev := range events {
		if ev.Name == models.EventStepThinking {
			if p, ok := ev.Data.(models.StepThinkingPayload); ok && strings.Contains(p.Status, "Retrying (2/2)") {
				retryNotices++
			}
		}
	}
	assert.Equal(t, 1, retryNotices)
	assert.Equal(t, models.EventRunComplete, events[len(events)-1].Name)

	// The steering message describes the prior failure.
	require.Len(t, streamer.messages, 2)
	assert.Contains(t, streamer.messages[1], "model overloaded")
	assert.Contains(t, streamer.messages[1], "simpler query")
}

func TestRunRetryDiscardsFailedAttemptDeltas(t *testing.T) {
	// The first attempt streams partial text before the run fails; the retry
	// must flush only its own text.
	failing := func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		h.OnMessageDelta("Preliminary guess: ")
		h.OnMessageDelta("router misconfiguration.")
		h.OnThreadRun(agents.ThreadRun{Status: "failed",
			LastError: &agents.RunError{Code: "server_error", Message: "model overloaded"}})
		return nil
	}
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{failing, happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))

	var msg string
	for _, ev := range events {
		if ev.Name == models.EventMessage {
			msg = ev.Data.(models.MessagePayload).Text
		}
	}
	assert.Equal(t, "The fibre link was cut at 01:05.", msg)
	assert.NotContains(t, msg, "Preliminary guess")
	assert.Equal(t, "The fibre link was cut at 01:05.", session.Diagnosis())
}

func TestRunRetryThenFail(t *testing.T) {
	failing := func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		h.OnThreadRun(agents.ThreadRun{Status: "failed",
			LastError: &agents.RunError{Code: "server_error", Message: "boom"}})
		return nil
	}
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{failing, failing}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	eventNames := names(events)

	// Terminal event is error, never run_complete.
	assert.Equal(t, models.EventError, eventNames[len(eventNames)-1])
	assert.NotContains(t, eventNames, models.EventRunComplete)
	assert.Contains(t, events[len(events)-1].Data.(models.ErrorPayload).Message, "after 2 attempts")
	assert.Contains(t, session.ErrorDetail(), "boom")
}

func TestRunStallWatchdog(t *testing.T) {
	release := make(chan struct{})
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		<-release // silence beyond the watchdog
		return nil
	}}}
	defer close(release)

	r := New(streamer, Config{StallWatchdog: 100 * time.Millisecond})
	r.BindFleet("telco-backbone", testFleet())
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.EventError, last.Name)
	assert.Contains(t, last.Data.(models.ErrorPayload).Message, "appears stuck")
}

func TestRunWatchdogResetsOnProgress(t *testing.T) {
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{func(h agents.RunHandler) error {
		h.OnThreadRun(agents.ThreadRun{ID: "run-1", Status: "in_progress"})
		// Each gap is under the watchdog; the total exceeds it.
		for i := 0; i < 4; i++ {
			time.Sleep(60 * time.Millisecond)
			h.OnRunStep(toolStep(fmt.Sprintf("st-%d", i), "agent-graph", "q", "r"))
		}
		h.OnThreadRun(agents.ThreadRun{Status: "completed"})
		return nil
	}}}
	r := New(streamer, Config{StallWatchdog: 200 * time.Millisecond})
	r.BindFleet("telco-backbone", testFleet())
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	assert.Equal(t, models.EventRunComplete, events[len(events)-1].Name)
}

func TestRunCancelledBeforeSubmission(t *testing.T) {
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")
	session.Cancel()

	events := collect(r.Run(context.Background(), session, "alert"))
	assert.Empty(t, events)
	assert.Equal(t, 0, streamer.calls)
}

func TestRunMultiTurnReusesThread(t *testing.T) {
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{happyScript, happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "LINK-01 down")

	first := collect(r.Run(context.Background(), session, session.AlertText))
	require.Equal(t, models.EventRunComplete, first[len(first)-1].Name)

	session.IncrementTurn()
	second := collect(r.Run(context.Background(), session, "What about LINK-02?"))

	// One thread for the whole session.
	assert.Equal(t, 1, streamer.threads)

	// Follow-up events carry turn 1 and no thread_created.
	assert.NotContains(t, names(second), models.EventThreadCreated)
	for _, ev := range second {
		assert.Equal(t, 1, ev.Turn)
	}

	// Step indices continue across turns.
	var lastStep models.StepCompletePayload
	for _, ev := range second {
		if ev.Name == models.EventStepComplete {
			lastStep = ev.Data.(models.StepCompletePayload)
		}
	}
	assert.Equal(t, 4, lastStep.Step)
	assert.Equal(t, 4, session.StepCount())
}

func TestRunTerminalEventIsLast(t *testing.T) {
	streamer := &fakeStreamer{scripts: []func(agents.RunHandler) error{happyScript}}
	r := newTestRuntime(streamer)
	session := models.NewSession("s-1", "telco-backbone", "alert")

	events := collect(r.Run(context.Background(), session, "alert"))
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventRunStart, events[0].Name)
	for i, ev := range events[:len(events)-1] {
		assert.NotEqual(t, models.EventRunComplete, ev.Name, "event %d", i)
		assert.NotEqual(t, models.EventError, ev.Name, "event %d", i)
	}
}
