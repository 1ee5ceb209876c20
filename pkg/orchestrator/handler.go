package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/probelab/inquest/pkg/agents"
	"github.com/probelab/inquest/pkg/models"
)

// runHandler translates remote streaming callbacks into ordered events.
// StreamRun invokes it from a single goroutine, so no locking is needed;
// state persists across retry attempts so step indices and token totals
// accumulate.
type runHandler struct {
	session *models.Session
	fleet   *agents.FleetRecord
	turn    int
	emit    func(models.StreamEvent) bool

	runStartEmitted bool
	thinkingSeen    map[string]bool
	deltas          strings.Builder
	runFailed       string
}

// beginAttempt resets per-attempt state before a (re)run. Step indices and
// token totals live on the session and keep accumulating; the delta buffer
// does not, or a failed attempt's partial text would leak into the retry's
// final message.
func (h *runHandler) beginAttempt() {
	h.thinkingSeen = map[string]bool{}
	h.deltas.Reset()
	h.runFailed = ""
}

func (h *runHandler) send(name string, data any) {
	h.emit(models.StreamEvent{Name: name, Turn: h.turn, Data: data})
}

func (h *runHandler) OnThreadRun(run agents.ThreadRun) {
	switch run.Status {
	case "in_progress", "queued":
		if h.runStartEmitted {
			return
		}
		h.runStartEmitted = true
		h.send(models.EventRunStart, models.RunStartPayload{
			RunID:     run.ID,
			Alert:     h.session.AlertText,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if h.turn == 0 {
			h.send(models.EventThreadCreated, models.ThreadCreatedPayload{
				ThreadID: h.session.ThreadID(),
			})
		}

	case "completed":
		if run.Usage.TotalTokens > 0 {
			h.session.AddTokens(run.Usage.TotalTokens)
		}

	case "failed", "expired", "cancelled":
		if run.LastError != nil {
			h.runFailed = fmt.Sprintf("[%s] %s", run.LastError.Code, run.LastError.Message)
		} else {
			h.runFailed = "run " + run.Status
		}
	}
}

func (h *runHandler) OnRunStep(step agents.RunStep) {
	if step.Type != "tool_calls" {
		return
	}
	switch step.Status {
	case "in_progress":
		if h.thinkingSeen[step.ID] {
			return
		}
		h.thinkingSeen[step.ID] = true
		h.send(models.EventStepThinking, models.StepThinkingPayload{
			Agent:  "Orchestrator",
			Status: "Analyzing which data sources to consult",
		})

	case "completed":
		duration := models.FormatDuration(step.Duration())
		for _, call := range step.ToolCalls {
			h.completeToolCall(call, duration, false, "")
		}

	case "failed":
		detail := "step failed"
		if step.Error != nil {
			detail = fmt.Sprintf("FAILED: [%s] %s", step.Error.Code, step.Error.Message)
		}
		duration := models.FormatDuration(step.Duration())
		if len(step.ToolCalls) > 0 {
			h.completeToolCall(step.ToolCalls[0], duration, true, detail)
		} else {
			h.completeToolCall(agents.ToolCall{}, duration, true, detail)
		}
	}
}

// completeToolCall emits the step_start / step_complete pair for one tool
// invocation and records the step on the session.
func (h *runHandler) completeToolCall(call agents.ToolCall, duration string, failed bool, failDetail string) {
	agent := h.agentName(call)
	index := h.session.NextStepIndex()

	query := models.Truncate(extractQuery(call.Arguments), models.QueryTruncateLen)
	response := call.Output
	if failed {
		response = failDetail
	}
	response = models.Truncate(response, models.ResponseTruncateLen)

	h.send(models.EventStepStart, models.StepStartPayload{Step: index, Agent: agent})
	h.session.AppendStep(models.Step{
		Index:    index,
		Agent:    agent,
		Duration: duration,
		Query:    query,
		Response: response,
		Error:    failed,
		Turn:     h.turn,
	})
	h.send(models.EventStepComplete, models.StepCompletePayload{
		Step:     index,
		Agent:    agent,
		Duration: duration,
		Query:    query,
		Response: response,
		Error:    failed,
	})
}

// agentName resolves the display name for a tool call: connected-agent calls
// map through the fleet, other kinds act as the orchestrator itself.
func (h *runHandler) agentName(call agents.ToolCall) string {
	switch call.Kind {
	case agents.ToolKindConnectedAgent:
		return h.fleet.DisplayName(call.AgentID)
	case agents.ToolKindSearch, agents.ToolKindOpenAPI:
		if call.Name != "" {
			return call.Name
		}
	}
	return "Orchestrator"
}

func (h *runHandler) OnMessageDelta(text string) {
	h.deltas.WriteString(text)
}

func (h *runHandler) OnError(err error) {
	if h.runFailed == "" {
		h.runFailed = err.Error()
	}
}

// messageText returns the accumulated assistant text.
func (h *runHandler) messageText() string {
	return strings.TrimSpace(h.deltas.String())
}

// extractQuery pulls the query argument out of a tool call's JSON arguments,
// falling back to the raw argument text.
func extractQuery(arguments string) string {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err == nil && args.Query != "" {
		return args.Query
	}
	return arguments
}
