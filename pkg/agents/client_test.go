package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures callback invocations in order.
type recordingHandler struct {
	runs   []ThreadRun
	steps  []RunStep
	deltas []string
	errs   []error
	order  []string
}

func (h *recordingHandler) OnThreadRun(run ThreadRun) {
	h.runs = append(h.runs, run)
	h.order = append(h.order, "run:"+run.Status)
}

func (h *recordingHandler) OnRunStep(step RunStep) {
	h.steps = append(h.steps, step)
	h.order = append(h.order, "step:"+step.Status)
}

func (h *recordingHandler) OnMessageDelta(text string) {
	h.deltas = append(h.deltas, text)
	h.order = append(h.order, "delta")
}

func (h *recordingHandler) OnError(err error) {
	h.errs = append(h.errs, err)
	h.order = append(h.order, "error")
}

const runStreamFixture = `event: thread.run.in_progress
data: {"id": "run-1", "thread_id": "th-1", "status": "in_progress"}

event: thread.run.step.in_progress
data: {"id": "st-1", "status": "in_progress", "type": "tool_calls"}

event: thread.run.step.completed
data: {"id": "st-1", "status": "completed", "type": "tool_calls", "tool_calls": [{"id": "tc-1", "type": "connected_agent", "agent_id": "agent-7", "arguments": "{\"query\": \"MATCH (n) RETURN n\"}", "output": "3 rows"}], "started_at": 100, "completed_at": 102}

event: thread.message.delta
data: {"delta": {"text": "The link "}}

event: thread.message.delta
data: {"delta": {"text": "is down."}}

event: thread.run.completed
data: {"id": "run-1", "thread_id": "th-1", "status": "completed", "usage": {"total_tokens": 1234}}

`

func TestStreamRunDispatchesInWireOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/th-1/runs", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])
		assert.Equal(t, "agent-1", req["agent_id"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(runStreamFixture))
	}))
	defer server.Close()

	h := &recordingHandler{}
	c := NewClient(server.URL, "key")
	require.NoError(t, c.StreamRun(context.Background(), "th-1", "agent-1", h))

	assert.Equal(t, []string{
		"run:in_progress", "step:in_progress", "step:completed",
		"delta", "delta", "run:completed",
	}, h.order)

	require.Len(t, h.steps, 2)
	completed := h.steps[1]
	require.Len(t, completed.ToolCalls, 1)
	assert.Equal(t, ToolKindConnectedAgent, completed.ToolCalls[0].Kind)
	assert.Equal(t, "agent-7", completed.ToolCalls[0].AgentID)
	assert.Equal(t, "2s", completed.Duration().String())

	assert.Equal(t, []string{"The link ", "is down."}, h.deltas)
	assert.Equal(t, 1234, h.runs[1].Usage.TotalTokens)
	assert.Empty(t, h.errs)
}

func TestStreamRunRejectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such thread", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	err := c.StreamRun(context.Background(), "missing", "agent-1", &recordingHandler{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestListAgentsFollowsPagination(t *testing.T) {
	var afters []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		afters = append(afters, after)
		if after == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":     []AgentInfo{{ID: "a-1", Name: "One"}},
				"has_more": true,
				"last_id":  "a-1",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":     []AgentInfo{{ID: "a-2", Name: "Two"}},
			"has_more": false,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, []string{"", "a-1"}, afters)
}

func TestThreadLifecycle(t *testing.T) {
	var posted []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted = append(posted, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/threads":
			_, _ = fmt.Fprint(w, `{"id": "th-9"}`)
		case strings.HasSuffix(r.URL.Path, "/messages"):
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "user", body["role"])
			w.WriteHeader(http.StatusCreated)
		case strings.HasSuffix(r.URL.Path, "/runs"):
			_, _ = fmt.Fprint(w, `{"id": "run-9"}`)
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	ctx := context.Background()

	threadID, err := c.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "th-9", threadID)

	require.NoError(t, c.PostMessage(ctx, threadID, "user", "LINK-01 down"))

	runID, err := c.CreateRun(ctx, threadID, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "run-9", runID)

	assert.Equal(t, []string{
		"POST /threads",
		"POST /threads/th-9/messages",
		"POST /threads/th-9/runs",
	}, posted)
}

func TestListMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/threads/th-9/messages", r.URL.Path)
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		_, _ = fmt.Fprint(w, `{"data": [
			{"id": "m-2", "role": "assistant", "content": "Fibre cut confirmed."},
			{"id": "m-1", "role": "user", "content": "LINK-01 down"}
		]}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	msgs, err := c.ListMessages(context.Background(), "th-9")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "assistant", msgs[0].Role)
	assert.Equal(t, "Fibre cut confirmed.", msgs[0].Content)
}
