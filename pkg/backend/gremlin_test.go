package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/throttle"
)

// scriptedFrame is one response the fake gremlin server emits per eval.
type scriptedFrame struct {
	code int
	data []json.RawMessage
}

func newTestGremlin(t *testing.T, script []scriptedFrame, gate *throttle.Gate) *Gremlin {
	t.Helper()
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}
			mimeLen := int(payload[0])
			var req struct {
				RequestID string `json:"requestId"`
				Op        string `json:"op"`
			}
			if json.Unmarshal(payload[1+mimeLen:], &req) != nil {
				return
			}
			if calls >= len(script) {
				return
			}
			fr := script[calls]
			calls++
			resp, _ := json.Marshal(map[string]any{
				"requestId": req.RequestID,
				"status":    map[string]any{"code": fr.code, "message": "scripted"},
				"result":    map[string]any{"data": fr.data},
			})
			if conn.Write(ctx, websocket.MessageText, resp) != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	g := NewGremlin(GremlinConfig{
		Endpoint:   "ws" + strings.TrimPrefix(srv.URL, "http"),
		Database:   "graphdb",
		Graph:      "topology",
		PrimaryKey: "test-key",
	}, gate)
	g.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGremlinExecuteQueryRecordsSuccess(t *testing.T) {
	gate := throttle.NewGate("graph", throttle.DefaultConfig())
	g := newTestGremlin(t, []scriptedFrame{
		{code: 200, data: []json.RawMessage{json.RawMessage(`1`)}},
	}, gate)

	rs, err := g.ExecuteQuery(context.Background(), "g.inject(1)", QueryParams{})
	require.NoError(t, err)
	require.Len(t, rs.Data, 1)

	snap := gate.Snapshot()
	assert.Equal(t, 1, snap.Successes)
	assert.Equal(t, 0, snap.InFlight)
}

func TestGremlinRetriesThrottledAndRecordsRateLimit(t *testing.T) {
	gate := throttle.NewGate("graph", throttle.DefaultConfig())
	g := newTestGremlin(t, []scriptedFrame{
		{code: 429},
		{code: 200, data: []json.RawMessage{json.RawMessage(`1`)}},
	}, gate)

	rs, err := g.ExecuteQuery(context.Background(), "g.inject(1)", QueryParams{})
	require.NoError(t, err)
	require.Len(t, rs.Data, 1)

	snap := gate.Snapshot()
	assert.Equal(t, 1, snap.RateLimits)
	assert.Equal(t, 1, snap.Successes)
	assert.Equal(t, throttle.CircuitClosed, snap.State)
}

func TestGremlinFailsFastWhenCircuitOpen(t *testing.T) {
	gate := throttle.NewGate("graph", throttle.DefaultConfig())
	for i := 0; i < 6; i++ {
		gate.RecordServerError()
	}
	require.Equal(t, throttle.CircuitOpen, gate.Snapshot().State)

	// Unroutable endpoint: a dial attempt would hang, the open circuit must
	// reject before any connection is made.
	g := NewGremlin(GremlinConfig{
		Endpoint:   "ws://192.0.2.1:1/",
		Database:   "graphdb",
		Graph:      "topology",
		PrimaryKey: "test-key",
	}, gate)

	_, err := g.ExecuteQuery(context.Background(), "g.V().limit(1)", QueryParams{})
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ClassUnavailable, qe.Class)
	assert.Contains(t, qe.Message, "circuit open")
}
