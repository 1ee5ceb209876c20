package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/throttle"
)

func newTestGQL(t *testing.T, handler http.HandlerFunc) (*FabricGQL, *[]time.Duration) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b := NewFabricGQL(
		FabricGQLConfig{Endpoint: server.URL},
		discovery.StaticTokenSource{Tok: discovery.Token{Value: "test-token"}},
		nil,
		throttle.NewGate("test", throttle.DefaultConfig()),
	)
	sleeps := &[]time.Duration{}
	b.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return b, sleeps
}

func gqlParams() QueryParams {
	return QueryParams{WorkspaceID: "ws-1", GraphModelID: "gm-1"}
}

func writeGQLPage(w http.ResponseWriter, status string, nextPage string, columns []Column, rows ...any) {
	resp := map[string]any{
		"status": map[string]string{"code": status},
		"result": map[string]any{"columns": columns, "data": rows},
	}
	if nextPage != "" {
		resp["nextPage"] = nextPage
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestFabricGQLSuccess(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/workspaces/ws-1/graphmodels/gm-1/executeQuery", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Beta)

		writeGQLPage(w, "00000", "",
			[]Column{{Name: "id", Type: "string"}, {Name: "status", Type: "string"}},
			[]any{"LINK-01", "down"})
	})

	result, err := b.ExecuteQuery(context.Background(), "MATCH (l:Link) RETURN l.id, l.status", gqlParams())
	require.NoError(t, err)
	assert.Len(t, result.Data, 1)
	assert.Equal(t, "LINK-01", result.Data[0]["id"])
	assert.Equal(t, "down", result.Data[0]["status"])
}

func TestFabricGQLContinuation(t *testing.T) {
	var calls int
	var tokens []string
	b, sleeps := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req gqlRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		tokens = append(tokens, req.ContinuationToken)

		cols := []Column{{Name: "n", Type: "long"}}
		switch calls {
		case 1:
			writeGQLPage(w, "02000", "page-2", cols, []any{1})
		case 2:
			writeGQLPage(w, "02000", "page-3", cols, []any{2})
		default:
			writeGQLPage(w, "00000", "", cols, []any{3})
		}
	})

	result, err := b.ExecuteQuery(context.Background(), "MATCH (n) RETURN count(n)", gqlParams())
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	// Each follow-up request echoes the previous page's token.
	assert.Equal(t, []string{"", "page-2", "page-3"}, tokens)
	// Fixed delay between pages.
	require.Len(t, *sleeps, 2)
	assert.Equal(t, 10*time.Second, (*sleeps)[0])
	// All pages merged in order.
	require.Len(t, result.Data, 3)
	assert.Equal(t, float64(1), result.Data[0]["n"])
	assert.Equal(t, float64(3), result.Data[2]["n"])
}

func TestFabricGQLContinuationCap(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		writeGQLPage(w, "02000", "again", []Column{{Name: "n"}})
	})
	b.cfg.ContinuationCap = 2

	_, err := b.ExecuteQuery(context.Background(), "MATCH (n) RETURN n", gqlParams())
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassTimeout))
}

func TestFabricGQLRateLimitHonorsRetryAfter(t *testing.T) {
	var calls int
	b, sleeps := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeGQLPage(w, "00000", "", []Column{{Name: "n"}}, []any{1})
	})

	_, err := b.ExecuteQuery(context.Background(), "RETURN 1", gqlParams())
	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	// 3s with ±25% jitter.
	assert.GreaterOrEqual(t, (*sleeps)[0], 2250*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[0], 3750*time.Millisecond)
}

func TestFabricGQLRetryAfterClamp(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		header string
		min    time.Duration
		max    time.Duration
	}{
		{"0", 22500 * time.Millisecond, 37500 * time.Millisecond},    // out of band: fallback 30s
		{"-5", 22500 * time.Millisecond, 37500 * time.Millisecond},   // negative: fallback
		{"300", 22500 * time.Millisecond, 37500 * time.Millisecond},  // above 120s: fallback
		{"", 22500 * time.Millisecond, 37500 * time.Millisecond},     // absent: fallback
		{"junk", 22500 * time.Millisecond, 37500 * time.Millisecond}, // unparsable: fallback
		{"120", 90 * time.Second, 150 * time.Second},                 // boundary: honored
		{"1", 750 * time.Millisecond, 1250 * time.Millisecond},       // in band: honored
	}
	for _, tt := range tests {
		wait := b.retryAfter(tt.header)
		assert.GreaterOrEqual(t, wait, tt.min, "header %q", tt.header)
		assert.LessOrEqual(t, wait, tt.max, "header %q", tt.header)
	}
}

func TestFabricGQLRateLimitCap(t *testing.T) {
	var calls int
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := b.ExecuteQuery(context.Background(), "RETURN 1", gqlParams())
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassRateLimited))
	// Initial call plus two retries.
	assert.Equal(t, 3, calls)
}

func TestFabricGQLColdStartBackoff(t *testing.T) {
	var calls int
	b, sleeps := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "ColdStartTimeout", "message": "warming up"},
			})
			return
		}
		writeGQLPage(w, "00000", "", []Column{{Name: "n"}}, []any{1})
	})

	_, err := b.ExecuteQuery(context.Background(), "RETURN 1", gqlParams())
	require.NoError(t, err)
	require.Len(t, *sleeps, 2)
	// 10s then 20s, each with ±25% jitter.
	assert.GreaterOrEqual(t, (*sleeps)[0], 7500*time.Millisecond)
	assert.LessOrEqual(t, (*sleeps)[0], 12500*time.Millisecond)
	assert.GreaterOrEqual(t, (*sleeps)[1], 15*time.Second)
	assert.LessOrEqual(t, (*sleeps)[1], 25*time.Second)
}

func TestFabricGQLColdStartCap(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "ColdStartTimeout"},
		})
	})
	b.cfg.ColdStartCap = 2

	_, err := b.ExecuteQuery(context.Background(), "RETURN 1", gqlParams())
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassUnavailable))
}

func TestFabricGQLUnauthorizedFailsFast(t *testing.T) {
	var calls int
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := b.ExecuteQuery(context.Background(), "RETURN 1", gqlParams())
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassUnauthorized))
	assert.Equal(t, 1, calls)
}

func TestFabricGQLBadStatusCode(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {
		writeGQLPage(w, "40001", "", nil)
	})

	_, err := b.ExecuteQuery(context.Background(), "MATCH syntax error", gqlParams())
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassInvalidQuery))
}

func TestNormalizeGQLRowShapes(t *testing.T) {
	columns := []Column{{Name: "a"}, {Name: "b"}}

	row := normalizeGQLRow(json.RawMessage(`[1, "x"]`), columns)
	assert.Equal(t, Row{"a": float64(1), "b": "x"}, row)

	row = normalizeGQLRow(json.RawMessage(`{"a": 1, "b": "x", "extra": true}`), columns)
	assert.Equal(t, Row{"a": float64(1), "b": "x"}, row)

	assert.Nil(t, normalizeGQLRow(json.RawMessage(`"scalar"`), columns))
}

func TestFabricGQLIngestNotSupported(t *testing.T) {
	b, _ := newTestGQL(t, func(w http.ResponseWriter, r *http.Request) {})
	err := b.Ingest(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}
