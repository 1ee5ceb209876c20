package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/throttle"
)

const kustoFramesPayload = `[
  {"FrameType": "DataSetHeader", "Version": "v2.0"},
  {"FrameType": "DataTable", "TableKind": "QueryProperties", "Columns": [], "Rows": []},
  {"FrameType": "DataTable", "TableKind": "PrimaryResult",
   "Columns": [{"ColumnName": "timestamp", "ColumnType": "datetime"},
               {"ColumnName": "error_rate", "ColumnType": "real"}],
   "Rows": [["2026-08-24T01:00:00Z", 0.02], ["2026-08-24T01:05:00Z", 0.41]]},
  {"FrameType": "DataSetCompletion", "HasErrors": false}
]`

func newTestKQL(t *testing.T, handler http.HandlerFunc) *FabricKQL {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewFabricKQL(
		FabricKQLConfig{QueryURI: server.URL, Database: "telemetry-db"},
		discovery.StaticTokenSource{Tok: discovery.Token{Value: "test-token"}},
		nil,
		throttle.NewGate("test", throttle.DefaultConfig()),
	)
}

func TestFabricKQLExecuteQuery(t *testing.T) {
	b := newTestKQL(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/rest/query", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "telemetry-db", req["db"])
		assert.Contains(t, req["csl"], "LinkErrors")

		_, _ = w.Write([]byte(kustoFramesPayload))
	})

	result, err := b.ExecuteQuery(context.Background(), "LinkErrors | take 2", QueryParams{})
	require.NoError(t, err)
	require.Len(t, result.Columns, 2)
	assert.Equal(t, "timestamp", result.Columns[0].Name)
	require.Len(t, result.Data, 2)
	assert.Equal(t, 0.41, result.Data[1]["error_rate"])

	// Rows only carry declared columns.
	for _, row := range result.Data {
		for key := range row {
			assert.Contains(t, []string{"timestamp", "error_rate"}, key)
		}
	}
}

func TestFabricKQLServiceError(t *testing.T) {
	b := newTestKQL(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
		  {"FrameType": "DataSetHeader"},
		  {"FrameType": "DataTable", "TableKind": "PrimaryResult",
		   "OneApiErrors": [{"error": {"code": "SEM0100", "message": "unknown column"}}]}
		]`))
	})

	_, err := b.ExecuteQuery(context.Background(), "Bogus | bad", QueryParams{})
	require.Error(t, err)
	assert.True(t, IsClass(err, ClassInvalidQuery))
	assert.Contains(t, err.Error(), "SEM0100")
}

func TestFabricKQLRateLimited(t *testing.T) {
	b := newTestKQL(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := b.ExecuteQuery(context.Background(), "T | take 1", QueryParams{})
	assert.True(t, IsClass(err, ClassRateLimited))
}

func TestFabricKQLParamsOverrideDatabase(t *testing.T) {
	b := newTestKQL(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "other-db", req["db"])
		_, _ = w.Write([]byte(kustoFramesPayload))
	})
	_, err := b.ExecuteQuery(context.Background(), "T | take 1", QueryParams{Database: "other-db"})
	require.NoError(t, err)
}
