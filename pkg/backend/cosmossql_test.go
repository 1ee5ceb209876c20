package backend

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/throttle"
)

func testCosmosKey() string {
	return base64.StdEncoding.EncodeToString([]byte("test-primary-key"))
}

func newTestCosmos(t *testing.T, handler http.HandlerFunc) *CosmosSQL {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewCosmosSQL(CosmosSQLConfig{
		Endpoint:   server.URL,
		Database:   "telemetry",
		Collection: "events",
		PrimaryKey: testCosmosKey(),
	}, throttle.NewGate("test", throttle.DefaultConfig()))
}

func TestCosmosSQLExecuteQuery(t *testing.T) {
	b := newTestCosmos(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dbs/telemetry/colls/events/docs", r.URL.Path)
		assert.Equal(t, "True", r.Header.Get("x-ms-documentdb-isquery"))
		assert.Equal(t, "application/query+json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("x-ms-date"))

		_, _ = w.Write([]byte(`{"Documents": [
		  {"id": "e1", "device": "ROUTER-SYD-01", "severity": 3, "_rid": "sys", "_ts": 1234},
		  {"id": "e2", "device": "ROUTER-MEL-01"}
		]}`))
	})

	result, err := b.ExecuteQuery(context.Background(), "SELECT * FROM c", QueryParams{})
	require.NoError(t, err)

	// System fields dropped; columns are the sorted union of document keys.
	names := make([]string, 0, len(result.Columns))
	for _, c := range result.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"device", "id", "severity"}, names)

	require.Len(t, result.Data, 2)
	assert.Equal(t, "ROUTER-SYD-01", result.Data[0]["device"])
	// Absent keys stay absent, keeping row keys a subset of column names.
	_, hasSeverity := result.Data[1]["severity"]
	assert.False(t, hasSeverity)
}

func TestCosmosSQLErrorClasses(t *testing.T) {
	tests := []struct {
		status int
		class  ErrorClass
	}{
		{http.StatusTooManyRequests, ClassRateLimited},
		{http.StatusUnauthorized, ClassUnauthorized},
		{http.StatusBadGateway, ClassUnavailable},
		{http.StatusBadRequest, ClassInvalidQuery},
	}
	for _, tt := range tests {
		b := newTestCosmos(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := b.ExecuteQuery(context.Background(), "SELECT * FROM c", QueryParams{})
		assert.True(t, IsClass(err, tt.class), "status %d", tt.status)
	}
}

func TestCosmosAuthTokenDeterministic(t *testing.T) {
	tok1, err := cosmosAuthToken("POST", "docs", "dbs/d/colls/c", "Mon, 24 Aug 2026 00:00:00 GMT", testCosmosKey())
	require.NoError(t, err)
	tok2, err := cosmosAuthToken("POST", "docs", "dbs/d/colls/c", "Mon, 24 Aug 2026 00:00:00 GMT", testCosmosKey())
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)
	assert.Contains(t, tok1, "type%3Dmaster")

	_, err = cosmosAuthToken("POST", "docs", "x", "date", "not-base64!!!")
	assert.Error(t, err)
}
