package backend

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGraphValueVertex(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "vertex", "id": "R-1", "label": "Router",
		"properties": {"site": [{"id": "p1", "value": "SYD"}]}
	}`)

	v := ParseGraphValue(raw)
	require.Equal(t, KindNode, v.Kind)
	assert.Equal(t, "R-1", v.Node.ID)
	assert.Equal(t, "Router", v.Node.Label)
	assert.Equal(t, "SYD", v.Node.Properties["site"])
}

func TestParseGraphValueEdge(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "edge", "id": "e-1", "label": "connects",
		"outV": "R-1", "inV": "R-2"
	}`)

	v := ParseGraphValue(raw)
	require.Equal(t, KindEdge, v.Kind)
	assert.Equal(t, "R-1", v.Edge.SourceID)
	assert.Equal(t, "R-2", v.Edge.TargetID)
}

func TestParseGraphValueRawFallback(t *testing.T) {
	for _, raw := range []string{`42`, `"scalar"`, `{"no_type": true}`} {
		v := ParseGraphValue(json.RawMessage(raw))
		assert.Equal(t, KindRaw, v.Kind, raw)
	}
}

func TestNormalizeGremlinHomogeneousVertices(t *testing.T) {
	data := []json.RawMessage{
		json.RawMessage(`{"type": "vertex", "id": "R-1", "label": "Router", "properties": {}}`),
		json.RawMessage(`{"type": "vertex", "id": "R-2", "label": "Router", "properties": {}}`),
	}
	out := normalizeGremlin(data)
	require.Len(t, out.Columns, 3)
	assert.Equal(t, "id", out.Columns[0].Name)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "R-2", out.Data[1]["id"])
}

func TestNormalizeGremlinMixedFallsBackToValueColumn(t *testing.T) {
	data := []json.RawMessage{
		json.RawMessage(`{"type": "vertex", "id": "R-1", "label": "Router"}`),
		json.RawMessage(`42`),
	}
	out := normalizeGremlin(data)
	require.Len(t, out.Columns, 1)
	assert.Equal(t, "value", out.Columns[0].Name)
	assert.Equal(t, float64(42), out.Data[1]["value"])
}

func TestNormalizeGremlinEmpty(t *testing.T) {
	out := normalizeGremlin(nil)
	assert.NotNil(t, out.Columns)
	assert.Empty(t, out.Data)
}

func TestTruncateBodyKeepsRunesIntact(t *testing.T) {
	short := []byte("plain error body")
	assert.Equal(t, "plain error body", truncateBody(short))

	// The byte budget lands inside a multi-byte rune; the cut must back
	// off to the boundary and stay valid UTF-8.
	long := []byte(strings.Repeat("网", 300)) // 3 bytes each, 900 total
	out := truncateBody(long)
	assert.True(t, utf8.ValidString(out))
	assert.LessOrEqual(t, len(out), maxErrorBody)
	assert.Equal(t, 498, len(out)) // 166 whole runes
}
