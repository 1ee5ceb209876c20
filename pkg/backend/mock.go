package backend

import (
	"context"
	"strings"
	"sync"
)

// mockPattern maps a query substring to a canned result.
type mockPattern struct {
	contains string
	result   *ResultSet
}

// MockGraph is an offline graph backend with deterministic canned responses
// and an in-memory ingest store. Queries match pattern substrings
// case-insensitively; unmatched queries get a best-effort echo.
type MockGraph struct {
	mu       sync.Mutex
	patterns []mockPattern
	vertices []Vertex
	edges    []Edge
}

func NewMockGraph() *MockGraph {
	return &MockGraph{
		patterns: []mockPattern{
			{contains: "count", result: &ResultSet{
				Columns: []Column{{Name: "count", Type: "long"}},
				Data:    []Row{{"count": 42}},
			}},
			{contains: "status", result: &ResultSet{
				Columns: []Column{
					{Name: "id", Type: "string"},
					{Name: "status", Type: "string"},
				},
				Data: []Row{
					{"id": "LINK-SYD-MEL-FIBRE-01", "status": "down"},
					{"id": "LINK-SYD-MEL-FIBRE-02", "status": "up"},
				},
			}},
			{contains: "neighbor", result: &ResultSet{
				Columns: []Column{
					{Name: "id", Type: "string"},
					{Name: "label", Type: "string"},
				},
				Data: []Row{
					{"id": "ROUTER-SYD-01", "label": "Router"},
					{"id": "ROUTER-MEL-01", "label": "Router"},
				},
			}},
		},
	}
}

func (m *MockGraph) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Ingested vertices are queryable by label so offline demos can see
	// their own writes.
	if strings.Contains(lower, "ingested") || strings.Contains(lower, "vertices") {
		out := &ResultSet{
			Columns: []Column{
				{Name: "id", Type: "string"},
				{Name: "label", Type: "string"},
				{Name: "properties", Type: "object"},
			},
			Data: []Row{},
		}
		for _, v := range m.vertices {
			out.Data = append(out.Data, Row{"id": v.ID, "label": v.Label, "properties": v.Properties})
		}
		return out, nil
	}

	for _, p := range m.patterns {
		if strings.Contains(lower, p.contains) {
			return p.result, nil
		}
	}
	return echoResult(query), nil
}

func (m *MockGraph) Ingest(ctx context.Context, vertices []Vertex, edges []Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range vertices {
		m.vertices = upsertVertex(m.vertices, v)
	}
	m.edges = append(m.edges, edges...)
	return nil
}

func (m *MockGraph) GetTopology(ctx context.Context) (*ResultSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, v := range m.vertices {
		counts[v.Label]++
	}
	out := &ResultSet{
		Columns: []Column{{Name: "label", Type: "string"}, {Name: "count", Type: "long"}},
		Data:    []Row{},
	}
	for label, n := range counts {
		out.Data = append(out.Data, Row{"label": label, "count": n})
	}
	return out, nil
}

func (m *MockGraph) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MockGraph) Close() error                   { return nil }

func upsertVertex(list []Vertex, v Vertex) []Vertex {
	for i, existing := range list {
		if existing.Label == v.Label && existing.ID == v.ID {
			list[i] = v
			return list
		}
	}
	return append(list, v)
}

// MockTelemetry is an offline telemetry backend with canned responses.
type MockTelemetry struct {
	patterns []mockPattern
}

func NewMockTelemetry() *MockTelemetry {
	return &MockTelemetry{
		patterns: []mockPattern{
			{contains: "errors", result: &ResultSet{
				Columns: []Column{
					{Name: "timestamp", Type: "datetime"},
					{Name: "device", Type: "string"},
					{Name: "error_rate", Type: "real"},
				},
				Data: []Row{
					{"timestamp": "2026-08-24T01:00:00Z", "device": "ROUTER-SYD-01", "error_rate": 0.02},
					{"timestamp": "2026-08-24T01:05:00Z", "device": "ROUTER-SYD-01", "error_rate": 0.41},
				},
			}},
			{contains: "latency", result: &ResultSet{
				Columns: []Column{
					{Name: "timestamp", Type: "datetime"},
					{Name: "p99_ms", Type: "real"},
				},
				Data: []Row{
					{"timestamp": "2026-08-24T01:00:00Z", "p99_ms": 12.5},
					{"timestamp": "2026-08-24T01:05:00Z", "p99_ms": 340.0},
				},
			}},
		},
	}
}

func (m *MockTelemetry) ExecuteQuery(ctx context.Context, query string, params QueryParams) (*ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := strings.ToLower(query)
	for _, p := range m.patterns {
		if strings.Contains(lower, p.contains) {
			return p.result, nil
		}
	}
	return echoResult(query), nil
}

func (m *MockTelemetry) Ping(ctx context.Context) error { return ctx.Err() }
func (m *MockTelemetry) Close() error                   { return nil }

// echoResult is the best-effort fallback for unmatched mock queries.
func echoResult(query string) *ResultSet {
	return &ResultSet{
		Columns: []Column{{Name: "echo", Type: "string"}},
		Data:    []Row{{"echo": query}},
	}
}
