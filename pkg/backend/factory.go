package backend

import (
	"fmt"
	"sync"

	"github.com/probelab/inquest/pkg/config"
	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/throttle"
)

// Set is the pair of backends bound to one scenario.
type Set struct {
	Graph     GraphBackend
	Telemetry TelemetryBackend
}

// Factory builds and caches per-scenario backend instances. It owns every
// instance it hands out; Close tears them all down.
type Factory struct {
	tokens discovery.TokenSource
	disc   *discovery.Cache

	mu    sync.Mutex
	sets  map[string]*Set
	gates map[string]*throttle.Gate
}

// NewFactory creates a factory. disc may be nil when every manifest carries
// explicit coordinates.
func NewFactory(tokens discovery.TokenSource, disc *discovery.Cache) *Factory {
	return &Factory{
		tokens: tokens,
		disc:   disc,
		sets:   map[string]*Set{},
		gates:  map[string]*throttle.Gate{},
	}
}

// ForScenario returns the backend set for a manifest, building it on first
// use. Instances are shared across sessions of the same scenario.
func (f *Factory) ForScenario(m *config.ScenarioManifest) (*Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set, ok := f.sets[m.Name]; ok {
		return set, nil
	}

	graph, err := f.buildGraph(m.Name, m.DataSources.Graph)
	if err != nil {
		return nil, fmt.Errorf("scenario %q graph backend: %w", m.Name, err)
	}
	telemetry, err := f.buildTelemetry(m.Name, m.DataSources.Telemetry)
	if err != nil {
		_ = graph.Close()
		return nil, fmt.Errorf("scenario %q telemetry backend: %w", m.Name, err)
	}

	set := &Set{Graph: graph, Telemetry: telemetry}
	f.sets[m.Name] = set
	return set, nil
}

// gate returns the named gate, creating it with defaults. Caller holds f.mu.
func (f *Factory) gate(name string) *throttle.Gate {
	if g, ok := f.gates[name]; ok {
		return g
	}
	g := throttle.NewGate(name, throttle.DefaultConfig())
	f.gates[name] = g
	return g
}

func (f *Factory) buildGraph(scenario string, binding config.BackendBinding) (GraphBackend, error) {
	cfg := binding.Config
	switch binding.Connector {
	case config.ConnectorFabricGQL:
		return NewFabricGQL(FabricGQLConfig{Endpoint: cfg.Endpoint},
			f.tokens, f.disc, f.gate(scenario+"/graph")), nil
	case config.ConnectorCosmosGremlin:
		if cfg.Endpoint == "" || cfg.Database == "" || cfg.GraphName == "" {
			return nil, fmt.Errorf("cosmos-gremlin requires endpoint, database and graph_name")
		}
		return NewGremlin(GremlinConfig{
			Endpoint:   cfg.Endpoint,
			Database:   cfg.Database,
			Graph:      cfg.GraphName,
			PrimaryKey: cfg.PrimaryKey,
		}, f.gate(scenario+"/graph")), nil
	case config.ConnectorMockGraph:
		return NewMockGraph(), nil
	}
	return nil, fmt.Errorf("unknown graph connector %q", binding.Connector)
}

func (f *Factory) buildTelemetry(scenario string, binding config.BackendBinding) (TelemetryBackend, error) {
	cfg := binding.Config
	switch binding.Connector {
	case config.ConnectorFabricKQL:
		return NewFabricKQL(FabricKQLConfig{QueryURI: cfg.Endpoint, Database: cfg.Database},
			f.tokens, f.disc, f.gate(scenario+"/telemetry")), nil
	case config.ConnectorCosmosSQL:
		if cfg.Endpoint == "" || cfg.Database == "" || cfg.Collection == "" {
			return nil, fmt.Errorf("cosmos-sql requires endpoint, database and collection")
		}
		return NewCosmosSQL(CosmosSQLConfig{
			Endpoint:   cfg.Endpoint,
			Database:   cfg.Database,
			Collection: cfg.Collection,
			PrimaryKey: cfg.PrimaryKey,
		}, f.gate(scenario+"/telemetry")), nil
	case config.ConnectorMockTelemetry:
		return NewMockTelemetry(), nil
	}
	return nil, fmt.Errorf("unknown telemetry connector %q", binding.Connector)
}

// GateSnapshots reports circuit state per gate for health endpoints.
func (f *Factory) GateSnapshots() []throttle.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]throttle.Snapshot, 0, len(f.gates))
	for _, g := range f.gates {
		out = append(out, g.Snapshot())
	}
	return out
}

// Close tears down every backend instance the factory built.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for name, set := range f.sets {
		if err := set.Graph.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s graph backend: %w", name, err)
		}
		if err := set.Telemetry.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s telemetry backend: %w", name, err)
		}
	}
	f.sets = map[string]*Set{}
	return firstErr
}
