package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Registry holds the loaded scenario manifests. Lookups are lock-free; a
// reload swaps the whole map atomically so in-flight sessions keep the
// manifest version they started with.
type Registry struct {
	scenarios atomic.Pointer[map[string]*ScenarioManifest]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]*ScenarioManifest{}
	r.scenarios.Store(&empty)
	return r
}

// Get returns the manifest for the named scenario.
func (r *Registry) Get(name string) (*ScenarioManifest, error) {
	m := *r.scenarios.Load()
	manifest, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScenarioNotFound, name)
	}
	return manifest, nil
}

// Names returns all registered scenario names, sorted.
func (r *Registry) Names() []string {
	m := *r.scenarios.Load()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace atomically installs a new scenario set.
func (r *Registry) Replace(scenarios map[string]*ScenarioManifest) {
	r.scenarios.Store(&scenarios)
}

// LoadScenarios reads every *.yaml manifest under dir, expands environment
// variables, applies defaults, validates, and returns a populated registry.
func LoadScenarios(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir %s: %w", dir, err)
	}

	scenarios := make(map[string]*ScenarioManifest)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		manifest, err := loadManifest(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		if _, dup := scenarios[manifest.Name]; dup {
			return nil, NewValidationError(manifest.Name, "name", fmt.Errorf("duplicate scenario name"))
		}
		scenarios[manifest.Name] = manifest
		slog.Info("Loaded scenario manifest",
			"scenario", manifest.Name,
			"agents", len(manifest.Agents),
			"graph_connector", manifest.DataSources.Graph.Connector,
			"telemetry_connector", manifest.DataSources.Telemetry.Connector)
	}

	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenario manifests found in %s", dir)
	}

	registry := NewRegistry()
	registry.Replace(scenarios)
	return registry, nil
}

// loadManifest parses and validates a single manifest file.
func loadManifest(path string) (*ScenarioManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest ScenarioManifest
	if err := yaml.Unmarshal(ExpandEnv(data), &manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	if err := applyDefaults(&manifest); err != nil {
		return nil, err
	}
	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	return &manifest, nil
}

// applyDefaults merges built-in defaults into the manifest. User values win;
// mergo only fills fields the manifest left empty.
func applyDefaults(manifest *ScenarioManifest) error {
	defaults := ScenarioManifest{
		DisplayName:    manifest.Name,
		ScenarioPrefix: manifest.Name,
		DataSources: DataSourceMap{
			Graph:     BackendBinding{Connector: ConnectorMockGraph},
			Telemetry: BackendBinding{Connector: ConnectorMockTelemetry},
		},
	}
	if err := mergo.Merge(manifest, defaults); err != nil {
		return fmt.Errorf("merging defaults: %w", err)
	}
	return nil
}

// validateManifest enforces structural invariants: unique agent names, a
// single orchestrator whose connected agents resolve, known connectors.
func validateManifest(m *ScenarioManifest) error {
	if m.Name == "" {
		return NewValidationError("(unnamed)", "name", fmt.Errorf("required"))
	}
	if len(m.Agents) == 0 {
		return NewValidationError(m.Name, "agents", fmt.Errorf("at least one agent required"))
	}

	seen := make(map[string]bool, len(m.Agents))
	orchestrators := 0
	for _, a := range m.Agents {
		if a.Name == "" {
			return NewValidationError(m.Name, "agents", fmt.Errorf("agent name required"))
		}
		if seen[a.Name] {
			return NewValidationError(m.Name, "agents", fmt.Errorf("duplicate agent name '%s'", a.Name))
		}
		seen[a.Name] = true
		if a.Model == "" {
			return NewValidationError(m.Name, a.Name, fmt.Errorf("model required"))
		}
		if a.IsOrchestrator {
			orchestrators++
		}
	}
	if orchestrators != 1 {
		return NewValidationError(m.Name, "agents", fmt.Errorf("exactly one orchestrator required, found %d", orchestrators))
	}

	for _, a := range m.Agents {
		for _, connected := range a.ConnectedAgents {
			if !seen[connected] {
				return NewValidationError(m.Name, a.Name, fmt.Errorf("connected agent '%s' not defined", connected))
			}
		}
	}

	if !contains(KnownGraphConnectors, m.DataSources.Graph.Connector) {
		return NewValidationError(m.Name, "data_sources.graph.connector",
			fmt.Errorf("unknown connector '%s'", m.DataSources.Graph.Connector))
	}
	if !contains(KnownTelemetryConnectors, m.DataSources.Telemetry.Connector) {
		return NewValidationError(m.Name, "data_sources.telemetry.connector",
			fmt.Errorf("unknown connector '%s'", m.DataSources.Telemetry.Connector))
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
