package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validManifest = `
name: telco-backbone
display_name: Telco Backbone
graph_name: telco-topology
example_questions:
  - "Why is LINK-SYD-MEL-FIBRE-01 down?"
data_sources:
  graph:
    connector: fabric-gql
    config:
      workspace_id: ws-1
      graph_name: telco-topology
  telemetry:
    connector: fabric-kql
  indexes:
    runbooks: runbooks-index
    tickets: tickets-index
agents:
  - name: GraphExplorerAgent
    role: graph
    model: gpt-5
    tools: [graph_query]
  - name: TelemetryAgent
    role: telemetry
    model: gpt-5
    tools: [telemetry_query]
  - name: Orchestrator
    role: orchestrator
    model: gpt-5
    is_orchestrator: true
    connected_agents: [GraphExplorerAgent, TelemetryAgent]
`

func writeScenario(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadScenarios(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "telco.yaml", validManifest)

	registry, err := LoadScenarios(dir)
	require.NoError(t, err)

	m, err := registry.Get("telco-backbone")
	require.NoError(t, err)
	assert.Equal(t, "Telco Backbone", m.DisplayName)
	assert.Equal(t, ConnectorFabricGQL, m.DataSources.Graph.Connector)
	assert.Equal(t, "runbooks-index", m.DataSources.Indexes["runbooks"])
	assert.Len(t, m.Agents, 3)
	require.NotNil(t, m.Orchestrator())
	assert.Equal(t, "Orchestrator", m.Orchestrator().Name)

	// Defaults merged for fields the manifest omitted.
	assert.Equal(t, "telco-backbone", m.ScenarioPrefix)

	_, err = registry.Get("unknown")
	assert.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestLoadScenariosEnvExpansion(t *testing.T) {
	t.Setenv("TEST_WORKSPACE", "ws-from-env")
	dir := t.TempDir()
	writeScenario(t, dir, "s.yaml", `
name: env-test
data_sources:
  graph:
    connector: mock-graph
    config:
      workspace_id: "{{.TEST_WORKSPACE}}"
  telemetry:
    connector: mock-telemetry
agents:
  - name: Orchestrator
    model: gpt-5
    is_orchestrator: true
`)

	registry, err := LoadScenarios(dir)
	require.NoError(t, err)
	m, err := registry.Get("env-test")
	require.NoError(t, err)
	assert.Equal(t, "ws-from-env", m.DataSources.Graph.Config.WorkspaceID)
}

func TestLoadScenariosValidation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		errMsg   string
	}{
		{
			name: "no orchestrator",
			manifest: `
name: bad
data_sources:
  graph: {connector: mock-graph}
  telemetry: {connector: mock-telemetry}
agents:
  - name: A
    model: gpt-5
`,
			errMsg: "exactly one orchestrator",
		},
		{
			name: "duplicate agent name",
			manifest: `
name: bad
data_sources:
  graph: {connector: mock-graph}
  telemetry: {connector: mock-telemetry}
agents:
  - name: A
    model: gpt-5
  - name: A
    model: gpt-5
    is_orchestrator: true
`,
			errMsg: "duplicate agent name",
		},
		{
			name: "unknown connector",
			manifest: `
name: bad
data_sources:
  graph: {connector: neo4j}
  telemetry: {connector: mock-telemetry}
agents:
  - name: A
    model: gpt-5
    is_orchestrator: true
`,
			errMsg: "unknown connector",
		},
		{
			name: "unresolved connected agent",
			manifest: `
name: bad
data_sources:
  graph: {connector: mock-graph}
  telemetry: {connector: mock-telemetry}
agents:
  - name: Orchestrator
    model: gpt-5
    is_orchestrator: true
    connected_agents: [Ghost]
`,
			errMsg: "not defined",
		},
		{
			name: "missing model",
			manifest: `
name: bad
data_sources:
  graph: {connector: mock-graph}
  telemetry: {connector: mock-telemetry}
agents:
  - name: Orchestrator
    is_orchestrator: true
`,
			errMsg: "model required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeScenario(t, dir, "bad.yaml", tt.manifest)
			_, err := LoadScenarios(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRegistryAtomicReplace(t *testing.T) {
	registry := NewRegistry()
	registry.Replace(map[string]*ScenarioManifest{
		"a": {Name: "a"},
	})
	assert.Equal(t, []string{"a"}, registry.Names())

	registry.Replace(map[string]*ScenarioManifest{
		"b": {Name: "b"},
		"c": {Name: "c"},
	})
	assert.Equal(t, []string{"b", "c"}, registry.Names())
	_, err := registry.Get("a")
	assert.ErrorIs(t, err, ErrScenarioNotFound)
}

func TestLoadRuntimeFromEnvDefaults(t *testing.T) {
	cfg := LoadRuntimeFromEnv()
	assert.Equal(t, 20, cfg.MaxActiveSessions)
	assert.Equal(t, 100, cfg.RecentCacheSize)
	assert.Equal(t, 600.0, cfg.SessionIdleTimeout.Seconds())
	assert.Equal(t, 120.0, cfg.StallWatchdog.Seconds())
	assert.Equal(t, 600.0, cfg.DiscoveryTTL.Seconds())
	assert.Equal(t, 3000.0, cfg.TokenStaleAfter.Seconds())
}

func TestLoadRuntimeFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_ACTIVE_SESSIONS", "3")
	t.Setenv("STALL_WATCHDOG", "5")
	cfg := LoadRuntimeFromEnv()
	assert.Equal(t, 3, cfg.MaxActiveSessions)
	assert.Equal(t, 5.0, cfg.StallWatchdog.Seconds())
}
