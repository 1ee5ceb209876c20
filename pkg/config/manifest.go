// Package config loads scenario manifests and runtime settings for the
// investigation service. Manifests are YAML files, one per scenario,
// describing the agent fleet and the data-source bindings it investigates
// against. A manifest is immutable once loaded; reloads replace the whole
// registry atomically.
package config

// Connector identifiers for graph backends.
const (
	ConnectorFabricGQL     = "fabric-gql"
	ConnectorCosmosGremlin = "cosmos-gremlin"
	ConnectorMockGraph     = "mock-graph"
)

// Connector identifiers for telemetry backends.
const (
	ConnectorFabricKQL     = "fabric-kql"
	ConnectorCosmosSQL     = "cosmos-sql"
	ConnectorMockTelemetry = "mock-telemetry"
)

// KnownGraphConnectors lists valid graph connector ids.
var KnownGraphConnectors = []string{ConnectorFabricGQL, ConnectorCosmosGremlin, ConnectorMockGraph}

// KnownTelemetryConnectors lists valid telemetry connector ids.
var KnownTelemetryConnectors = []string{ConnectorFabricKQL, ConnectorCosmosSQL, ConnectorMockTelemetry}

// ScenarioManifest is the declarative description of one scenario.
type ScenarioManifest struct {
	Name             string        `yaml:"name"`
	DisplayName      string        `yaml:"display_name"`
	ScenarioPrefix   string        `yaml:"scenario_prefix"`
	GraphName        string        `yaml:"graph_name"`
	Agents           []AgentSpec   `yaml:"agents"`
	DataSources      DataSourceMap `yaml:"data_sources"`
	ExampleQuestions []string      `yaml:"example_questions"`
}

// AgentSpec describes one remote agent to provision.
type AgentSpec struct {
	Name            string   `yaml:"name"`
	Role            string   `yaml:"role"`
	Model           string   `yaml:"model"`
	Tools           []string `yaml:"tools"`
	IsOrchestrator  bool     `yaml:"is_orchestrator"`
	ConnectedAgents []string `yaml:"connected_agents"`
	Instructions    string   `yaml:"instructions"` // file or directory reference
}

// DataSourceMap binds a scenario to its backends and search indexes.
type DataSourceMap struct {
	Graph     BackendBinding    `yaml:"graph"`
	Telemetry BackendBinding    `yaml:"telemetry"`
	Indexes   map[string]string `yaml:"indexes"` // role (runbooks, tickets, …) → index name
}

// BackendBinding selects a connector and its runtime coordinates.
type BackendBinding struct {
	Connector string        `yaml:"connector"`
	Config    BackendConfig `yaml:"config"`
}

// BackendConfig holds the runtime coordinates of a concrete backend. Fields
// left empty are defaulted from discovery at factory time.
type BackendConfig struct {
	Endpoint    string `yaml:"endpoint"`
	AuthScope   string `yaml:"auth_scope"`
	WorkspaceID string `yaml:"workspace_id"`
	Database    string `yaml:"database"`
	GraphName   string `yaml:"graph_name"`

	// Cosmos-specific credentials.
	PrimaryKey string `yaml:"primary_key"`
	Collection string `yaml:"collection"`
}

// AgentNames returns the display names of all agents in manifest order.
func (m *ScenarioManifest) AgentNames() []string {
	names := make([]string, 0, len(m.Agents))
	for _, a := range m.Agents {
		names = append(names, a.Name)
	}
	return names
}

// Orchestrator returns the orchestrator agent spec, or nil if absent.
func (m *ScenarioManifest) Orchestrator() *AgentSpec {
	for i := range m.Agents {
		if m.Agents[i].IsOrchestrator {
			return &m.Agents[i]
		}
	}
	return nil
}
