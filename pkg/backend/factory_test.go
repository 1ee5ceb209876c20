package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/config"
	"github.com/probelab/inquest/pkg/discovery"
)

func mockManifest(name string) *config.ScenarioManifest {
	return &config.ScenarioManifest{
		Name: name,
		DataSources: config.DataSourceMap{
			Graph:     config.BackendBinding{Connector: config.ConnectorMockGraph},
			Telemetry: config.BackendBinding{Connector: config.ConnectorMockTelemetry},
		},
	}
}

func TestFactoryBuildsAndCaches(t *testing.T) {
	f := NewFactory(discovery.StaticTokenSource{}, nil)
	defer f.Close()

	set1, err := f.ForScenario(mockManifest("telco"))
	require.NoError(t, err)
	require.NotNil(t, set1.Graph)
	require.NotNil(t, set1.Telemetry)

	set2, err := f.ForScenario(mockManifest("telco"))
	require.NoError(t, err)
	assert.Same(t, set1, set2)
}

func TestFactoryConnectorSelection(t *testing.T) {
	f := NewFactory(discovery.StaticTokenSource{}, nil)
	defer f.Close()

	m := &config.ScenarioManifest{
		Name: "fabric",
		DataSources: config.DataSourceMap{
			Graph: config.BackendBinding{
				Connector: config.ConnectorFabricGQL,
				Config:    config.BackendConfig{Endpoint: "https://fabric.example"},
			},
			Telemetry: config.BackendBinding{
				Connector: config.ConnectorFabricKQL,
				Config:    config.BackendConfig{Endpoint: "https://kusto.example", Database: "db"},
			},
		},
	}
	set, err := f.ForScenario(m)
	require.NoError(t, err)
	assert.IsType(t, &FabricGQL{}, set.Graph)
	assert.IsType(t, &FabricKQL{}, set.Telemetry)
}

func TestFactoryRejectsIncompleteCosmosBinding(t *testing.T) {
	f := NewFactory(discovery.StaticTokenSource{}, nil)
	defer f.Close()

	m := mockManifest("bad")
	m.DataSources.Graph = config.BackendBinding{
		Connector: config.ConnectorCosmosGremlin,
		Config:    config.BackendConfig{Endpoint: "wss://cosmos.example"},
	}
	_, err := f.ForScenario(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cosmos-gremlin requires")
}

func TestFactoryUnknownConnector(t *testing.T) {
	f := NewFactory(discovery.StaticTokenSource{}, nil)
	defer f.Close()

	m := mockManifest("bad")
	m.DataSources.Graph.Connector = "neo4j"
	_, err := f.ForScenario(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown graph connector")
}

func TestFactoryGateSnapshots(t *testing.T) {
	f := NewFactory(discovery.StaticTokenSource{}, nil)
	defer f.Close()

	m := &config.ScenarioManifest{
		Name: "fabric",
		DataSources: config.DataSourceMap{
			Graph: config.BackendBinding{
				Connector: config.ConnectorFabricGQL,
				Config:    config.BackendConfig{Endpoint: "https://fabric.example"},
			},
			Telemetry: config.BackendBinding{
				Connector: config.ConnectorFabricKQL,
				Config:    config.BackendConfig{Endpoint: "https://kusto.example", Database: "db"},
			},
		},
	}
	_, err := f.ForScenario(m)
	require.NoError(t, err)

	snaps := f.GateSnapshots()
	require.Len(t, snaps, 2)
	names := []string{snaps[0].Name, snaps[1].Name}
	assert.Contains(t, names, "fabric/graph")
	assert.Contains(t, names, "fabric/telemetry")
}
