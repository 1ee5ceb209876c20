package agents

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/probelab/inquest/pkg/config"
)

// ServiceAPI is the slice of Client the provisioner needs. Narrowed for tests.
type ServiceAPI interface {
	ListAgents(ctx context.Context) ([]AgentInfo, error)
	CreateAgent(ctx context.Context, req CreateAgentRequest) (AgentInfo, error)
	DeleteAgent(ctx context.Context, id string) error
}

// ProvisionedAgent records one remote agent created from a manifest entry.
type ProvisionedAgent struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Role            string   `json:"role"`
	Model           string   `json:"model"`
	Tools           []string `json:"tools"`
	ConnectedAgents []string `json:"connected_agents"`
	IsOrchestrator  bool     `json:"is_orchestrator"`
}

// FleetRecord maps a provisioned fleet. It doubles as the runtime lookup
// that resolves remote agent ids back to display names.
type FleetRecord struct {
	Scenario string                      `json:"scenario"`
	Agents   map[string]ProvisionedAgent `json:"agents"` // keyed by display name
}

// Orchestrator returns the fleet's orchestrator record, or nil.
func (f *FleetRecord) Orchestrator() *ProvisionedAgent {
	for name := range f.Agents {
		a := f.Agents[name]
		if a.IsOrchestrator {
			return &a
		}
	}
	return nil
}

// DisplayName resolves a remote agent id to its manifest name. Unknown ids
// fall back to the id itself.
func (f *FleetRecord) DisplayName(agentID string) string {
	for name, a := range f.Agents {
		if a.ID == agentID {
			return name
		}
	}
	return agentID
}

// ProvisionOptions carries the runtime coordinates provisioning needs beyond
// the manifest.
type ProvisionOptions struct {
	APIBaseURL         string // data-plane base URL substituted into OpenAPI specs
	SearchConnectionID string
	GraphName          string // overrides the manifest's graph name when set
	PromptsDir         string // root for relative instructions references
	OpenAPITemplate    string // empty selects the built-in template
	OnProgress         func(msg string)
}

func (o ProvisionOptions) progress(format string, args ...any) {
	if o.OnProgress != nil {
		o.OnProgress(fmt.Sprintf(format, args...))
	}
}

// Provisioner makes the remote agent fleet match a scenario manifest.
type Provisioner struct {
	api ServiceAPI
}

func NewProvisioner(api ServiceAPI) *Provisioner {
	return &Provisioner{api: api}
}

// CleanupByName deletes every remote agent whose display name is in names,
// returning the count deleted. Listing and deletion errors are logged and
// skipped so a partial cleanup still makes progress.
func (p *Provisioner) CleanupByName(ctx context.Context, names []string) int {
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	existing, err := p.api.ListAgents(ctx)
	if err != nil {
		slog.Warn("Agent listing incomplete during cleanup", "error", err)
	}

	deleted := 0
	for _, a := range existing {
		if !wanted[a.Name] {
			continue
		}
		if err := p.api.DeleteAgent(ctx, a.ID); err != nil {
			slog.Warn("Failed to delete agent", "name", a.Name, "id", a.ID, "error", err)
			continue
		}
		deleted++
	}
	return deleted
}

// ProvisionFromConfig creates the fleet in two passes: specialists first,
// then orchestrators wrapping the specialists as connected-agent tools.
// Re-provisioning is an overwrite: matching names are cleaned up first.
func (p *Provisioner) ProvisionFromConfig(ctx context.Context, m *config.ScenarioManifest, opts ProvisionOptions) (*FleetRecord, error) {
	graphName := opts.GraphName
	if graphName == "" {
		graphName = m.GraphName
	}

	removed := p.CleanupByName(ctx, m.AgentNames())
	if removed > 0 {
		opts.progress("Removed %d stale agents", removed)
	}

	fleet := &FleetRecord{Scenario: m.Name, Agents: map[string]ProvisionedAgent{}}

	// Pass 1: specialists.
	for _, spec := range m.Agents {
		if spec.IsOrchestrator {
			continue
		}
		tools, err := p.buildTools(spec, m, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		instructions, err := p.resolveInstructions(spec, m, graphName, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		created, err := p.api.CreateAgent(ctx, CreateAgentRequest{
			Name:         spec.Name,
			Model:        spec.Model,
			Instructions: instructions,
			Tools:        tools,
		})
		if err != nil {
			return nil, err
		}
		opts.progress("Created agent %s (%s)", spec.Name, created.ID)
		fleet.Agents[spec.Name] = ProvisionedAgent{
			ID: created.ID, Name: spec.Name, Role: spec.Role,
			Model: spec.Model, Tools: spec.Tools,
		}
	}

	// Pass 2: orchestrators, wiring connected agents by the ids from pass 1.
	for _, spec := range m.Agents {
		if !spec.IsOrchestrator {
			continue
		}
		var tools []ToolDef
		for _, name := range spec.ConnectedAgents {
			sub, ok := fleet.Agents[name]
			if !ok {
				return nil, fmt.Errorf("orchestrator %q connects to unprovisioned agent %q", spec.Name, name)
			}
			tools = append(tools, ToolDef{
				Type: ToolKindConnectedAgent,
				ConnectedAgent: &ConnectedAgentDef{
					ID:          sub.ID,
					Name:        name,
					Description: fmt.Sprintf("Delegate %s investigation work to %s", sub.Role, name),
				},
			})
		}
		instructions, err := p.resolveInstructions(spec, m, graphName, opts)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", spec.Name, err)
		}
		created, err := p.api.CreateAgent(ctx, CreateAgentRequest{
			Name:         spec.Name,
			Model:        spec.Model,
			Instructions: instructions,
			Tools:        tools,
		})
		if err != nil {
			return nil, err
		}
		opts.progress("Created orchestrator %s (%s)", spec.Name, created.ID)
		fleet.Agents[spec.Name] = ProvisionedAgent{
			ID: created.ID, Name: spec.Name, Role: spec.Role,
			Model: spec.Model, Tools: spec.Tools,
			ConnectedAgents: spec.ConnectedAgents, IsOrchestrator: true,
		}
	}

	return fleet, nil
}

// ResolveFleet rebuilds a FleetRecord from agents already present on the
// remote service, matched by manifest display name. Used at server startup
// when the fleet was provisioned by an earlier run.
func (p *Provisioner) ResolveFleet(ctx context.Context, m *config.ScenarioManifest) (*FleetRecord, error) {
	existing, err := p.api.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	byName := make(map[string]AgentInfo, len(existing))
	for _, a := range existing {
		byName[a.Name] = a
	}

	fleet := &FleetRecord{Scenario: m.Name, Agents: map[string]ProvisionedAgent{}}
	var missing []string
	for _, spec := range m.Agents {
		info, ok := byName[spec.Name]
		if !ok {
			missing = append(missing, spec.Name)
			continue
		}
		fleet.Agents[spec.Name] = ProvisionedAgent{
			ID: info.ID, Name: spec.Name, Role: spec.Role,
			Model: spec.Model, Tools: spec.Tools,
			ConnectedAgents: spec.ConnectedAgents, IsOrchestrator: spec.IsOrchestrator,
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("scenario %s: agents not provisioned: %s", m.Name, strings.Join(missing, ", "))
	}
	return fleet, nil
}

// buildTools maps a specialist's declared tool names onto service tool
// definitions: query tools become single-path OpenAPI specs, everything else
// resolves through the manifest's search indexes.
func (p *Provisioner) buildTools(spec config.AgentSpec, m *config.ScenarioManifest, opts ProvisionOptions) ([]ToolDef, error) {
	var tools []ToolDef
	for _, tool := range spec.Tools {
		switch tool {
		case "graph_query":
			rendered, err := renderOpenAPISpec(opts.OpenAPITemplate, opts.APIBaseURL,
				PathQueryGraph, m.DataSources.Graph.Connector)
			if err != nil {
				return nil, err
			}
			tools = append(tools, ToolDef{Type: ToolKindOpenAPI, OpenAPI: &OpenAPIToolDef{
				Name:        tool,
				Description: "Query the topology graph",
				Spec:        rendered,
			}})
		case "telemetry_query":
			rendered, err := renderOpenAPISpec(opts.OpenAPITemplate, opts.APIBaseURL,
				PathQueryTelemetry, m.DataSources.Telemetry.Connector)
			if err != nil {
				return nil, err
			}
			tools = append(tools, ToolDef{Type: ToolKindOpenAPI, OpenAPI: &OpenAPIToolDef{
				Name:        tool,
				Description: "Query the telemetry store",
				Spec:        rendered,
			}})
		default:
			role := strings.TrimPrefix(tool, "search_")
			index, ok := m.DataSources.Indexes[role]
			if !ok {
				return nil, fmt.Errorf("tool %q has no matching search index", tool)
			}
			if opts.SearchConnectionID == "" {
				return nil, fmt.Errorf("tool %q requires a search connection id", tool)
			}
			tools = append(tools, ToolDef{Type: ToolKindSearch, Search: &SearchToolDef{
				IndexName:    index,
				ConnectionID: opts.SearchConnectionID,
			}})
		}
	}
	return tools, nil
}

// resolveInstructions sources the agent's prompt: a directory reference is
// composed fragment-by-fragment, a file is read whole, and an absent
// reference falls back to default text. Placeholders resolve before storage.
func (p *Provisioner) resolveInstructions(spec config.AgentSpec, m *config.ScenarioManifest, graphName string, opts ProvisionOptions) (string, error) {
	connector := m.DataSources.Graph.Connector
	if spec.Role == "telemetry" {
		connector = m.DataSources.Telemetry.Connector
	}

	text := ""
	if spec.Instructions != "" {
		path := spec.Instructions
		if !filepath.IsAbs(path) && opts.PromptsDir != "" {
			path = filepath.Join(opts.PromptsDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("instructions reference %s: %w", spec.Instructions, err)
		}
		if info.IsDir() {
			text, err = composePromptDir(path, connector)
		} else {
			var raw []byte
			raw, err = os.ReadFile(path)
			text = string(raw)
		}
		if err != nil {
			return "", err
		}
	} else {
		text = fmt.Sprintf("You are %s, a %s agent investigating operational incidents in the %s scenario. Be concise and cite the data you queried.",
			spec.Name, spec.Role, m.Name)
	}

	return substitutePrompt(text, graphName, m.ScenarioPrefix), nil
}
