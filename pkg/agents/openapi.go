package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Query paths exposed by the data-plane API.
const (
	PathQueryGraph     = "/query/graph"
	PathQueryTelemetry = "/query/telemetry"
)

// languageSnippets describe the query language per connector. The snippet is
// injected into the rendered spec so the agent knows what dialect to emit.
var languageSnippets = map[string]string{
	"fabric-gql":     "Queries use GQL (ISO graph query language). Example: MATCH (n:Router)-[:CONNECTS]->(m) RETURN n.id, m.id",
	"cosmos-gremlin": "Queries use Gremlin traversals. Example: g.V().hasLabel('Router').out('connects').values('id')",
	"fabric-kql":     "Queries use KQL. Example: LinkErrors | where timestamp > ago(1h) | summarize count() by device",
	"cosmos-sql":     "Queries use document SQL. Example: SELECT c.device, c.severity FROM c WHERE c.severity >= 3",
	"mock-graph":     "Queries are natural-language descriptions of the topology data you need.",
	"mock-telemetry": "Queries are natural-language descriptions of the telemetry data you need.",
}

// defaultOpenAPITemplate is the spec template rendered per tool. `{base_url}`
// and `{query_language_notes}` are substituted before parsing.
const defaultOpenAPITemplate = `{
  "openapi": "3.0.1",
  "info": {
    "title": "Investigation data-plane API",
    "description": "Query the incident data backbone. {query_language_notes}",
    "version": "1.0.0"
  },
  "servers": [{"url": "{base_url}"}],
  "paths": {
    "/query/graph": {
      "post": {
        "operationId": "queryGraph",
        "summary": "Execute a query against the topology graph",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {
            "type": "object",
            "required": ["query"],
            "properties": {"query": {"type": "string"}}
          }}}
        },
        "responses": {"200": {"description": "Normalized columns and rows"}}
      }
    },
    "/query/telemetry": {
      "post": {
        "operationId": "queryTelemetry",
        "summary": "Execute a query against the telemetry store",
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {
            "type": "object",
            "required": ["query"],
            "properties": {"query": {"type": "string"}}
          }}}
        },
        "responses": {"200": {"description": "Normalized columns and rows"}}
      }
    }
  }
}`

// renderOpenAPISpec substitutes the template placeholders, then filters the
// spec down to the single path the tool targets.
func renderOpenAPISpec(template, baseURL, path, connector string) (json.RawMessage, error) {
	if template == "" {
		template = defaultOpenAPITemplate
	}
	notes := languageSnippets[connector]
	rendered := strings.ReplaceAll(template, "{base_url}", baseURL)
	rendered = strings.ReplaceAll(rendered, "{query_language_notes}", notes)

	var spec map[string]any
	if err := json.Unmarshal([]byte(rendered), &spec); err != nil {
		return nil, fmt.Errorf("openapi template is not valid JSON: %w", err)
	}

	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("openapi template has no paths object")
	}
	target, ok := paths[path]
	if !ok {
		return nil, fmt.Errorf("openapi template does not define path %q", path)
	}
	spec["paths"] = map[string]any{path: target}

	out, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	return out, nil
}
