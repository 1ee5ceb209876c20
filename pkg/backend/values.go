package backend

import (
	"encoding/json"
)

// ValueKind discriminates the closed set of shapes graph services return.
type ValueKind string

const (
	KindRaw  ValueKind = "raw"
	KindNode ValueKind = "node"
	KindEdge ValueKind = "edge"
)

// Node is a structured graph vertex value.
type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// EdgeValue is a structured graph edge value.
type EdgeValue struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	SourceID   string         `json:"source_id"`
	TargetID   string         `json:"target_id"`
	Properties map[string]any `json:"properties"`
}

// Value is a sum over the shapes a graph query can yield. Callers switch on
// Kind; exactly one of Raw, Node, Edge is populated.
type Value struct {
	Kind ValueKind
	Raw  json.RawMessage
	Node *Node
	Edge *EdgeValue
}

// ParseGraphValue classifies one raw JSON value from a graph response.
// GraphSON-style vertices carry {"type":"vertex"}; edges {"type":"edge"};
// anything else stays opaque.
func ParseGraphValue(raw json.RawMessage) Value {
	var probe struct {
		Type       string         `json:"type"`
		ID         any            `json:"id"`
		Label      string         `json:"label"`
		InV        any            `json:"inV"`
		OutV       any            `json:"outV"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Value{Kind: KindRaw, Raw: raw}
	}

	switch probe.Type {
	case "vertex":
		return Value{Kind: KindNode, Node: &Node{
			ID:         toString(probe.ID),
			Label:      probe.Label,
			Properties: flattenProperties(probe.Properties),
		}}
	case "edge":
		return Value{Kind: KindEdge, Edge: &EdgeValue{
			ID:         toString(probe.ID),
			Label:      probe.Label,
			SourceID:   toString(probe.OutV),
			TargetID:   toString(probe.InV),
			Properties: probe.Properties,
		}}
	}
	return Value{Kind: KindRaw, Raw: raw}
}

// flattenProperties unwraps GraphSON vertex property lists
// ({"name":[{"value":"x"}]}) into plain values.
func flattenProperties(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		list, ok := v.([]any)
		if !ok || len(list) == 0 {
			out[k] = v
			continue
		}
		first, ok := list[0].(map[string]any)
		if !ok {
			out[k] = v
			continue
		}
		if val, ok := first["value"]; ok {
			out[k] = val
		} else {
			out[k] = v
		}
	}
	return out
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
