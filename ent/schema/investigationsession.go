package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// InvestigationSession holds the schema definition for the durable session
// snapshot written on every terminal transition.
type InvestigationSession struct {
	ent.Schema
}

// Fields of the InvestigationSession.
func (InvestigationSession) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("session_id").
			Unique().
			Immutable(),
		field.String("scenario").
			Comment("Scenario tag; durable queries are partitioned by it"),
		field.Text("alert_text").
			Comment("Original alert payload (full-text searchable)"),
		field.Enum("status").
			Values("pending", "in_progress", "completed", "failed", "cancelled").
			Default("pending"),
		field.Int("turn_count").
			Default(0),
		field.JSON("steps", []map[string]interface{}{}).
			Optional().
			Comment("Ordered tool-call records across all turns"),
		field.Text("diagnosis").
			Optional().
			Nillable().
			Comment("Investigation conclusion (full-text searchable)"),
		field.JSON("run_meta", map[string]interface{}{}).
			Optional().
			Comment("Accumulated step/token/elapsed totals"),
		field.String("error_detail").
			Optional().
			Nillable(),
		field.String("thread_id").
			Optional().
			Nillable().
			Comment("Remote agent thread handle; reused across turns"),
		field.Time("created_at").
			Default(time.Now),
		field.Time("updated_at").
			Default(time.Now),
	}
}

// Indexes of the InvestigationSession.
func (InvestigationSession) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("scenario"),
		index.Fields("status"),
		index.Fields("scenario", "created_at"),
	}
}
