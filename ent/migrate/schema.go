// Code generated by ent, DO NOT EDIT.

package migrate

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// InvestigationSessionsColumns holds the columns for the "investigation_sessions" table.
	InvestigationSessionsColumns = []*schema.Column{
		{Name: "session_id", Type: field.TypeString, Unique: true},
		{Name: "scenario", Type: field.TypeString},
		{Name: "alert_text", Type: field.TypeString, Size: 2147483647},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "in_progress", "completed", "failed", "cancelled"}, Default: "pending"},
		{Name: "turn_count", Type: field.TypeInt, Default: 0},
		{Name: "steps", Type: field.TypeJSON, Nullable: true},
		{Name: "diagnosis", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "run_meta", Type: field.TypeJSON, Nullable: true},
		{Name: "error_detail", Type: field.TypeString, Nullable: true},
		{Name: "thread_id", Type: field.TypeString, Nullable: true},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	// InvestigationSessionsTable holds the schema information for the "investigation_sessions" table.
	InvestigationSessionsTable = &schema.Table{
		Name:       "investigation_sessions",
		Columns:    InvestigationSessionsColumns,
		PrimaryKey: []*schema.Column{InvestigationSessionsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "investigationsession_scenario",
				Unique:  false,
				Columns: []*schema.Column{InvestigationSessionsColumns[1]},
			},
			{
				Name:    "investigationsession_status",
				Unique:  false,
				Columns: []*schema.Column{InvestigationSessionsColumns[3]},
			},
			{
				Name:    "investigationsession_scenario_created_at",
				Unique:  false,
				Columns: []*schema.Column{InvestigationSessionsColumns[1], InvestigationSessionsColumns[10]},
			},
		},
	}
	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		InvestigationSessionsTable,
	}
)

func init() {
}
