// Code generated by ent, DO NOT EDIT.

package ent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/probelab/inquest/ent/investigationsession"
)

// InvestigationSession is the model entity for the InvestigationSession schema.
type InvestigationSession struct {
	config `json:"-"`
	// ID of the ent.
	ID string `json:"id,omitempty"`
	// Scenario tag; durable queries are partitioned by it
	Scenario string `json:"scenario,omitempty"`
	// Original alert payload (full-text searchable)
	AlertText string `json:"alert_text,omitempty"`
	// Status holds the value of the "status" field.
	Status investigationsession.Status `json:"status,omitempty"`
	// TurnCount holds the value of the "turn_count" field.
	TurnCount int `json:"turn_count,omitempty"`
	// Ordered tool-call records across all turns
	Steps []map[string]interface{} `json:"steps,omitempty"`
	// Investigation conclusion (full-text searchable)
	Diagnosis *string `json:"diagnosis,omitempty"`
	// Accumulated step/token/elapsed totals
	RunMeta map[string]interface{} `json:"run_meta,omitempty"`
	// ErrorDetail holds the value of the "error_detail" field.
	ErrorDetail *string `json:"error_detail,omitempty"`
	// Remote agent thread handle; reused across turns
	ThreadID *string `json:"thread_id,omitempty"`
	// CreatedAt holds the value of the "created_at" field.
	CreatedAt time.Time `json:"created_at,omitempty"`
	// UpdatedAt holds the value of the "updated_at" field.
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
	selectValues sql.SelectValues
}

// scanValues returns the types for scanning values from sql.Rows.
func (*InvestigationSession) scanValues(columns []string) ([]any, error) {
	values := make([]any, len(columns))
	for i := range columns {
		switch columns[i] {
		case investigationsession.FieldSteps, investigationsession.FieldRunMeta:
			values[i] = new([]byte)
		case investigationsession.FieldTurnCount:
			values[i] = new(sql.NullInt64)
		case investigationsession.FieldID, investigationsession.FieldScenario, investigationsession.FieldAlertText, investigationsession.FieldStatus, investigationsession.FieldDiagnosis, investigationsession.FieldErrorDetail, investigationsession.FieldThreadID:
			values[i] = new(sql.NullString)
		case investigationsession.FieldCreatedAt, investigationsession.FieldUpdatedAt:
			values[i] = new(sql.NullTime)
		default:
			values[i] = new(sql.UnknownType)
		}
	}
	return values, nil
}

// assignValues assigns the values that were returned from sql.Rows (after scanning)
// to the InvestigationSession fields.
func (_m *InvestigationSession) assignValues(columns []string, values []any) error {
	if m, n := len(values), len(columns); m < n {
		return fmt.Errorf("mismatch number of scan values: %d != %d", m, n)
	}
	for i := range columns {
		switch columns[i] {
		case investigationsession.FieldID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field id", values[i])
			} else if value.Valid {
				_m.ID = value.String
			}
		case investigationsession.FieldScenario:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field scenario", values[i])
			} else if value.Valid {
				_m.Scenario = value.String
			}
		case investigationsession.FieldAlertText:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field alert_text", values[i])
			} else if value.Valid {
				_m.AlertText = value.String
			}
		case investigationsession.FieldStatus:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field status", values[i])
			} else if value.Valid {
				_m.Status = investigationsession.Status(value.String)
			}
		case investigationsession.FieldTurnCount:
			if value, ok := values[i].(*sql.NullInt64); !ok {
				return fmt.Errorf("unexpected type %T for field turn_count", values[i])
			} else if value.Valid {
				_m.TurnCount = int(value.Int64)
			}
		case investigationsession.FieldSteps:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field steps", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.Steps); err != nil {
					return fmt.Errorf("unmarshal field steps: %w", err)
				}
			}
		case investigationsession.FieldDiagnosis:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field diagnosis", values[i])
			} else if value.Valid {
				_m.Diagnosis = new(string)
				*_m.Diagnosis = value.String
			}
		case investigationsession.FieldRunMeta:
			if value, ok := values[i].(*[]byte); !ok {
				return fmt.Errorf("unexpected type %T for field run_meta", values[i])
			} else if value != nil && len(*value) > 0 {
				if err := json.Unmarshal(*value, &_m.RunMeta); err != nil {
					return fmt.Errorf("unmarshal field run_meta: %w", err)
				}
			}
		case investigationsession.FieldErrorDetail:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field error_detail", values[i])
			} else if value.Valid {
				_m.ErrorDetail = new(string)
				*_m.ErrorDetail = value.String
			}
		case investigationsession.FieldThreadID:
			if value, ok := values[i].(*sql.NullString); !ok {
				return fmt.Errorf("unexpected type %T for field thread_id", values[i])
			} else if value.Valid {
				_m.ThreadID = new(string)
				*_m.ThreadID = value.String
			}
		case investigationsession.FieldCreatedAt:
			if value, ok := values[i].(*sql.NullTime); !ok {
				return fmt.Errorf("unexpected type %T for field created_at", values[i])
			} else if value.Valid {
				_m.CreatedAt = value.Time
			}
		case investigationsession.FieldUpdatedAt:
			if value, ok := values[i].(*sql.NullTime); !ok {
				return fmt.Errorf("unexpected type %T for field updated_at", values[i])
			} else if value.Valid {
				_m.UpdatedAt = value.Time
			}
		default:
			_m.selectValues.Set(columns[i], values[i])
		}
	}
	return nil
}

// Value returns the ent.Value that was dynamically selected and assigned to the InvestigationSession.
// This includes values selected through modifiers, order, etc.
func (_m *InvestigationSession) Value(name string) (ent.Value, error) {
	return _m.selectValues.Get(name)
}

// Update returns a builder for updating this InvestigationSession.
// Note that you need to call InvestigationSession.Unwrap() before calling this method if this InvestigationSession
// was returned from a transaction, and the transaction was committed or rolled back.
func (_m *InvestigationSession) Update() *InvestigationSessionUpdateOne {
	return NewInvestigationSessionClient(_m.config).UpdateOne(_m)
}

// Unwrap unwraps the InvestigationSession entity that was returned from a transaction after it was closed,
// so that all future queries will be executed through the driver which created the transaction.
func (_m *InvestigationSession) Unwrap() *InvestigationSession {
	_tx, ok := _m.config.driver.(*txDriver)
	if !ok {
		panic("ent: InvestigationSession is not a transactional entity")
	}
	_m.config.driver = _tx.drv
	return _m
}

// String implements the fmt.Stringer.
func (_m *InvestigationSession) String() string {
	var builder strings.Builder
	builder.WriteString("InvestigationSession(")
	builder.WriteString(fmt.Sprintf("id=%v, ", _m.ID))
	builder.WriteString("scenario=")
	builder.WriteString(_m.Scenario)
	builder.WriteString(", ")
	builder.WriteString("alert_text=")
	builder.WriteString(_m.AlertText)
	builder.WriteString(", ")
	builder.WriteString("status=")
	builder.WriteString(fmt.Sprintf("%v", _m.Status))
	builder.WriteString(", ")
	builder.WriteString("turn_count=")
	builder.WriteString(fmt.Sprintf("%v", _m.TurnCount))
	builder.WriteString(", ")
	builder.WriteString("steps=")
	builder.WriteString(fmt.Sprintf("%v", _m.Steps))
	builder.WriteString(", ")
	if v := _m.Diagnosis; v != nil {
		builder.WriteString("diagnosis=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("run_meta=")
	builder.WriteString(fmt.Sprintf("%v", _m.RunMeta))
	builder.WriteString(", ")
	if v := _m.ErrorDetail; v != nil {
		builder.WriteString("error_detail=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	if v := _m.ThreadID; v != nil {
		builder.WriteString("thread_id=")
		builder.WriteString(*v)
	}
	builder.WriteString(", ")
	builder.WriteString("created_at=")
	builder.WriteString(_m.CreatedAt.Format(time.ANSIC))
	builder.WriteString(", ")
	builder.WriteString("updated_at=")
	builder.WriteString(_m.UpdatedAt.Format(time.ANSIC))
	builder.WriteByte(')')
	return builder.String()
}

// InvestigationSessions is a parsable slice of InvestigationSession.
type InvestigationSessions []*InvestigationSession
