// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql/sqlgraph"
	"entgo.io/ent/schema/field"
	"github.com/probelab/inquest/ent/investigationsession"
)

// InvestigationSessionCreate is the builder for creating a InvestigationSession entity.
type InvestigationSessionCreate struct {
	config
	mutation *InvestigationSessionMutation
	hooks    []Hook
}

// SetScenario sets the "scenario" field.
func (_c *InvestigationSessionCreate) SetScenario(v string) *InvestigationSessionCreate {
	_c.mutation.SetScenario(v)
	return _c
}

// SetAlertText sets the "alert_text" field.
func (_c *InvestigationSessionCreate) SetAlertText(v string) *InvestigationSessionCreate {
	_c.mutation.SetAlertText(v)
	return _c
}

// SetStatus sets the "status" field.
func (_c *InvestigationSessionCreate) SetStatus(v investigationsession.Status) *InvestigationSessionCreate {
	_c.mutation.SetStatus(v)
	return _c
}

// SetNillableStatus sets the "status" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableStatus(v *investigationsession.Status) *InvestigationSessionCreate {
	if v != nil {
		_c.SetStatus(*v)
	}
	return _c
}

// SetTurnCount sets the "turn_count" field.
func (_c *InvestigationSessionCreate) SetTurnCount(v int) *InvestigationSessionCreate {
	_c.mutation.SetTurnCount(v)
	return _c
}

// SetNillableTurnCount sets the "turn_count" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableTurnCount(v *int) *InvestigationSessionCreate {
	if v != nil {
		_c.SetTurnCount(*v)
	}
	return _c
}

// SetSteps sets the "steps" field.
func (_c *InvestigationSessionCreate) SetSteps(v []map[string]interface{}) *InvestigationSessionCreate {
	_c.mutation.SetSteps(v)
	return _c
}

// SetDiagnosis sets the "diagnosis" field.
func (_c *InvestigationSessionCreate) SetDiagnosis(v string) *InvestigationSessionCreate {
	_c.mutation.SetDiagnosis(v)
	return _c
}

// SetNillableDiagnosis sets the "diagnosis" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableDiagnosis(v *string) *InvestigationSessionCreate {
	if v != nil {
		_c.SetDiagnosis(*v)
	}
	return _c
}

// SetRunMeta sets the "run_meta" field.
func (_c *InvestigationSessionCreate) SetRunMeta(v map[string]interface{}) *InvestigationSessionCreate {
	_c.mutation.SetRunMeta(v)
	return _c
}

// SetErrorDetail sets the "error_detail" field.
func (_c *InvestigationSessionCreate) SetErrorDetail(v string) *InvestigationSessionCreate {
	_c.mutation.SetErrorDetail(v)
	return _c
}

// SetNillableErrorDetail sets the "error_detail" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableErrorDetail(v *string) *InvestigationSessionCreate {
	if v != nil {
		_c.SetErrorDetail(*v)
	}
	return _c
}

// SetThreadID sets the "thread_id" field.
func (_c *InvestigationSessionCreate) SetThreadID(v string) *InvestigationSessionCreate {
	_c.mutation.SetThreadID(v)
	return _c
}

// SetNillableThreadID sets the "thread_id" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableThreadID(v *string) *InvestigationSessionCreate {
	if v != nil {
		_c.SetThreadID(*v)
	}
	return _c
}

// SetCreatedAt sets the "created_at" field.
func (_c *InvestigationSessionCreate) SetCreatedAt(v time.Time) *InvestigationSessionCreate {
	_c.mutation.SetCreatedAt(v)
	return _c
}

// SetNillableCreatedAt sets the "created_at" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableCreatedAt(v *time.Time) *InvestigationSessionCreate {
	if v != nil {
		_c.SetCreatedAt(*v)
	}
	return _c
}

// SetUpdatedAt sets the "updated_at" field.
func (_c *InvestigationSessionCreate) SetUpdatedAt(v time.Time) *InvestigationSessionCreate {
	_c.mutation.SetUpdatedAt(v)
	return _c
}

// SetNillableUpdatedAt sets the "updated_at" field if the given value is not nil.
func (_c *InvestigationSessionCreate) SetNillableUpdatedAt(v *time.Time) *InvestigationSessionCreate {
	if v != nil {
		_c.SetUpdatedAt(*v)
	}
	return _c
}

// SetID sets the "id" field.
func (_c *InvestigationSessionCreate) SetID(v string) *InvestigationSessionCreate {
	_c.mutation.SetID(v)
	return _c
}

// Mutation returns the InvestigationSessionMutation object of the builder.
func (_c *InvestigationSessionCreate) Mutation() *InvestigationSessionMutation {
	return _c.mutation
}

// Save creates the InvestigationSession in the database.
func (_c *InvestigationSessionCreate) Save(ctx context.Context) (*InvestigationSession, error) {
	_c.defaults()
	return withHooks(ctx, _c.sqlSave, _c.mutation, _c.hooks)
}

// SaveX calls Save and panics if Save returns an error.
func (_c *InvestigationSessionCreate) SaveX(ctx context.Context) *InvestigationSession {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *InvestigationSessionCreate) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *InvestigationSessionCreate) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}

// defaults sets the default values of the builder before save.
func (_c *InvestigationSessionCreate) defaults() {
	if _, ok := _c.mutation.Status(); !ok {
		v := investigationsession.DefaultStatus
		_c.mutation.SetStatus(v)
	}
	if _, ok := _c.mutation.TurnCount(); !ok {
		v := investigationsession.DefaultTurnCount
		_c.mutation.SetTurnCount(v)
	}
	if _, ok := _c.mutation.CreatedAt(); !ok {
		v := investigationsession.DefaultCreatedAt()
		_c.mutation.SetCreatedAt(v)
	}
	if _, ok := _c.mutation.UpdatedAt(); !ok {
		v := investigationsession.DefaultUpdatedAt()
		_c.mutation.SetUpdatedAt(v)
	}
}

// check runs all checks and user-defined validators on the builder.
func (_c *InvestigationSessionCreate) check() error {
	if _, ok := _c.mutation.Scenario(); !ok {
		return &ValidationError{Name: "scenario", err: errors.New(`ent: missing required field "InvestigationSession.scenario"`)}
	}
	if _, ok := _c.mutation.AlertText(); !ok {
		return &ValidationError{Name: "alert_text", err: errors.New(`ent: missing required field "InvestigationSession.alert_text"`)}
	}
	if _, ok := _c.mutation.Status(); !ok {
		return &ValidationError{Name: "status", err: errors.New(`ent: missing required field "InvestigationSession.status"`)}
	}
	if v, ok := _c.mutation.Status(); ok {
		if err := investigationsession.StatusValidator(v); err != nil {
			return &ValidationError{Name: "status", err: fmt.Errorf(`ent: validator failed for field "InvestigationSession.status": %w`, err)}
		}
	}
	if _, ok := _c.mutation.TurnCount(); !ok {
		return &ValidationError{Name: "turn_count", err: errors.New(`ent: missing required field "InvestigationSession.turn_count"`)}
	}
	if _, ok := _c.mutation.CreatedAt(); !ok {
		return &ValidationError{Name: "created_at", err: errors.New(`ent: missing required field "InvestigationSession.created_at"`)}
	}
	if _, ok := _c.mutation.UpdatedAt(); !ok {
		return &ValidationError{Name: "updated_at", err: errors.New(`ent: missing required field "InvestigationSession.updated_at"`)}
	}
	return nil
}

func (_c *InvestigationSessionCreate) sqlSave(ctx context.Context) (*InvestigationSession, error) {
	if err := _c.check(); err != nil {
		return nil, err
	}
	_node, _spec := _c.createSpec()
	if err := sqlgraph.CreateNode(ctx, _c.driver, _spec); err != nil {
		if sqlgraph.IsConstraintError(err) {
			err = &ConstraintError{msg: err.Error(), wrap: err}
		}
		return nil, err
	}
	if _spec.ID.Value != nil {
		if id, ok := _spec.ID.Value.(string); ok {
			_node.ID = id
		} else {
			return nil, fmt.Errorf("unexpected InvestigationSession.ID type: %T", _spec.ID.Value)
		}
	}
	_c.mutation.id = &_node.ID
	_c.mutation.done = true
	return _node, nil
}

func (_c *InvestigationSessionCreate) createSpec() (*InvestigationSession, *sqlgraph.CreateSpec) {
	var (
		_node = &InvestigationSession{config: _c.config}
		_spec = sqlgraph.NewCreateSpec(investigationsession.Table, sqlgraph.NewFieldSpec(investigationsession.FieldID, field.TypeString))
	)
	if id, ok := _c.mutation.ID(); ok {
		_node.ID = id
		_spec.ID.Value = id
	}
	if value, ok := _c.mutation.Scenario(); ok {
		_spec.SetField(investigationsession.FieldScenario, field.TypeString, value)
		_node.Scenario = value
	}
	if value, ok := _c.mutation.AlertText(); ok {
		_spec.SetField(investigationsession.FieldAlertText, field.TypeString, value)
		_node.AlertText = value
	}
	if value, ok := _c.mutation.Status(); ok {
		_spec.SetField(investigationsession.FieldStatus, field.TypeEnum, value)
		_node.Status = value
	}
	if value, ok := _c.mutation.TurnCount(); ok {
		_spec.SetField(investigationsession.FieldTurnCount, field.TypeInt, value)
		_node.TurnCount = value
	}
	if value, ok := _c.mutation.Steps(); ok {
		_spec.SetField(investigationsession.FieldSteps, field.TypeJSON, value)
		_node.Steps = value
	}
	if value, ok := _c.mutation.Diagnosis(); ok {
		_spec.SetField(investigationsession.FieldDiagnosis, field.TypeString, value)
		_node.Diagnosis = &value
	}
	if value, ok := _c.mutation.RunMeta(); ok {
		_spec.SetField(investigationsession.FieldRunMeta, field.TypeJSON, value)
		_node.RunMeta = value
	}
	if value, ok := _c.mutation.ErrorDetail(); ok {
		_spec.SetField(investigationsession.FieldErrorDetail, field.TypeString, value)
		_node.ErrorDetail = &value
	}
	if value, ok := _c.mutation.ThreadID(); ok {
		_spec.SetField(investigationsession.FieldThreadID, field.TypeString, value)
		_node.ThreadID = &value
	}
	if value, ok := _c.mutation.CreatedAt(); ok {
		_spec.SetField(investigationsession.FieldCreatedAt, field.TypeTime, value)
		_node.CreatedAt = value
	}
	if value, ok := _c.mutation.UpdatedAt(); ok {
		_spec.SetField(investigationsession.FieldUpdatedAt, field.TypeTime, value)
		_node.UpdatedAt = value
	}
	return _node, _spec
}

// InvestigationSessionCreateBulk is the builder for creating many InvestigationSession entities in bulk.
type InvestigationSessionCreateBulk struct {
	config
	err      error
	builders []*InvestigationSessionCreate
}

// Save creates the InvestigationSession entities in the database.
func (_c *InvestigationSessionCreateBulk) Save(ctx context.Context) ([]*InvestigationSession, error) {
	if _c.err != nil {
		return nil, _c.err
	}
	specs := make([]*sqlgraph.CreateSpec, len(_c.builders))
	nodes := make([]*InvestigationSession, len(_c.builders))
	mutators := make([]Mutator, len(_c.builders))
	for i := range _c.builders {
		func(i int, root context.Context) {
			builder := _c.builders[i]
			builder.defaults()
			var mut Mutator = MutateFunc(func(ctx context.Context, m Mutation) (Value, error) {
				mutation, ok := m.(*InvestigationSessionMutation)
				if !ok {
					return nil, fmt.Errorf("unexpected mutation type %T", m)
				}
				if err := builder.check(); err != nil {
					return nil, err
				}
				builder.mutation = mutation
				var err error
				nodes[i], specs[i] = builder.createSpec()
				if i < len(mutators)-1 {
					_, err = mutators[i+1].Mutate(root, _c.builders[i+1].mutation)
				} else {
					spec := &sqlgraph.BatchCreateSpec{Nodes: specs}
					// Invoke the actual operation on the latest mutation in the chain.
					if err = sqlgraph.BatchCreate(ctx, _c.driver, spec); err != nil {
						if sqlgraph.IsConstraintError(err) {
							err = &ConstraintError{msg: err.Error(), wrap: err}
						}
					}
				}
				if err != nil {
					return nil, err
				}
				mutation.id = &nodes[i].ID
				mutation.done = true
				return nodes[i], nil
			})
			for i := len(builder.hooks) - 1; i >= 0; i-- {
				mut = builder.hooks[i](mut)
			}
			mutators[i] = mut
		}(i, ctx)
	}
	if len(mutators) > 0 {
		if _, err := mutators[0].Mutate(ctx, _c.builders[0].mutation); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// SaveX is like Save, but panics if an error occurs.
func (_c *InvestigationSessionCreateBulk) SaveX(ctx context.Context) []*InvestigationSession {
	v, err := _c.Save(ctx)
	if err != nil {
		panic(err)
	}
	return v
}

// Exec executes the query.
func (_c *InvestigationSessionCreateBulk) Exec(ctx context.Context) error {
	_, err := _c.Save(ctx)
	return err
}

// ExecX is like Exec, but panics if an error occurs.
func (_c *InvestigationSessionCreateBulk) ExecX(ctx context.Context) {
	if err := _c.Exec(ctx); err != nil {
		panic(err)
	}
}
