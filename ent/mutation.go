// Code generated by ent, DO NOT EDIT.

package ent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent"
	"entgo.io/ent/dialect/sql"
	"github.com/probelab/inquest/ent/investigationsession"
	"github.com/probelab/inquest/ent/predicate"
)

const (
	// Operation types.
	OpCreate    = ent.OpCreate
	OpDelete    = ent.OpDelete
	OpDeleteOne = ent.OpDeleteOne
	OpUpdate    = ent.OpUpdate
	OpUpdateOne = ent.OpUpdateOne

	// Node types.
	TypeInvestigationSession = "InvestigationSession"
)

// InvestigationSessionMutation represents an operation that mutates the InvestigationSession nodes in the graph.
type InvestigationSessionMutation struct {
	config
	op            Op
	typ           string
	id            *string
	scenario      *string
	alert_text    *string
	status        *investigationsession.Status
	turn_count    *int
	addturn_count *int
	steps         *[]map[string]interface{}
	appendsteps   []map[string]interface{}
	diagnosis     *string
	run_meta      *map[string]interface{}
	error_detail  *string
	thread_id     *string
	created_at    *time.Time
	updated_at    *time.Time
	clearedFields map[string]struct{}
	done          bool
	oldValue      func(context.Context) (*InvestigationSession, error)
	predicates    []predicate.InvestigationSession
}

var _ ent.Mutation = (*InvestigationSessionMutation)(nil)

// investigationsessionOption allows management of the mutation configuration using functional options.
type investigationsessionOption func(*InvestigationSessionMutation)

// newInvestigationSessionMutation creates new mutation for the InvestigationSession entity.
func newInvestigationSessionMutation(c config, op Op, opts ...investigationsessionOption) *InvestigationSessionMutation {
	m := &InvestigationSessionMutation{
		config:        c,
		op:            op,
		typ:           TypeInvestigationSession,
		clearedFields: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// withInvestigationSessionID sets the ID field of the mutation.
func withInvestigationSessionID(id string) investigationsessionOption {
	return func(m *InvestigationSessionMutation) {
		var (
			err   error
			once  sync.Once
			value *InvestigationSession
		)
		m.oldValue = func(ctx context.Context) (*InvestigationSession, error) {
			once.Do(func() {
				if m.done {
					err = errors.New("querying old values post mutation is not allowed")
				} else {
					value, err = m.Client().InvestigationSession.Get(ctx, id)
				}
			})
			return value, err
		}
		m.id = &id
	}
}

// withInvestigationSession sets the old InvestigationSession of the mutation.
func withInvestigationSession(node *InvestigationSession) investigationsessionOption {
	return func(m *InvestigationSessionMutation) {
		m.oldValue = func(context.Context) (*InvestigationSession, error) {
			return node, nil
		}
		m.id = &node.ID
	}
}

// Client returns a new `ent.Client` from the mutation. If the mutation was
// executed in a transaction (ent.Tx), a transactional client is returned.
func (m InvestigationSessionMutation) Client() *Client {
	client := &Client{config: m.config}
	client.init()
	return client
}

// Tx returns an `ent.Tx` for mutations that were executed in transactions;
// it returns an error otherwise.
func (m InvestigationSessionMutation) Tx() (*Tx, error) {
	if _, ok := m.driver.(*txDriver); !ok {
		return nil, errors.New("ent: mutation is not running in a transaction")
	}
	tx := &Tx{config: m.config}
	tx.init()
	return tx, nil
}

// SetID sets the value of the id field. Note that this
// operation is only accepted on creation of InvestigationSession entities.
func (m *InvestigationSessionMutation) SetID(id string) {
	m.id = &id
}

// ID returns the ID value in the mutation. Note that the ID is only available
// if it was provided to the builder or after it was returned from the database.
func (m *InvestigationSessionMutation) ID() (id string, exists bool) {
	if m.id == nil {
		return
	}
	return *m.id, true
}

// IDs queries the database and returns the entity ids that match the mutation's predicate.
// That means, if the mutation is applied within a transaction with an isolation level such
// as sql.LevelSerializable, the returned ids match the ids of the rows that will be updated
// or updated by the mutation.
func (m *InvestigationSessionMutation) IDs(ctx context.Context) ([]string, error) {
	switch {
	case m.op.Is(OpUpdateOne | OpDeleteOne):
		id, exists := m.ID()
		if exists {
			return []string{id}, nil
		}
		fallthrough
	case m.op.Is(OpUpdate | OpDelete):
		return m.Client().InvestigationSession.Query().Where(m.predicates...).IDs(ctx)
	default:
		return nil, fmt.Errorf("IDs is not allowed on %s operations", m.op)
	}
}

// SetScenario sets the "scenario" field.
func (m *InvestigationSessionMutation) SetScenario(s string) {
	m.scenario = &s
}

// Scenario returns the value of the "scenario" field in the mutation.
func (m *InvestigationSessionMutation) Scenario() (r string, exists bool) {
	v := m.scenario
	if v == nil {
		return
	}
	return *v, true
}

// OldScenario returns the old "scenario" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldScenario(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldScenario is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldScenario requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldScenario: %w", err)
	}
	return oldValue.Scenario, nil
}

// ResetScenario resets all changes to the "scenario" field.
func (m *InvestigationSessionMutation) ResetScenario() {
	m.scenario = nil
}

// SetAlertText sets the "alert_text" field.
func (m *InvestigationSessionMutation) SetAlertText(s string) {
	m.alert_text = &s
}

// AlertText returns the value of the "alert_text" field in the mutation.
func (m *InvestigationSessionMutation) AlertText() (r string, exists bool) {
	v := m.alert_text
	if v == nil {
		return
	}
	return *v, true
}

// OldAlertText returns the old "alert_text" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldAlertText(ctx context.Context) (v string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldAlertText is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldAlertText requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldAlertText: %w", err)
	}
	return oldValue.AlertText, nil
}

// ResetAlertText resets all changes to the "alert_text" field.
func (m *InvestigationSessionMutation) ResetAlertText() {
	m.alert_text = nil
}

// SetStatus sets the "status" field.
func (m *InvestigationSessionMutation) SetStatus(i investigationsession.Status) {
	m.status = &i
}

// Status returns the value of the "status" field in the mutation.
func (m *InvestigationSessionMutation) Status() (r investigationsession.Status, exists bool) {
	v := m.status
	if v == nil {
		return
	}
	return *v, true
}

// OldStatus returns the old "status" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldStatus(ctx context.Context) (v investigationsession.Status, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldStatus is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldStatus requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldStatus: %w", err)
	}
	return oldValue.Status, nil
}

// ResetStatus resets all changes to the "status" field.
func (m *InvestigationSessionMutation) ResetStatus() {
	m.status = nil
}

// SetTurnCount sets the "turn_count" field.
func (m *InvestigationSessionMutation) SetTurnCount(i int) {
	m.turn_count = &i
	m.addturn_count = nil
}

// TurnCount returns the value of the "turn_count" field in the mutation.
func (m *InvestigationSessionMutation) TurnCount() (r int, exists bool) {
	v := m.turn_count
	if v == nil {
		return
	}
	return *v, true
}

// OldTurnCount returns the old "turn_count" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldTurnCount(ctx context.Context) (v int, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldTurnCount is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldTurnCount requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldTurnCount: %w", err)
	}
	return oldValue.TurnCount, nil
}

// AddTurnCount adds i to the "turn_count" field.
func (m *InvestigationSessionMutation) AddTurnCount(i int) {
	if m.addturn_count != nil {
		*m.addturn_count += i
	} else {
		m.addturn_count = &i
	}
}

// AddedTurnCount returns the value that was added to the "turn_count" field in this mutation.
func (m *InvestigationSessionMutation) AddedTurnCount() (r int, exists bool) {
	v := m.addturn_count
	if v == nil {
		return
	}
	return *v, true
}

// ResetTurnCount resets all changes to the "turn_count" field.
func (m *InvestigationSessionMutation) ResetTurnCount() {
	m.turn_count = nil
	m.addturn_count = nil
}

// SetSteps sets the "steps" field.
func (m *InvestigationSessionMutation) SetSteps(value []map[string]interface{}) {
	m.steps = &value
	m.appendsteps = nil
}

// Steps returns the value of the "steps" field in the mutation.
func (m *InvestigationSessionMutation) Steps() (r []map[string]interface{}, exists bool) {
	v := m.steps
	if v == nil {
		return
	}
	return *v, true
}

// OldSteps returns the old "steps" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldSteps(ctx context.Context) (v []map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldSteps is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldSteps requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldSteps: %w", err)
	}
	return oldValue.Steps, nil
}

// AppendSteps adds value to the "steps" field.
func (m *InvestigationSessionMutation) AppendSteps(value []map[string]interface{}) {
	m.appendsteps = append(m.appendsteps, value...)
}

// AppendedSteps returns the list of values that were appended to the "steps" field in this mutation.
func (m *InvestigationSessionMutation) AppendedSteps() ([]map[string]interface{}, bool) {
	if len(m.appendsteps) == 0 {
		return nil, false
	}
	return m.appendsteps, true
}

// ClearSteps clears the value of the "steps" field.
func (m *InvestigationSessionMutation) ClearSteps() {
	m.steps = nil
	m.appendsteps = nil
	m.clearedFields[investigationsession.FieldSteps] = struct{}{}
}

// StepsCleared returns if the "steps" field was cleared in this mutation.
func (m *InvestigationSessionMutation) StepsCleared() bool {
	_, ok := m.clearedFields[investigationsession.FieldSteps]
	return ok
}

// ResetSteps resets all changes to the "steps" field.
func (m *InvestigationSessionMutation) ResetSteps() {
	m.steps = nil
	m.appendsteps = nil
	delete(m.clearedFields, investigationsession.FieldSteps)
}

// SetDiagnosis sets the "diagnosis" field.
func (m *InvestigationSessionMutation) SetDiagnosis(s string) {
	m.diagnosis = &s
}

// Diagnosis returns the value of the "diagnosis" field in the mutation.
func (m *InvestigationSessionMutation) Diagnosis() (r string, exists bool) {
	v := m.diagnosis
	if v == nil {
		return
	}
	return *v, true
}

// OldDiagnosis returns the old "diagnosis" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldDiagnosis(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldDiagnosis is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldDiagnosis requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldDiagnosis: %w", err)
	}
	return oldValue.Diagnosis, nil
}

// ClearDiagnosis clears the value of the "diagnosis" field.
func (m *InvestigationSessionMutation) ClearDiagnosis() {
	m.diagnosis = nil
	m.clearedFields[investigationsession.FieldDiagnosis] = struct{}{}
}

// DiagnosisCleared returns if the "diagnosis" field was cleared in this mutation.
func (m *InvestigationSessionMutation) DiagnosisCleared() bool {
	_, ok := m.clearedFields[investigationsession.FieldDiagnosis]
	return ok
}

// ResetDiagnosis resets all changes to the "diagnosis" field.
func (m *InvestigationSessionMutation) ResetDiagnosis() {
	m.diagnosis = nil
	delete(m.clearedFields, investigationsession.FieldDiagnosis)
}

// SetRunMeta sets the "run_meta" field.
func (m *InvestigationSessionMutation) SetRunMeta(value map[string]interface{}) {
	m.run_meta = &value
}

// RunMeta returns the value of the "run_meta" field in the mutation.
func (m *InvestigationSessionMutation) RunMeta() (r map[string]interface{}, exists bool) {
	v := m.run_meta
	if v == nil {
		return
	}
	return *v, true
}

// OldRunMeta returns the old "run_meta" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldRunMeta(ctx context.Context) (v map[string]interface{}, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldRunMeta is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldRunMeta requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldRunMeta: %w", err)
	}
	return oldValue.RunMeta, nil
}

// ClearRunMeta clears the value of the "run_meta" field.
func (m *InvestigationSessionMutation) ClearRunMeta() {
	m.run_meta = nil
	m.clearedFields[investigationsession.FieldRunMeta] = struct{}{}
}

// RunMetaCleared returns if the "run_meta" field was cleared in this mutation.
func (m *InvestigationSessionMutation) RunMetaCleared() bool {
	_, ok := m.clearedFields[investigationsession.FieldRunMeta]
	return ok
}

// ResetRunMeta resets all changes to the "run_meta" field.
func (m *InvestigationSessionMutation) ResetRunMeta() {
	m.run_meta = nil
	delete(m.clearedFields, investigationsession.FieldRunMeta)
}

// SetErrorDetail sets the "error_detail" field.
func (m *InvestigationSessionMutation) SetErrorDetail(s string) {
	m.error_detail = &s
}

// ErrorDetail returns the value of the "error_detail" field in the mutation.
func (m *InvestigationSessionMutation) ErrorDetail() (r string, exists bool) {
	v := m.error_detail
	if v == nil {
		return
	}
	return *v, true
}

// OldErrorDetail returns the old "error_detail" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldErrorDetail(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldErrorDetail is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldErrorDetail requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldErrorDetail: %w", err)
	}
	return oldValue.ErrorDetail, nil
}

// ClearErrorDetail clears the value of the "error_detail" field.
func (m *InvestigationSessionMutation) ClearErrorDetail() {
	m.error_detail = nil
	m.clearedFields[investigationsession.FieldErrorDetail] = struct{}{}
}

// ErrorDetailCleared returns if the "error_detail" field was cleared in this mutation.
func (m *InvestigationSessionMutation) ErrorDetailCleared() bool {
	_, ok := m.clearedFields[investigationsession.FieldErrorDetail]
	return ok
}

// ResetErrorDetail resets all changes to the "error_detail" field.
func (m *InvestigationSessionMutation) ResetErrorDetail() {
	m.error_detail = nil
	delete(m.clearedFields, investigationsession.FieldErrorDetail)
}

// SetThreadID sets the "thread_id" field.
func (m *InvestigationSessionMutation) SetThreadID(s string) {
	m.thread_id = &s
}

// ThreadID returns the value of the "thread_id" field in the mutation.
func (m *InvestigationSessionMutation) ThreadID() (r string, exists bool) {
	v := m.thread_id
	if v == nil {
		return
	}
	return *v, true
}

// OldThreadID returns the old "thread_id" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldThreadID(ctx context.Context) (v *string, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldThreadID is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldThreadID requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldThreadID: %w", err)
	}
	return oldValue.ThreadID, nil
}

// ClearThreadID clears the value of the "thread_id" field.
func (m *InvestigationSessionMutation) ClearThreadID() {
	m.thread_id = nil
	m.clearedFields[investigationsession.FieldThreadID] = struct{}{}
}

// ThreadIDCleared returns if the "thread_id" field was cleared in this mutation.
func (m *InvestigationSessionMutation) ThreadIDCleared() bool {
	_, ok := m.clearedFields[investigationsession.FieldThreadID]
	return ok
}

// ResetThreadID resets all changes to the "thread_id" field.
func (m *InvestigationSessionMutation) ResetThreadID() {
	m.thread_id = nil
	delete(m.clearedFields, investigationsession.FieldThreadID)
}

// SetCreatedAt sets the "created_at" field.
func (m *InvestigationSessionMutation) SetCreatedAt(t time.Time) {
	m.created_at = &t
}

// CreatedAt returns the value of the "created_at" field in the mutation.
func (m *InvestigationSessionMutation) CreatedAt() (r time.Time, exists bool) {
	v := m.created_at
	if v == nil {
		return
	}
	return *v, true
}

// OldCreatedAt returns the old "created_at" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldCreatedAt(ctx context.Context) (v time.Time, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldCreatedAt is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldCreatedAt requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldCreatedAt: %w", err)
	}
	return oldValue.CreatedAt, nil
}

// ResetCreatedAt resets all changes to the "created_at" field.
func (m *InvestigationSessionMutation) ResetCreatedAt() {
	m.created_at = nil
}

// SetUpdatedAt sets the "updated_at" field.
func (m *InvestigationSessionMutation) SetUpdatedAt(t time.Time) {
	m.updated_at = &t
}

// UpdatedAt returns the value of the "updated_at" field in the mutation.
func (m *InvestigationSessionMutation) UpdatedAt() (r time.Time, exists bool) {
	v := m.updated_at
	if v == nil {
		return
	}
	return *v, true
}

// OldUpdatedAt returns the old "updated_at" field's value of the InvestigationSession entity.
// If the InvestigationSession object wasn't provided to the builder, the object is fetched from the database.
// An error is returned if the mutation operation is not UpdateOne, or the database query fails.
func (m *InvestigationSessionMutation) OldUpdatedAt(ctx context.Context) (v time.Time, err error) {
	if !m.op.Is(OpUpdateOne) {
		return v, errors.New("OldUpdatedAt is only allowed on UpdateOne operations")
	}
	if m.id == nil || m.oldValue == nil {
		return v, errors.New("OldUpdatedAt requires an ID field in the mutation")
	}
	oldValue, err := m.oldValue(ctx)
	if err != nil {
		return v, fmt.Errorf("querying old value for OldUpdatedAt: %w", err)
	}
	return oldValue.UpdatedAt, nil
}

// ResetUpdatedAt resets all changes to the "updated_at" field.
func (m *InvestigationSessionMutation) ResetUpdatedAt() {
	m.updated_at = nil
}

// Where appends a list predicates to the InvestigationSessionMutation builder.
func (m *InvestigationSessionMutation) Where(ps ...predicate.InvestigationSession) {
	m.predicates = append(m.predicates, ps...)
}

// WhereP appends storage-level predicates to the InvestigationSessionMutation builder. Using this method,
// users can use type-assertion to append predicates that do not depend on any generated package.
func (m *InvestigationSessionMutation) WhereP(ps ...func(*sql.Selector)) {
	p := make([]predicate.InvestigationSession, len(ps))
	for i := range ps {
		p[i] = ps[i]
	}
	m.Where(p...)
}

// Op returns the operation name.
func (m *InvestigationSessionMutation) Op() Op {
	return m.op
}

// SetOp allows setting the mutation operation.
func (m *InvestigationSessionMutation) SetOp(op Op) {
	m.op = op
}

// Type returns the node type of this mutation (InvestigationSession).
func (m *InvestigationSessionMutation) Type() string {
	return m.typ
}

// Fields returns all fields that were changed during this mutation. Note that in
// order to get all numeric fields that were incremented/decremented, call
// AddedFields().
func (m *InvestigationSessionMutation) Fields() []string {
	fields := make([]string, 0, 11)
	if m.scenario != nil {
		fields = append(fields, investigationsession.FieldScenario)
	}
	if m.alert_text != nil {
		fields = append(fields, investigationsession.FieldAlertText)
	}
	if m.status != nil {
		fields = append(fields, investigationsession.FieldStatus)
	}
	if m.turn_count != nil {
		fields = append(fields, investigationsession.FieldTurnCount)
	}
	if m.steps != nil {
		fields = append(fields, investigationsession.FieldSteps)
	}
	if m.diagnosis != nil {
		fields = append(fields, investigationsession.FieldDiagnosis)
	}
	if m.run_meta != nil {
		fields = append(fields, investigationsession.FieldRunMeta)
	}
	if m.error_detail != nil {
		fields = append(fields, investigationsession.FieldErrorDetail)
	}
	if m.thread_id != nil {
		fields = append(fields, investigationsession.FieldThreadID)
	}
	if m.created_at != nil {
		fields = append(fields, investigationsession.FieldCreatedAt)
	}
	if m.updated_at != nil {
		fields = append(fields, investigationsession.FieldUpdatedAt)
	}
	return fields
}

// Field returns the value of a field with the given name. The second boolean
// return value indicates that this field was not set, or was not defined in the
// schema.
func (m *InvestigationSessionMutation) Field(name string) (ent.Value, bool) {
	switch name {
	case investigationsession.FieldScenario:
		return m.Scenario()
	case investigationsession.FieldAlertText:
		return m.AlertText()
	case investigationsession.FieldStatus:
		return m.Status()
	case investigationsession.FieldTurnCount:
		return m.TurnCount()
	case investigationsession.FieldSteps:
		return m.Steps()
	case investigationsession.FieldDiagnosis:
		return m.Diagnosis()
	case investigationsession.FieldRunMeta:
		return m.RunMeta()
	case investigationsession.FieldErrorDetail:
		return m.ErrorDetail()
	case investigationsession.FieldThreadID:
		return m.ThreadID()
	case investigationsession.FieldCreatedAt:
		return m.CreatedAt()
	case investigationsession.FieldUpdatedAt:
		return m.UpdatedAt()
	}
	return nil, false
}

// OldField returns the old value of the field from the database. An error is
// returned if the mutation operation is not UpdateOne, or the query to the
// database failed.
func (m *InvestigationSessionMutation) OldField(ctx context.Context, name string) (ent.Value, error) {
	switch name {
	case investigationsession.FieldScenario:
		return m.OldScenario(ctx)
	case investigationsession.FieldAlertText:
		return m.OldAlertText(ctx)
	case investigationsession.FieldStatus:
		return m.OldStatus(ctx)
	case investigationsession.FieldTurnCount:
		return m.OldTurnCount(ctx)
	case investigationsession.FieldSteps:
		return m.OldSteps(ctx)
	case investigationsession.FieldDiagnosis:
		return m.OldDiagnosis(ctx)
	case investigationsession.FieldRunMeta:
		return m.OldRunMeta(ctx)
	case investigationsession.FieldErrorDetail:
		return m.OldErrorDetail(ctx)
	case investigationsession.FieldThreadID:
		return m.OldThreadID(ctx)
	case investigationsession.FieldCreatedAt:
		return m.OldCreatedAt(ctx)
	case investigationsession.FieldUpdatedAt:
		return m.OldUpdatedAt(ctx)
	}
	return nil, fmt.Errorf("unknown InvestigationSession field %s", name)
}

// SetField sets the value of a field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *InvestigationSessionMutation) SetField(name string, value ent.Value) error {
	switch name {
	case investigationsession.FieldScenario:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetScenario(v)
		return nil
	case investigationsession.FieldAlertText:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetAlertText(v)
		return nil
	case investigationsession.FieldStatus:
		v, ok := value.(investigationsession.Status)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetStatus(v)
		return nil
	case investigationsession.FieldTurnCount:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetTurnCount(v)
		return nil
	case investigationsession.FieldSteps:
		v, ok := value.([]map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetSteps(v)
		return nil
	case investigationsession.FieldDiagnosis:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetDiagnosis(v)
		return nil
	case investigationsession.FieldRunMeta:
		v, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetRunMeta(v)
		return nil
	case investigationsession.FieldErrorDetail:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetErrorDetail(v)
		return nil
	case investigationsession.FieldThreadID:
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetThreadID(v)
		return nil
	case investigationsession.FieldCreatedAt:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetCreatedAt(v)
		return nil
	case investigationsession.FieldUpdatedAt:
		v, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.SetUpdatedAt(v)
		return nil
	}
	return fmt.Errorf("unknown InvestigationSession field %s", name)
}

// AddedFields returns all numeric fields that were incremented/decremented during
// this mutation.
func (m *InvestigationSessionMutation) AddedFields() []string {
	var fields []string
	if m.addturn_count != nil {
		fields = append(fields, investigationsession.FieldTurnCount)
	}
	return fields
}

// AddedField returns the numeric value that was incremented/decremented on a field
// with the given name. The second boolean return value indicates that this field
// was not set, or was not defined in the schema.
func (m *InvestigationSessionMutation) AddedField(name string) (ent.Value, bool) {
	switch name {
	case investigationsession.FieldTurnCount:
		return m.AddedTurnCount()
	}
	return nil, false
}

// AddField adds the value to the field with the given name. It returns an error if
// the field is not defined in the schema, or if the type mismatched the field
// type.
func (m *InvestigationSessionMutation) AddField(name string, value ent.Value) error {
	switch name {
	case investigationsession.FieldTurnCount:
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("unexpected type %T for field %s", value, name)
		}
		m.AddTurnCount(v)
		return nil
	}
	return fmt.Errorf("unknown InvestigationSession numeric field %s", name)
}

// ClearedFields returns all nullable fields that were cleared during this
// mutation.
func (m *InvestigationSessionMutation) ClearedFields() []string {
	var fields []string
	if m.FieldCleared(investigationsession.FieldSteps) {
		fields = append(fields, investigationsession.FieldSteps)
	}
	if m.FieldCleared(investigationsession.FieldDiagnosis) {
		fields = append(fields, investigationsession.FieldDiagnosis)
	}
	if m.FieldCleared(investigationsession.FieldRunMeta) {
		fields = append(fields, investigationsession.FieldRunMeta)
	}
	if m.FieldCleared(investigationsession.FieldErrorDetail) {
		fields = append(fields, investigationsession.FieldErrorDetail)
	}
	if m.FieldCleared(investigationsession.FieldThreadID) {
		fields = append(fields, investigationsession.FieldThreadID)
	}
	return fields
}

// FieldCleared returns a boolean indicating if a field with the given name was
// cleared in this mutation.
func (m *InvestigationSessionMutation) FieldCleared(name string) bool {
	_, ok := m.clearedFields[name]
	return ok
}

// ClearField clears the value of the field with the given name. It returns an
// error if the field is not defined in the schema.
func (m *InvestigationSessionMutation) ClearField(name string) error {
	switch name {
	case investigationsession.FieldSteps:
		m.ClearSteps()
		return nil
	case investigationsession.FieldDiagnosis:
		m.ClearDiagnosis()
		return nil
	case investigationsession.FieldRunMeta:
		m.ClearRunMeta()
		return nil
	case investigationsession.FieldErrorDetail:
		m.ClearErrorDetail()
		return nil
	case investigationsession.FieldThreadID:
		m.ClearThreadID()
		return nil
	}
	return fmt.Errorf("unknown InvestigationSession nullable field %s", name)
}

// ResetField resets all changes in the mutation for the field with the given name.
// It returns an error if the field is not defined in the schema.
func (m *InvestigationSessionMutation) ResetField(name string) error {
	switch name {
	case investigationsession.FieldScenario:
		m.ResetScenario()
		return nil
	case investigationsession.FieldAlertText:
		m.ResetAlertText()
		return nil
	case investigationsession.FieldStatus:
		m.ResetStatus()
		return nil
	case investigationsession.FieldTurnCount:
		m.ResetTurnCount()
		return nil
	case investigationsession.FieldSteps:
		m.ResetSteps()
		return nil
	case investigationsession.FieldDiagnosis:
		m.ResetDiagnosis()
		return nil
	case investigationsession.FieldRunMeta:
		m.ResetRunMeta()
		return nil
	case investigationsession.FieldErrorDetail:
		m.ResetErrorDetail()
		return nil
	case investigationsession.FieldThreadID:
		m.ResetThreadID()
		return nil
	case investigationsession.FieldCreatedAt:
		m.ResetCreatedAt()
		return nil
	case investigationsession.FieldUpdatedAt:
		m.ResetUpdatedAt()
		return nil
	}
	return fmt.Errorf("unknown InvestigationSession field %s", name)
}

// AddedEdges returns all edge names that were set/added in this mutation.
func (m *InvestigationSessionMutation) AddedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// AddedIDs returns all IDs (to other nodes) that were added for the given edge
// name in this mutation.
func (m *InvestigationSessionMutation) AddedIDs(name string) []ent.Value {
	return nil
}

// RemovedEdges returns all edge names that were removed in this mutation.
func (m *InvestigationSessionMutation) RemovedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// RemovedIDs returns all IDs (to other nodes) that were removed for the edge with
// the given name in this mutation.
func (m *InvestigationSessionMutation) RemovedIDs(name string) []ent.Value {
	return nil
}

// ClearedEdges returns all edge names that were cleared in this mutation.
func (m *InvestigationSessionMutation) ClearedEdges() []string {
	edges := make([]string, 0, 0)
	return edges
}

// EdgeCleared returns a boolean which indicates if the edge with the given name
// was cleared in this mutation.
func (m *InvestigationSessionMutation) EdgeCleared(name string) bool {
	return false
}

// ClearEdge clears the value of the edge with the given name. It returns an error
// if that edge is not defined in the schema.
func (m *InvestigationSessionMutation) ClearEdge(name string) error {
	return fmt.Errorf("unknown InvestigationSession unique edge %s", name)
}

// ResetEdge resets all changes to the edge with the given name in this mutation.
// It returns an error if the edge is not defined in the schema.
func (m *InvestigationSessionMutation) ResetEdge(name string) error {
	return fmt.Errorf("unknown InvestigationSession edge %s", name)
}
