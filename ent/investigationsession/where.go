// Code generated by ent, DO NOT EDIT.

package investigationsession

import (
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/probelab/inquest/ent/predicate"
)

// ID filters vertices based on their ID field.
func ID(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldID, id))
}

// IDEQ applies the EQ predicate on the ID field.
func IDEQ(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldID, id))
}

// IDNEQ applies the NEQ predicate on the ID field.
func IDNEQ(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldID, id))
}

// IDIn applies the In predicate on the ID field.
func IDIn(ids ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldID, ids...))
}

// IDNotIn applies the NotIn predicate on the ID field.
func IDNotIn(ids ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldID, ids...))
}

// IDGT applies the GT predicate on the ID field.
func IDGT(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldID, id))
}

// IDGTE applies the GTE predicate on the ID field.
func IDGTE(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldID, id))
}

// IDLT applies the LT predicate on the ID field.
func IDLT(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldID, id))
}

// IDLTE applies the LTE predicate on the ID field.
func IDLTE(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldID, id))
}

// IDEqualFold applies the EqualFold predicate on the ID field.
func IDEqualFold(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldID, id))
}

// IDContainsFold applies the ContainsFold predicate on the ID field.
func IDContainsFold(id string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldID, id))
}

// Scenario applies equality check predicate on the "scenario" field. It's identical to ScenarioEQ.
func Scenario(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldScenario, v))
}

// AlertText applies equality check predicate on the "alert_text" field. It's identical to AlertTextEQ.
func AlertText(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldAlertText, v))
}

// TurnCount applies equality check predicate on the "turn_count" field. It's identical to TurnCountEQ.
func TurnCount(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldTurnCount, v))
}

// Diagnosis applies equality check predicate on the "diagnosis" field. It's identical to DiagnosisEQ.
func Diagnosis(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldDiagnosis, v))
}

// ErrorDetail applies equality check predicate on the "error_detail" field. It's identical to ErrorDetailEQ.
func ErrorDetail(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldErrorDetail, v))
}

// ThreadID applies equality check predicate on the "thread_id" field. It's identical to ThreadIDEQ.
func ThreadID(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldThreadID, v))
}

// CreatedAt applies equality check predicate on the "created_at" field. It's identical to CreatedAtEQ.
func CreatedAt(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldCreatedAt, v))
}

// UpdatedAt applies equality check predicate on the "updated_at" field. It's identical to UpdatedAtEQ.
func UpdatedAt(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldUpdatedAt, v))
}

// ScenarioEQ applies the EQ predicate on the "scenario" field.
func ScenarioEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldScenario, v))
}

// ScenarioNEQ applies the NEQ predicate on the "scenario" field.
func ScenarioNEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldScenario, v))
}

// ScenarioIn applies the In predicate on the "scenario" field.
func ScenarioIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldScenario, vs...))
}

// ScenarioNotIn applies the NotIn predicate on the "scenario" field.
func ScenarioNotIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldScenario, vs...))
}

// ScenarioGT applies the GT predicate on the "scenario" field.
func ScenarioGT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldScenario, v))
}

// ScenarioGTE applies the GTE predicate on the "scenario" field.
func ScenarioGTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldScenario, v))
}

// ScenarioLT applies the LT predicate on the "scenario" field.
func ScenarioLT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldScenario, v))
}

// ScenarioLTE applies the LTE predicate on the "scenario" field.
func ScenarioLTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldScenario, v))
}

// ScenarioContains applies the Contains predicate on the "scenario" field.
func ScenarioContains(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContains(FieldScenario, v))
}

// ScenarioHasPrefix applies the HasPrefix predicate on the "scenario" field.
func ScenarioHasPrefix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasPrefix(FieldScenario, v))
}

// ScenarioHasSuffix applies the HasSuffix predicate on the "scenario" field.
func ScenarioHasSuffix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasSuffix(FieldScenario, v))
}

// ScenarioEqualFold applies the EqualFold predicate on the "scenario" field.
func ScenarioEqualFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldScenario, v))
}

// ScenarioContainsFold applies the ContainsFold predicate on the "scenario" field.
func ScenarioContainsFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldScenario, v))
}

// AlertTextEQ applies the EQ predicate on the "alert_text" field.
func AlertTextEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldAlertText, v))
}

// AlertTextNEQ applies the NEQ predicate on the "alert_text" field.
func AlertTextNEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldAlertText, v))
}

// AlertTextIn applies the In predicate on the "alert_text" field.
func AlertTextIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldAlertText, vs...))
}

// AlertTextNotIn applies the NotIn predicate on the "alert_text" field.
func AlertTextNotIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldAlertText, vs...))
}

// AlertTextGT applies the GT predicate on the "alert_text" field.
func AlertTextGT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldAlertText, v))
}

// AlertTextGTE applies the GTE predicate on the "alert_text" field.
func AlertTextGTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldAlertText, v))
}

// AlertTextLT applies the LT predicate on the "alert_text" field.
func AlertTextLT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldAlertText, v))
}

// AlertTextLTE applies the LTE predicate on the "alert_text" field.
func AlertTextLTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldAlertText, v))
}

// AlertTextContains applies the Contains predicate on the "alert_text" field.
func AlertTextContains(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContains(FieldAlertText, v))
}

// AlertTextHasPrefix applies the HasPrefix predicate on the "alert_text" field.
func AlertTextHasPrefix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasPrefix(FieldAlertText, v))
}

// AlertTextHasSuffix applies the HasSuffix predicate on the "alert_text" field.
func AlertTextHasSuffix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasSuffix(FieldAlertText, v))
}

// AlertTextEqualFold applies the EqualFold predicate on the "alert_text" field.
func AlertTextEqualFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldAlertText, v))
}

// AlertTextContainsFold applies the ContainsFold predicate on the "alert_text" field.
func AlertTextContainsFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldAlertText, v))
}

// StatusEQ applies the EQ predicate on the "status" field.
func StatusEQ(v Status) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldStatus, v))
}

// StatusNEQ applies the NEQ predicate on the "status" field.
func StatusNEQ(v Status) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldStatus, v))
}

// StatusIn applies the In predicate on the "status" field.
func StatusIn(vs ...Status) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldStatus, vs...))
}

// StatusNotIn applies the NotIn predicate on the "status" field.
func StatusNotIn(vs ...Status) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldStatus, vs...))
}

// TurnCountEQ applies the EQ predicate on the "turn_count" field.
func TurnCountEQ(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldTurnCount, v))
}

// TurnCountNEQ applies the NEQ predicate on the "turn_count" field.
func TurnCountNEQ(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldTurnCount, v))
}

// TurnCountIn applies the In predicate on the "turn_count" field.
func TurnCountIn(vs ...int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldTurnCount, vs...))
}

// TurnCountNotIn applies the NotIn predicate on the "turn_count" field.
func TurnCountNotIn(vs ...int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldTurnCount, vs...))
}

// TurnCountGT applies the GT predicate on the "turn_count" field.
func TurnCountGT(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldTurnCount, v))
}

// TurnCountGTE applies the GTE predicate on the "turn_count" field.
func TurnCountGTE(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldTurnCount, v))
}

// TurnCountLT applies the LT predicate on the "turn_count" field.
func TurnCountLT(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldTurnCount, v))
}

// TurnCountLTE applies the LTE predicate on the "turn_count" field.
func TurnCountLTE(v int) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldTurnCount, v))
}

// StepsIsNil applies the IsNil predicate on the "steps" field.
func StepsIsNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIsNull(FieldSteps))
}

// StepsNotNil applies the NotNil predicate on the "steps" field.
func StepsNotNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotNull(FieldSteps))
}

// DiagnosisEQ applies the EQ predicate on the "diagnosis" field.
func DiagnosisEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldDiagnosis, v))
}

// DiagnosisNEQ applies the NEQ predicate on the "diagnosis" field.
func DiagnosisNEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldDiagnosis, v))
}

// DiagnosisIn applies the In predicate on the "diagnosis" field.
func DiagnosisIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldDiagnosis, vs...))
}

// DiagnosisNotIn applies the NotIn predicate on the "diagnosis" field.
func DiagnosisNotIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldDiagnosis, vs...))
}

// DiagnosisGT applies the GT predicate on the "diagnosis" field.
func DiagnosisGT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldDiagnosis, v))
}

// DiagnosisGTE applies the GTE predicate on the "diagnosis" field.
func DiagnosisGTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldDiagnosis, v))
}

// DiagnosisLT applies the LT predicate on the "diagnosis" field.
func DiagnosisLT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldDiagnosis, v))
}

// DiagnosisLTE applies the LTE predicate on the "diagnosis" field.
func DiagnosisLTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldDiagnosis, v))
}

// DiagnosisContains applies the Contains predicate on the "diagnosis" field.
func DiagnosisContains(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContains(FieldDiagnosis, v))
}

// DiagnosisHasPrefix applies the HasPrefix predicate on the "diagnosis" field.
func DiagnosisHasPrefix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasPrefix(FieldDiagnosis, v))
}

// DiagnosisHasSuffix applies the HasSuffix predicate on the "diagnosis" field.
func DiagnosisHasSuffix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasSuffix(FieldDiagnosis, v))
}

// DiagnosisIsNil applies the IsNil predicate on the "diagnosis" field.
func DiagnosisIsNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIsNull(FieldDiagnosis))
}

// DiagnosisNotNil applies the NotNil predicate on the "diagnosis" field.
func DiagnosisNotNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotNull(FieldDiagnosis))
}

// DiagnosisEqualFold applies the EqualFold predicate on the "diagnosis" field.
func DiagnosisEqualFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldDiagnosis, v))
}

// DiagnosisContainsFold applies the ContainsFold predicate on the "diagnosis" field.
func DiagnosisContainsFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldDiagnosis, v))
}

// RunMetaIsNil applies the IsNil predicate on the "run_meta" field.
func RunMetaIsNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIsNull(FieldRunMeta))
}

// RunMetaNotNil applies the NotNil predicate on the "run_meta" field.
func RunMetaNotNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotNull(FieldRunMeta))
}

// ErrorDetailEQ applies the EQ predicate on the "error_detail" field.
func ErrorDetailEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldErrorDetail, v))
}

// ErrorDetailNEQ applies the NEQ predicate on the "error_detail" field.
func ErrorDetailNEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldErrorDetail, v))
}

// ErrorDetailIn applies the In predicate on the "error_detail" field.
func ErrorDetailIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldErrorDetail, vs...))
}

// ErrorDetailNotIn applies the NotIn predicate on the "error_detail" field.
func ErrorDetailNotIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldErrorDetail, vs...))
}

// ErrorDetailGT applies the GT predicate on the "error_detail" field.
func ErrorDetailGT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldErrorDetail, v))
}

// ErrorDetailGTE applies the GTE predicate on the "error_detail" field.
func ErrorDetailGTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldErrorDetail, v))
}

// ErrorDetailLT applies the LT predicate on the "error_detail" field.
func ErrorDetailLT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldErrorDetail, v))
}

// ErrorDetailLTE applies the LTE predicate on the "error_detail" field.
func ErrorDetailLTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldErrorDetail, v))
}

// ErrorDetailContains applies the Contains predicate on the "error_detail" field.
func ErrorDetailContains(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContains(FieldErrorDetail, v))
}

// ErrorDetailHasPrefix applies the HasPrefix predicate on the "error_detail" field.
func ErrorDetailHasPrefix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasPrefix(FieldErrorDetail, v))
}

// ErrorDetailHasSuffix applies the HasSuffix predicate on the "error_detail" field.
func ErrorDetailHasSuffix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasSuffix(FieldErrorDetail, v))
}

// ErrorDetailIsNil applies the IsNil predicate on the "error_detail" field.
func ErrorDetailIsNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIsNull(FieldErrorDetail))
}

// ErrorDetailNotNil applies the NotNil predicate on the "error_detail" field.
func ErrorDetailNotNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotNull(FieldErrorDetail))
}

// ErrorDetailEqualFold applies the EqualFold predicate on the "error_detail" field.
func ErrorDetailEqualFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldErrorDetail, v))
}

// ErrorDetailContainsFold applies the ContainsFold predicate on the "error_detail" field.
func ErrorDetailContainsFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldErrorDetail, v))
}

// ThreadIDEQ applies the EQ predicate on the "thread_id" field.
func ThreadIDEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldThreadID, v))
}

// ThreadIDNEQ applies the NEQ predicate on the "thread_id" field.
func ThreadIDNEQ(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldThreadID, v))
}

// ThreadIDIn applies the In predicate on the "thread_id" field.
func ThreadIDIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldThreadID, vs...))
}

// ThreadIDNotIn applies the NotIn predicate on the "thread_id" field.
func ThreadIDNotIn(vs ...string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldThreadID, vs...))
}

// ThreadIDGT applies the GT predicate on the "thread_id" field.
func ThreadIDGT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldThreadID, v))
}

// ThreadIDGTE applies the GTE predicate on the "thread_id" field.
func ThreadIDGTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldThreadID, v))
}

// ThreadIDLT applies the LT predicate on the "thread_id" field.
func ThreadIDLT(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldThreadID, v))
}

// ThreadIDLTE applies the LTE predicate on the "thread_id" field.
func ThreadIDLTE(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldThreadID, v))
}

// ThreadIDContains applies the Contains predicate on the "thread_id" field.
func ThreadIDContains(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContains(FieldThreadID, v))
}

// ThreadIDHasPrefix applies the HasPrefix predicate on the "thread_id" field.
func ThreadIDHasPrefix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasPrefix(FieldThreadID, v))
}

// ThreadIDHasSuffix applies the HasSuffix predicate on the "thread_id" field.
func ThreadIDHasSuffix(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldHasSuffix(FieldThreadID, v))
}

// ThreadIDIsNil applies the IsNil predicate on the "thread_id" field.
func ThreadIDIsNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIsNull(FieldThreadID))
}

// ThreadIDNotNil applies the NotNil predicate on the "thread_id" field.
func ThreadIDNotNil() predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotNull(FieldThreadID))
}

// ThreadIDEqualFold applies the EqualFold predicate on the "thread_id" field.
func ThreadIDEqualFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEqualFold(FieldThreadID, v))
}

// ThreadIDContainsFold applies the ContainsFold predicate on the "thread_id" field.
func ThreadIDContainsFold(v string) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldContainsFold(FieldThreadID, v))
}

// CreatedAtEQ applies the EQ predicate on the "created_at" field.
func CreatedAtEQ(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldCreatedAt, v))
}

// CreatedAtNEQ applies the NEQ predicate on the "created_at" field.
func CreatedAtNEQ(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldCreatedAt, v))
}

// CreatedAtIn applies the In predicate on the "created_at" field.
func CreatedAtIn(vs ...time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldCreatedAt, vs...))
}

// CreatedAtNotIn applies the NotIn predicate on the "created_at" field.
func CreatedAtNotIn(vs ...time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldCreatedAt, vs...))
}

// CreatedAtGT applies the GT predicate on the "created_at" field.
func CreatedAtGT(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldCreatedAt, v))
}

// CreatedAtGTE applies the GTE predicate on the "created_at" field.
func CreatedAtGTE(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldCreatedAt, v))
}

// CreatedAtLT applies the LT predicate on the "created_at" field.
func CreatedAtLT(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldCreatedAt, v))
}

// CreatedAtLTE applies the LTE predicate on the "created_at" field.
func CreatedAtLTE(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldCreatedAt, v))
}

// UpdatedAtEQ applies the EQ predicate on the "updated_at" field.
func UpdatedAtEQ(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldEQ(FieldUpdatedAt, v))
}

// UpdatedAtNEQ applies the NEQ predicate on the "updated_at" field.
func UpdatedAtNEQ(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNEQ(FieldUpdatedAt, v))
}

// UpdatedAtIn applies the In predicate on the "updated_at" field.
func UpdatedAtIn(vs ...time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldIn(FieldUpdatedAt, vs...))
}

// UpdatedAtNotIn applies the NotIn predicate on the "updated_at" field.
func UpdatedAtNotIn(vs ...time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldNotIn(FieldUpdatedAt, vs...))
}

// UpdatedAtGT applies the GT predicate on the "updated_at" field.
func UpdatedAtGT(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGT(FieldUpdatedAt, v))
}

// UpdatedAtGTE applies the GTE predicate on the "updated_at" field.
func UpdatedAtGTE(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldGTE(FieldUpdatedAt, v))
}

// UpdatedAtLT applies the LT predicate on the "updated_at" field.
func UpdatedAtLT(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLT(FieldUpdatedAt, v))
}

// UpdatedAtLTE applies the LTE predicate on the "updated_at" field.
func UpdatedAtLTE(v time.Time) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.FieldLTE(FieldUpdatedAt, v))
}

// And groups predicates with the AND operator between them.
func And(predicates ...predicate.InvestigationSession) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.AndPredicates(predicates...))
}

// Or groups predicates with the OR operator between them.
func Or(predicates ...predicate.InvestigationSession) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.OrPredicates(predicates...))
}

// Not applies the not operator on the given predicate.
func Not(p predicate.InvestigationSession) predicate.InvestigationSession {
	return predicate.InvestigationSession(sql.NotPredicates(p))
}
