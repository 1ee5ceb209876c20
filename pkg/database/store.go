package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/probelab/inquest/ent"
	"github.com/probelab/inquest/ent/investigationsession"
	"github.com/probelab/inquest/pkg/models"
)

// ErrNotFound is returned when no durable record exists for the id.
var ErrNotFound = errors.New("session not found")

// Store is the durable session store. Snapshots are written on terminal
// transitions and on eviction; callers treat write failures as
// observability-only.
type Store interface {
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	GetByID(ctx context.Context, id string) (models.Snapshot, error)
	ListRecent(ctx context.Context, scenario string, limit int) ([]models.Snapshot, error)
}

// EntStore implements Store over the Ent client.
type EntStore struct {
	client *Client
}

func NewEntStore(client *Client) *EntStore {
	return &EntStore{client: client}
}

// SaveSnapshot upserts the full session snapshot keyed by session id.
func (s *EntStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	steps, err := stepsToJSON(snap.Steps)
	if err != nil {
		return fmt.Errorf("encoding steps: %w", err)
	}
	runMeta := map[string]interface{}{
		"steps":   snap.RunMeta.Steps,
		"tokens":  snap.RunMeta.Tokens,
		"elapsed": snap.RunMeta.Elapsed,
	}

	existing, err := s.client.InvestigationSession.Get(ctx, snap.ID)
	if err != nil && !ent.IsNotFound(err) {
		return fmt.Errorf("looking up session %s: %w", snap.ID, err)
	}

	if existing == nil {
		create := s.client.InvestigationSession.Create().
			SetID(snap.ID).
			SetScenario(snap.Scenario).
			SetAlertText(snap.AlertText).
			SetStatus(investigationsession.Status(snap.Status)).
			SetTurnCount(snap.TurnCount).
			SetSteps(steps).
			SetRunMeta(runMeta).
			SetCreatedAt(snap.CreatedAt).
			SetUpdatedAt(snap.UpdatedAt)
		if snap.Diagnosis != "" {
			create.SetDiagnosis(snap.Diagnosis)
		}
		if snap.ErrorDetail != "" {
			create.SetErrorDetail(snap.ErrorDetail)
		}
		if snap.ThreadID != "" {
			create.SetThreadID(snap.ThreadID)
		}
		if _, err := create.Save(ctx); err != nil {
			return fmt.Errorf("creating session %s: %w", snap.ID, err)
		}
		return nil
	}

	update := existing.Update().
		SetStatus(investigationsession.Status(snap.Status)).
		SetTurnCount(snap.TurnCount).
		SetSteps(steps).
		SetRunMeta(runMeta).
		SetUpdatedAt(snap.UpdatedAt)
	if snap.Diagnosis != "" {
		update.SetDiagnosis(snap.Diagnosis)
	}
	if snap.ErrorDetail != "" {
		update.SetErrorDetail(snap.ErrorDetail)
	} else {
		update.ClearErrorDetail()
	}
	if snap.ThreadID != "" {
		update.SetThreadID(snap.ThreadID)
	}
	if _, err := update.Save(ctx); err != nil {
		return fmt.Errorf("updating session %s: %w", snap.ID, err)
	}
	return nil
}

func (s *EntStore) GetByID(ctx context.Context, id string) (models.Snapshot, error) {
	row, err := s.client.InvestigationSession.Get(ctx, id)
	if err != nil {
		if ent.IsNotFound(err) {
			return models.Snapshot{}, ErrNotFound
		}
		return models.Snapshot{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	return rowToSnapshot(row)
}

func (s *EntStore) ListRecent(ctx context.Context, scenario string, limit int) ([]models.Snapshot, error) {
	q := s.client.InvestigationSession.Query().
		Order(ent.Desc(investigationsession.FieldCreatedAt)).
		Limit(limit)
	if scenario != "" {
		q = q.Where(investigationsession.Scenario(scenario))
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	out := make([]models.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := rowToSnapshot(row)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func rowToSnapshot(row *ent.InvestigationSession) (models.Snapshot, error) {
	steps, err := stepsFromJSON(row.Steps)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("decoding steps for %s: %w", row.ID, err)
	}

	snap := models.Snapshot{
		ID:        row.ID,
		Scenario:  row.Scenario,
		AlertText: row.AlertText,
		Status:    models.Status(row.Status),
		Steps:     steps,
		TurnCount: row.TurnCount,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.Diagnosis != nil {
		snap.Diagnosis = *row.Diagnosis
	}
	if row.ErrorDetail != nil {
		snap.ErrorDetail = *row.ErrorDetail
	}
	if row.ThreadID != nil {
		snap.ThreadID = *row.ThreadID
	}
	if row.RunMeta != nil {
		raw, err := json.Marshal(row.RunMeta)
		if err == nil {
			_ = json.Unmarshal(raw, &snap.RunMeta)
		}
	}
	return snap, nil
}

func stepsToJSON(steps []models.Step) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(steps)
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func stepsFromJSON(data []map[string]interface{}) ([]models.Step, error) {
	if data == nil {
		return []models.Step{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out []models.Step
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NoopStore discards writes and reports nothing found. Used when the service
// runs without a database.
type NoopStore struct{}

func (NoopStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error { return nil }

func (NoopStore) GetByID(ctx context.Context, id string) (models.Snapshot, error) {
	return models.Snapshot{}, ErrNotFound
}

func (NoopStore) ListRecent(ctx context.Context, scenario string, limit int) ([]models.Snapshot, error) {
	return nil, nil
}
