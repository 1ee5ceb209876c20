package database

import (
	"context"
	stdsql "database/sql"
	"os"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/probelab/inquest/ent"
	"github.com/probelab/inquest/pkg/models"
)

// newTestClient creates a test database client with CI/local detection.
// In CI (when CI_DATABASE_URL is set): connects to an external PostgreSQL.
// In local dev: spins up a testcontainer.
func newTestClient(t *testing.T) *Client {
	ctx := context.Background()

	connStr := os.Getenv("CI_DATABASE_URL")
	if connStr == "" {
		t.Log("Using testcontainers for PostgreSQL")
		pgContainer, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)

		t.Cleanup(func() {
			if err := testcontainers.TerminateContainer(pgContainer); err != nil {
				t.Logf("failed to terminate container: %v", err)
			}
		})

		connStr, err = pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	drv := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(drv))

	// Auto-migration for tests; production uses the embedded SQL migrations.
	require.NoError(t, entClient.Schema.Create(ctx))
	require.NoError(t, CreateGINIndexes(ctx, drv))

	client := NewClientFromEnt(entClient, db)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleSnapshot(id string) models.Snapshot {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Snapshot{
		ID:        id,
		Scenario:  "telco-backbone",
		AlertText: "LINK-SYD-MEL-FIBRE-01 down",
		Status:    models.StatusCompleted,
		ThreadID:  "th-1",
		Steps: []models.Step{
			{Index: 1, Agent: "GraphExplorerAgent", Duration: "2.0s",
				Query: "MATCH (l:Link) RETURN l", Response: "LINK-01 down", Turn: 0},
			{Index: 2, Agent: "TelemetryAgent", Duration: "1.5s",
				Query: "LinkErrors | take 10", Response: "error spike", Turn: 0},
		},
		Diagnosis: "Fibre cut between SYD and MEL",
		RunMeta:   models.RunMeta{Steps: 2, Tokens: 900, Elapsed: "14.2s"},
		TurnCount: 0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	client := newTestClient(t)
	store := NewEntStore(client)
	ctx := context.Background()

	snap := sampleSnapshot("s-1")
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Scenario, got.Scenario)
	assert.Equal(t, snap.AlertText, got.AlertText)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, snap.Diagnosis, got.Diagnosis)
	assert.Equal(t, "th-1", got.ThreadID)
	assert.Equal(t, snap.RunMeta, got.RunMeta)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, snap.Steps[0], got.Steps[0])

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpsertOverwrites(t *testing.T) {
	client := newTestClient(t)
	store := NewEntStore(client)
	ctx := context.Background()

	snap := sampleSnapshot("s-1")
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	// A later turn adds steps and bumps the turn counter.
	snap.TurnCount = 1
	snap.Steps = append(snap.Steps, models.Step{Index: 3, Agent: "GraphExplorerAgent",
		Duration: "1.0s", Query: "q", Response: "r", Turn: 1})
	snap.RunMeta.Steps = 3
	snap.UpdatedAt = snap.UpdatedAt.Add(time.Minute)
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.GetByID(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount)
	assert.Len(t, got.Steps, 3)
	assert.Equal(t, 3, got.RunMeta.Steps)
}

func TestStoreListRecent(t *testing.T) {
	client := newTestClient(t)
	store := NewEntStore(client)
	ctx := context.Background()

	for i, id := range []string{"s-1", "s-2", "s-3"} {
		snap := sampleSnapshot(id)
		snap.CreatedAt = snap.CreatedAt.Add(time.Duration(i) * time.Minute)
		if id == "s-3" {
			snap.Scenario = "cloud-ops"
		}
		require.NoError(t, store.SaveSnapshot(ctx, snap))
	}

	// Newest first, filtered by scenario.
	got, err := store.ListRecent(ctx, "telco-backbone", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s-2", got[0].ID)
	assert.Equal(t, "s-1", got[1].ID)

	all, err := store.ListRecent(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDiagnosisFullTextSearch(t *testing.T) {
	client := newTestClient(t)
	store := NewEntStore(client)
	ctx := context.Background()

	snap := sampleSnapshot("s-1")
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	rows, err := client.DB().QueryContext(ctx,
		`SELECT session_id FROM investigation_sessions
		WHERE to_tsvector('english', COALESCE(diagnosis, '')) @@ to_tsquery('english', $1)`,
		"fibre & cut",
	)
	require.NoError(t, err)
	defer rows.Close()

	var results []string
	for rows.Next() {
		var id string
		require.NoError(t, rows.Scan(&id))
		results = append(results, id)
	}
	assert.Equal(t, []string{"s-1"}, results)
}

func TestNoopStore(t *testing.T) {
	store := NoopStore{}
	ctx := context.Background()
	assert.NoError(t, store.SaveSnapshot(ctx, sampleSnapshot("x")))
	_, err := store.GetByID(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := store.ListRecent(ctx, "", 10)
	assert.NoError(t, err)
	assert.Empty(t, list)
}
