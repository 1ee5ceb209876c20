package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelab/inquest/pkg/config"
	"github.com/probelab/inquest/pkg/database"
	"github.com/probelab/inquest/pkg/models"
	"github.com/probelab/inquest/pkg/session"
	"github.com/probelab/inquest/pkg/throttle"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedRunner completes every turn with one step and a diagnosis.
type scriptedRunner struct {
	hold chan struct{} // when non-nil, the turn blocks until closed
}

func (r *scriptedRunner) Run(ctx context.Context, s *models.Session, input string) <-chan models.StreamEvent {
	out := make(chan models.StreamEvent, 8)
	go func() {
		defer close(out)
		turn := s.Turn()
		out <- models.StreamEvent{Name: models.EventRunStart, Turn: turn,
			Data: models.RunStartPayload{Alert: input}}
		if r.hold != nil {
			<-r.hold
		}
		if s.ThreadID() == "" {
			_ = s.SetThreadID("th-1")
			out <- models.StreamEvent{Name: models.EventThreadCreated, Turn: turn,
				Data: models.ThreadCreatedPayload{ThreadID: "th-1"}}
		}
		s.AppendStep(models.Step{Index: s.NextStepIndex(), Agent: "GraphExplorerAgent", Turn: turn})
		s.SetDiagnosis("fibre cut")
		out <- models.StreamEvent{Name: models.EventRunComplete, Turn: turn,
			Data: models.RunCompletePayload{Steps: 1}}
	}()
	return out
}

type stubGates struct{}

func (stubGates) GateSnapshots() []throttle.Snapshot {
	return []throttle.Snapshot{{Name: "telco-backbone/graph", State: throttle.CircuitClosed}}
}

// stubStore serves one canned historical snapshot.
type stubStore struct {
	database.NoopStore
	row models.Snapshot
}

func (s stubStore) GetByID(ctx context.Context, id string) (models.Snapshot, error) {
	if id == s.row.ID {
		return s.row, nil
	}
	return models.Snapshot{}, database.ErrNotFound
}

func testScenarios() *config.Registry {
	r := config.NewRegistry()
	r.Replace(map[string]*config.ScenarioManifest{
		"telco-backbone": {
			Name:             "telco-backbone",
			DisplayName:      "Telco Backbone",
			ExampleQuestions: []string{"Why is LINK-01 down?"},
		},
	})
	return r
}

func newTestServer(t *testing.T, runner session.Runner, store database.Store) (*Server, *session.Registry) {
	t.Helper()
	if runner == nil {
		runner = &scriptedRunner{}
	}
	if store == nil {
		store = database.NoopStore{}
	}
	reg, err := session.NewRegistry(runner, store, session.Config{
		MaxActive: 2, RecentSize: 5, IdleTimeout: time.Hour,
	})
	require.NoError(t, err)
	return NewServer(reg, testScenarios(), store, stubGates{}), reg
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func waitCompleted(t *testing.T, reg *session.Registry, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := reg.Get(id)
		return err == nil && snap.Status == models.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCreateInvestigation(t *testing.T) {
	srv, reg := newTestServer(t, nil, nil)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "LINK-01 down"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "telco-backbone", snap.Scenario)
	waitCompleted(t, reg, snap.ID)
}

func TestCreateInvestigationRejectsUnknownScenario(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Routes(), http.MethodPost, "/api/investigations",
		gin.H{"scenario": "nope", "alert_text": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown scenario")
}

func TestCreateInvestigationCapacity(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	srv, _ := newTestServer(t, &scriptedRunner{hold: hold}, nil)
	engine := srv.Routes()

	for i := 0; i < 2; i++ {
		rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
			gin.H{"scenario": "telco-backbone", "alert_text": fmt.Sprintf("alert %d", i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "overflow"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetInvestigationFallsBackToStore(t *testing.T) {
	store := stubStore{row: models.Snapshot{ID: "old-1", Scenario: "telco-backbone",
		Status: models.StatusCompleted, Diagnosis: "resolved"}}
	srv, _ := newTestServer(t, nil, store)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodGet, "/api/investigations/old-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "resolved")

	rec = doJSON(t, engine, http.MethodGet, "/api/investigations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContinueInvestigation(t *testing.T) {
	srv, reg := newTestServer(t, nil, nil)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "LINK-01 down"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	waitCompleted(t, reg, snap.ID)

	rec = doJSON(t, engine, http.MethodPost, "/api/investigations/"+snap.ID+"/continue",
		gin.H{"message": "what about LINK-02?"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	waitCompleted(t, reg, snap.ID)

	rec = doJSON(t, engine, http.MethodPost, "/api/investigations/missing/continue",
		gin.H{"message": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContinueConflictsWhileRunning(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	srv, _ := newTestServer(t, &scriptedRunner{hold: hold}, nil)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "alert"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))

	rec = doJSON(t, engine, http.MethodPost, "/api/investigations/"+snap.ID+"/continue",
		gin.H{"message": "too soon"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelInvestigation(t *testing.T) {
	srv, reg := newTestServer(t, nil, nil)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "alert"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	waitCompleted(t, reg, snap.ID)

	rec = doJSON(t, engine, http.MethodDelete, "/api/investigations/"+snap.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, engine, http.MethodDelete, "/api/investigations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListScenarios(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Telco Backbone")
	assert.Contains(t, rec.Body.String(), "Why is LINK-01 down?")
}

func TestListInvestigations(t *testing.T) {
	srv, reg := newTestServer(t, nil, nil)
	engine := srv.Routes()

	rec := doJSON(t, engine, http.MethodPost, "/api/investigations",
		gin.H{"scenario": "telco-backbone", "alert_text": "alert"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	waitCompleted(t, reg, snap.ID)

	rec = doJSON(t, engine, http.MethodGet, "/api/investigations?scenario=telco-backbone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), snap.ID)

	rec = doJSON(t, engine, http.MethodGet, "/api/investigations?scenario=other", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"investigations":[]}`, rec.Body.String())
}

func TestHealthReportsGates(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telco-backbone/graph")
	assert.Contains(t, rec.Body.String(), "active_sessions")
}

// sseEvent is one parsed frame from the stream body.
type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	var cur sseEvent
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &cur.data))
		case line == "" && cur.name != "":
			out = append(out, cur)
			cur = sseEvent{}
		}
	}
	return out
}

func TestStreamReplaysFullSequence(t *testing.T) {
	srv, reg := newTestServer(t, nil, nil)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	sess, err := reg.Create("telco-backbone", "LINK-01 down")
	require.NoError(t, err)
	reg.Start(sess)
	waitCompleted(t, reg, sess.ID)

	// The run already finished; the stream still replays every event.
	resp, err := http.Get(ts.URL + "/api/investigations/" + sess.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	events := parseSSE(t, buf.String())
	require.Len(t, events, 3)
	assert.Equal(t, models.EventRunStart, events[0].name)
	assert.Equal(t, models.EventThreadCreated, events[1].name)
	assert.Equal(t, models.EventRunComplete, events[2].name)
	// Every payload carries the turn tag.
	for _, ev := range events {
		assert.Equal(t, float64(0), ev.data["turn"])
	}
}

func TestStreamEmitsHeartbeat(t *testing.T) {
	hold := make(chan struct{})
	srv, reg := newTestServer(t, &scriptedRunner{hold: hold}, nil)
	srv.heartbeat = 30 * time.Millisecond
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	sess, err := reg.Create("telco-backbone", "alert")
	require.NoError(t, err)
	reg.Start(sess)

	resp, err := http.Get(ts.URL + "/api/investigations/" + sess.ID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	sawPing := false
	deadline := time.After(2 * time.Second)
	lines := make(chan string, 64)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lines)
				return
			}
			lines <- line
		}
	}()
	for !sawPing {
		select {
		case line := <-lines:
			if strings.HasPrefix(line, ": ping") {
				sawPing = true
			}
		case <-deadline:
			t.Fatal("no heartbeat observed")
		}
	}
	close(hold)
	waitCompleted(t, reg, sess.ID)
}

func TestStreamUnknownSession(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Routes(), http.MethodGet, "/api/investigations/missing/stream", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
