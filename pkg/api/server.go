// Package api exposes the investigation runtime over HTTP: session CRUD,
// scenario discovery, live SSE progress streams, and health reporting.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/probelab/inquest/pkg/config"
	"github.com/probelab/inquest/pkg/database"
	"github.com/probelab/inquest/pkg/models"
	"github.com/probelab/inquest/pkg/session"
	"github.com/probelab/inquest/pkg/throttle"
	"github.com/probelab/inquest/pkg/version"
)

// GateReporter exposes backend throttle-gate state for health reporting.
type GateReporter interface {
	GateSnapshots() []throttle.Snapshot
}

// Server wires the session registry, scenario registry, and durable store
// behind the HTTP surface.
type Server struct {
	sessions  *session.Registry
	scenarios *config.Registry
	store     database.Store
	gates     GateReporter

	// heartbeat is the SSE keep-alive interval; shortened in tests.
	heartbeat time.Duration
}

// NewServer creates the API server. gates may be nil when no backend
// factory is wired (mock-only deployments).
func NewServer(sessions *session.Registry, scenarios *config.Registry, store database.Store, gates GateReporter) *Server {
	return &Server{
		sessions:  sessions,
		scenarios: scenarios,
		store:     store,
		gates:     gates,
		heartbeat: 30 * time.Second,
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", s.health)

	v1 := r.Group("/api")
	{
		v1.GET("/scenarios", s.listScenarios)
		v1.POST("/investigations", s.createInvestigation)
		v1.GET("/investigations", s.listInvestigations)
		v1.GET("/investigations/:id", s.getInvestigation)
		v1.POST("/investigations/:id/continue", s.continueInvestigation)
		v1.DELETE("/investigations/:id", s.cancelInvestigation)
		v1.GET("/investigations/:id/stream", s.streamInvestigation)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":          "ok",
		"version":         version.Full(),
		"active_sessions": s.sessions.ActiveCount(),
	}
	if s.gates != nil {
		body["gates"] = s.gates.GateSnapshots()
	}
	c.JSON(http.StatusOK, body)
}

// scenarioSummary is the public view of one loaded scenario.
type scenarioSummary struct {
	Name             string   `json:"name"`
	DisplayName      string   `json:"display_name"`
	ExampleQuestions []string `json:"example_questions"`
}

func (s *Server) listScenarios(c *gin.Context) {
	names := s.scenarios.Names()
	out := make([]scenarioSummary, 0, len(names))
	for _, name := range names {
		m, err := s.scenarios.Get(name)
		if err != nil {
			continue
		}
		out = append(out, scenarioSummary{
			Name:             m.Name,
			DisplayName:      m.DisplayName,
			ExampleQuestions: m.ExampleQuestions,
		})
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": out})
}

// CreateInvestigationRequest is the body of POST /api/investigations.
type CreateInvestigationRequest struct {
	Scenario  string `json:"scenario" binding:"required"`
	AlertText string `json:"alert_text" binding:"required"`
}

func (s *Server) createInvestigation(c *gin.Context) {
	var req CreateInvestigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.scenarios.Get(req.Scenario); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scenario: " + req.Scenario})
		return
	}

	sess, err := s.sessions.Create(req.Scenario, req.AlertText)
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.sessions.Start(sess)

	c.JSON(http.StatusCreated, sess.Snapshot())
}

func (s *Server) listInvestigations(c *gin.Context) {
	scenario := c.Query("scenario")

	if c.Query("history") == "true" {
		limit := 50
		snaps, err := s.sessions.ListWithHistory(c.Request.Context(), scenario, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"investigations": emptyIfNil(snaps)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"investigations": emptyIfNil(s.sessions.List(scenario))})
}

func (s *Server) getInvestigation(c *gin.Context) {
	id := c.Param("id")

	snap, err := s.sessions.Get(id)
	if err == nil {
		c.JSON(http.StatusOK, snap)
		return
	}

	// Fall back to the durable store for long-evicted sessions.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	snap, err = s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "investigation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ContinueInvestigationRequest is the body of POST /api/investigations/:id/continue.
type ContinueInvestigationRequest struct {
	Message string `json:"message" binding:"required"`
}

func (s *Server) continueInvestigation(c *gin.Context) {
	var req ContinueInvestigationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.sessions.Continue(c.Param("id"), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "investigation not found"})
		case errors.Is(err, session.ErrNotContinuable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, sess.Snapshot())
}

func (s *Server) cancelInvestigation(c *gin.Context) {
	if err := s.sessions.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "investigation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func emptyIfNil(snaps []models.Snapshot) []models.Snapshot {
	if snaps == nil {
		return []models.Snapshot{}
	}
	return snaps
}
