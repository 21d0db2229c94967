// Package api is the ambient HTTP ingestion surface of spec.md §6: three
// endpoints (submit, status, revoke) that call straight into the
// Scheduler and State Store. Explicitly out of core per spec.md §1/§6 —
// no business logic lives here. Grounded in the teacher's gin usage
// (its own internal/api, deleted from this tree after grounding since its
// route shapes don't carry over — see DESIGN.md).
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/scheduler"
	"github.com/khaosresearch/dramax/internal/state"
)

// Server wires the three endpoint handlers onto a gin.Engine.
type Server struct {
	scheduler *scheduler.Scheduler
	store     *state.Store
	basePath  string
}

func New(sched *scheduler.Scheduler, store *state.Store, basePath string) *Server {
	return &Server{scheduler: sched, store: store, basePath: basePath}
}

// Register mounts the three endpoints under basePath, e.g.
// "/api/v2/workflow/run", "/api/v2/workflow/status", "/api/v2/workflow/revoke".
func (s *Server) Register(r *gin.Engine) {
	group := r.Group(s.basePath + "/workflow")
	group.POST("/run", s.handleRun)
	group.GET("/status", s.handleStatus)
	group.POST("/revoke", s.handleRevoke)
}

func (s *Server) handleRun(c *gin.Context) {
	var wf model.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.scheduler.Submit(c.Request.Context(), wf)
	if err != nil {
		var invalid *dramaxerr.InvalidWorkflow
		var missing *dramaxerr.MissingTasks
		if errors.As(err, &invalid) || errors.As(err, &missing) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": rec.ID})
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id query parameter"})
		return
	}

	rec, err := s.store.Workflows.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// handleRevoke revokes a single workflow by id, or every workflow carrying
// the given label, whatever its status (SUPPLEMENTED feature, see
// SPEC_FULL.md: the original manager's bulk revoke-by-label operation).
func (s *Server) handleRevoke(c *gin.Context) {
	if label := c.Query("label"); label != "" {
		ids, err := s.store.Workflows.RevokeByLabel(c.Request.Context(), label)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"revoked": ids})
		return
	}

	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing id or label query parameter"})
		return
	}

	rec, err := s.store.Workflows.Revoke(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}

	c.JSON(http.StatusOK, rec)
}
