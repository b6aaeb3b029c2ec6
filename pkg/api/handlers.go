package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quorumlabs/quorum/pkg/database"
	"github.com/quorumlabs/quorum/pkg/models"
	"github.com/quorumlabs/quorum/pkg/services"
	"github.com/quorumlabs/quorum/pkg/store"
)

// createFullReview handles POST /v1/full-review.
func (s *Server) createFullReview(c *gin.Context) {
	var req services.InitialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	enqueued, err := s.enqueue.EnqueueInitial(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, enqueued)
}

// createRevision handles POST /v1/runs/:run_id/revisions.
func (s *Server) createRevision(c *gin.Context) {
	parentID, ok := parseRunID(c, "run_id")
	if !ok {
		return
	}

	var req services.RevisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	enqueued, err := s.enqueue.EnqueueRevision(c.Request.Context(), parentID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, enqueued)
}

// getRun handles GET /v1/runs/:run_id.
func (s *Server) getRun(c *gin.Context) {
	runID, ok := parseRunID(c, "run_id")
	if !ok {
		return
	}

	detail, err := s.runs.GetRunDetail(c.Request.Context(), runID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// listRuns handles GET /v1/runs.
func (s *Server) listRuns(c *gin.Context) {
	filter := store.RunFilter{Limit: 100}

	if v := c.Query("status"); v != "" {
		filter.Status = models.RunStatus(v)
	}
	if v := c.Query("run_type"); v != "" {
		filter.RunType = models.RunType(v)
	}
	if v := c.Query("decision"); v != "" {
		filter.Decision = models.DecisionLabel(v)
	}
	if v := c.Query("parent_run_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(c, "invalid parent_run_id")
			return
		}
		filter.ParentRunID = &id
	}
	if v := c.Query("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			badRequest(c, "min_confidence must be a number in [0, 1]")
			return
		}
		filter.MinConfidence = &f
	}
	if v := c.Query("created_after"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "created_after must be RFC3339")
			return
		}
		filter.CreatedAfter = &t
	}
	if v := c.Query("created_before"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, "created_before must be RFC3339")
			return
		}
		filter.CreatedBefore = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			badRequest(c, "limit must be an integer in [1, 100]")
			return
		}
		filter.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		filter.Offset = n
	}

	list, err := s.runs.ListRuns(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// diffRuns handles GET /v1/runs/:run_id/diff/:other_run_id.
func (s *Server) diffRuns(c *gin.Context) {
	runID, ok := parseRunID(c, "run_id")
	if !ok {
		return
	}
	otherID, ok := parseRunID(c, "other_run_id")
	if !ok {
		return
	}

	diff, err := s.runs.DiffRuns(c.Request.Context(), runID, otherID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, diff)
}

// health handles GET /health: DB reachability, broker connection state, and
// config sanity.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth := database.Health(ctx, s.db)
	brokerUp := s.broker.Connected()

	status := http.StatusOK
	overall := "healthy"
	if !dbHealth.Reachable || !brokerUp {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"database": dbHealth,
		"broker":   gin.H{"connected": brokerUp},
		"config": gin.H{
			"persona_weights_valid": models.ValidatePersonaWeights() == nil,
		},
	})
}

func parseRunID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		badRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
