package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/qa"
	"github.com/timmy/recap/internal/repository"
)

// QAHandler triggers QA runs and serves the read-only audit trail.
type QAHandler struct {
	harness *qa.Harness
	runs    *repository.QaRepository
}

// NewQAHandler creates a new QA handler. A nil harness disables triggering.
// Parameters:
//   - harness: QA harness that executes runs.
//   - runs: QA run repository used for reads.
//
// Returns:
//   - *QAHandler: initialized handler.
func NewQAHandler(harness *qa.Harness, runs *repository.QaRepository) *QAHandler {
	return &QAHandler{harness: harness, runs: runs}
}

// StartRunRequest is the body of POST /api/v1/qa/runs.
type StartRunRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// Create handles POST /api/v1/qa/runs. The run executes synchronously.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QAHandler) Create(c *gin.Context) {
	if h.harness == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "QA harness is not enabled",
		})
		return
	}
	var req StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	kind := domain.QaRunKind(strings.ToUpper(req.Kind))
	if kind != domain.QaRunSmoke && kind != domain.QaRunFull {
		badRequest(c, "kind must be SMOKE or FULL")
		return
	}

	run, checks, err := h.harness.Run(c.Request.Context(), kind)
	if err != nil {
		respondError(c, "QA run failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"run":    run,
		"checks": checks,
	})
}

// List handles GET /api/v1/qa/runs?kind=SMOKE&limit=20.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QAHandler) List(c *gin.Context) {
	kind := domain.QaRunKind(strings.ToUpper(c.Query("kind")))
	runs, err := h.runs.ListRuns(c.Request.Context(), kind, queryInt(c, "limit", 20, 200))
	if err != nil {
		respondError(c, "Failed to list QA runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Get handles GET /api/v1/qa/runs/:run_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QAHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	run, err := h.runs.GetRun(ctx, c.Param("run_id"))
	if err != nil {
		respondError(c, "QA run not found", err)
		return
	}
	checks, err := h.runs.ListChecks(ctx, run.RunID)
	if err != nil {
		respondError(c, "Failed to load QA checks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":    run,
		"checks": checks,
	})
}
