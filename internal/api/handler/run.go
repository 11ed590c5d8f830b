package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/recap/internal/repository"
)

// RunHandler exposes pipeline run records.
type RunHandler struct {
	runs *repository.RunRepository
}

// NewRunHandler creates a new run handler.
// Parameters:
//   - runs: pipeline run repository.
//
// Returns:
//   - *RunHandler: initialized handler.
func NewRunHandler(runs *repository.RunRepository) *RunHandler {
	return &RunHandler{runs: runs}
}

// Get handles GET /api/v1/runs/:id and adds the step progress map.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Run not found", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run":      run,
		"progress": run.Progress(),
	})
}
