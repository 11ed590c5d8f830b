package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
)

// DeliveryHandler handles delivery artifact endpoints.
type DeliveryHandler struct {
	deliveries  *repository.DeliveryRepository
	checkpoints *repository.CheckpointRepository
	gate        *service.QualityGate
	retry       *service.RetryCoordinator
	sender      *service.DeliveryService
}

// NewDeliveryHandler creates a new delivery handler.
// Parameters:
//   - repos: repository set.
//   - gate: quality gate used by Evaluate.
//   - retry: retry coordinator used by Retry.
//   - sender: delivery service used by Send.
//
// Returns:
//   - *DeliveryHandler: initialized handler.
func NewDeliveryHandler(
	repos *repository.Repositories,
	gate *service.QualityGate,
	retry *service.RetryCoordinator,
	sender *service.DeliveryService,
) *DeliveryHandler {
	return &DeliveryHandler{
		deliveries:  repos.Deliveries,
		checkpoints: repos.Checkpoints,
		gate:        gate,
		retry:       retry,
		sender:      sender,
	}
}

// SendRequest is the optional body of POST /api/v1/deliveries/:id/send.
type SendRequest struct {
	Force bool `json:"force"`
}

// Get handles GET /api/v1/deliveries/:id, including its latest checkpoints.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DeliveryHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	artifact, err := h.deliveries.GetByID(ctx, c.Param("id"))
	if err != nil {
		respondError(c, "Delivery not found", err)
		return
	}
	checkpoints, err := h.checkpoints.GetByIDs(ctx, artifact.CheckpointIDs)
	if err != nil {
		respondError(c, "Failed to load checkpoints", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"delivery":    artifact,
		"checkpoints": checkpoints,
	})
}

// Evaluate handles POST /api/v1/deliveries/:id/evaluate.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DeliveryHandler) Evaluate(c *gin.Context) {
	eval, err := h.gate.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Evaluation failed", err)
		return
	}
	c.JSON(http.StatusOK, eval)
}

// Retry handles POST /api/v1/deliveries/:id/retry.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DeliveryHandler) Retry(c *gin.Context) {
	res, err := h.retry.Retry(c.Request.Context(), c.Param("id"))
	if err != nil && res == nil {
		respondError(c, "Retry rejected", err)
		return
	}
	resp := ExecuteResponse{ExecuteResult: res, Progress: res.Run.Progress()}
	if err != nil {
		_ = c.Error(err)
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Send handles POST /api/v1/deliveries/:id/send.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DeliveryHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	res, err := h.sender.Send(c.Request.Context(), c.Param("id"), req.Force)
	if err != nil {
		respondError(c, "Send failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
