package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
)

// MeetingHandler handles meeting endpoints and pipeline execution.
type MeetingHandler struct {
	meetings   *repository.MeetingRepository
	runs       *repository.RunRepository
	deliveries *repository.DeliveryRepository
	executor   service.Executor
}

// NewMeetingHandler creates a new meeting handler.
// Parameters:
//   - repos: repository set.
//   - executor: pipeline executor used by Execute.
//
// Returns:
//   - *MeetingHandler: initialized handler.
func NewMeetingHandler(repos *repository.Repositories, executor service.Executor) *MeetingHandler {
	return &MeetingHandler{
		meetings:   repos.Meetings,
		runs:       repos.Runs,
		deliveries: repos.Deliveries,
		executor:   executor,
	}
}

// CreateMeetingRequest is the body of POST /api/v1/meetings.
type CreateMeetingRequest struct {
	ID           string   `json:"id"`
	Title        string   `json:"title" binding:"required"`
	Transcript   string   `json:"transcript"`
	AudioKey     string   `json:"audio_key"`
	AudioFormat  string   `json:"audio_format"`
	Participants []string `json:"participants"`
}

// ExecuteResponse wraps a pipeline result with its progress map.
type ExecuteResponse struct {
	*service.ExecuteResult
	Progress map[string]domain.StepStatus `json:"progress"`
	Error    string                       `json:"error,omitempty"`
}

// Create handles POST /api/v1/meetings.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) Create(c *gin.Context) {
	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Transcript) == "" && req.AudioKey == "" {
		badRequest(c, "Either transcript or audio_key is required")
		return
	}

	meeting := &domain.Meeting{
		ID:           req.ID,
		Title:        req.Title,
		Transcript:   req.Transcript,
		AudioKey:     req.AudioKey,
		AudioFormat:  req.AudioFormat,
		Participants: req.Participants,
	}
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if err := h.meetings.Create(c.Request.Context(), meeting); err != nil {
		respondError(c, "Failed to create meeting", err)
		return
	}
	c.JSON(http.StatusCreated, meeting)
}

// List handles GET /api/v1/meetings.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) List(c *gin.Context) {
	limit := queryInt(c, "limit", 20, 100)
	offset := queryInt(c, "offset", 0, 0)
	meetings, err := h.meetings.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, "Failed to list meetings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meetings": meetings,
		"limit":    limit,
		"offset":   offset,
	})
}

// Get handles GET /api/v1/meetings/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) Get(c *gin.Context) {
	meeting, err := h.meetings.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Meeting not found", err)
		return
	}
	c.JSON(http.StatusOK, meeting)
}

// Execute handles POST /api/v1/meetings/:id/execute.
// A run that fails inside the pipeline still answers 200 with the run
// record, so the caller can render which step failed.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) Execute(c *gin.Context) {
	res, err := h.executor.Execute(c.Request.Context(), c.Param("id"), service.ExecuteOptions{
		Trigger: domain.TriggerAPI,
	})
	if res == nil {
		respondError(c, "Failed to execute pipeline", err)
		return
	}
	resp := ExecuteResponse{ExecuteResult: res, Progress: res.Run.Progress()}
	if err != nil {
		_ = c.Error(err)
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/v1/meetings/:id/runs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) ListRuns(c *gin.Context) {
	runs, err := h.runs.ListBySubject(c.Request.Context(), c.Param("id"), queryInt(c, "limit", 20, 100))
	if err != nil {
		respondError(c, "Failed to list runs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// ListDeliveries handles GET /api/v1/meetings/:id/deliveries, newest version first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MeetingHandler) ListDeliveries(c *gin.Context) {
	artifacts, err := h.deliveries.ListBySubject(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to list deliveries", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deliveries": artifacts})
}
