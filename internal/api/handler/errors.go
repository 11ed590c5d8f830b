package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/repository"
	"github.com/timmy/recap/internal/service"
	"gorm.io/gorm"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSubjectBusy),
		errors.Is(err, service.ErrAlreadyDelivered),
		errors.Is(err, service.ErrRetryExhausted),
		errors.Is(err, repository.ErrRunFinalized),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrRetryTooSoon):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrNotReady):
		return http.StatusPreconditionFailed
	case errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, repository.ErrUnknownField):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, action string, err error) {
	_ = c.Error(err)
	c.JSON(statusFor(err), gin.H{
		"error": action + ": " + err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": msg,
	})
}

// queryInt reads a non-negative integer query parameter capped at max.
func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}
