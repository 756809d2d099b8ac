package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// AdminLoginRequest defines the payload for the admin login endpoint.
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginFailureResponse reports the backoff state after a rejected login.
type LoginFailureResponse struct {
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
	Locked   bool   `json:"locked"`
	TraceID  string `json:"trace_id,omitempty"`
}

// LimiterStatsResponse wraps the guard snapshot with the time it was taken.
type LimiterStatsResponse struct {
	domain.Stats
	GeneratedAt time.Time `json:"generated_at"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}
