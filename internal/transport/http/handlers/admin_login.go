package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/transport/http/middleware"
	"github.com/arklim/abuse-guard/internal/usecase"
)

// AdminAuthenticator verifies admin credentials for a client identifier.
type AdminAuthenticator interface {
	Login(ctx context.Context, identifier, username, password string) (domain.BackoffResult, error)
}

// AdminHandler exposes the administrator login endpoint.
type AdminHandler struct {
	auth AdminAuthenticator
}

func NewAdminHandler(auth AdminAuthenticator) *AdminHandler {
	return &AdminHandler{auth: auth}
}

// RegisterRoutes binds /login behind the provided middleware, normally the adminLogin guard.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup, loginMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	r.POST("/login", append(chain, h.login)...)
}

func (h *AdminHandler) login(c *gin.Context) {
	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	identifier := middleware.GetIdentity(c)
	result, err := h.auth.Login(c.Request.Context(), identifier, strings.TrimSpace(req.Username), req.Password)
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, LoginFailureResponse{
			Error:    "invalid credentials",
			Attempts: result.Attempts,
			Locked:   result.Locked,
			TraceID:  middleware.GetTraceID(c),
		})
	case errors.Is(err, usecase.ErrLoginLocked):
		c.JSON(http.StatusTooManyRequests, LoginFailureResponse{
			Error:    "too many failed login attempts",
			Attempts: result.Attempts,
			Locked:   true,
			TraceID:  middleware.GetTraceID(c),
		})
	default:
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrLoginDisabled, Status: http.StatusNotFound, Message: "admin login is not configured"},
			{Err: context.Canceled, Status: http.StatusRequestTimeout, Message: "request cancelled"},
			{Err: context.DeadlineExceeded, Status: http.StatusRequestTimeout, Message: "request timed out"},
		}, http.StatusInternalServerError, "login failed")
	}
}
