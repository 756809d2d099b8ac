package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/abuse-guard/internal/infra/security"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// RequireOpsToken guards operational endpoints with a static bearer token.
// With no token configured the endpoints answer 404 as if they did not exist.
func RequireOpsToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, newErrorResponse(c, "not found"))
			return
		}

		scheme, presented, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			c.Header("WWW-Authenticate", `Bearer realm="ops"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		if !security.TokenMatches(strings.TrimSpace(presented), token) {
			c.Header("WWW-Authenticate", `Bearer realm="ops", error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, "invalid ops token"))
			return
		}

		c.Next()
	}
}
