package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/infra/logger"
	"github.com/arklim/abuse-guard/internal/transport/http/middleware"
)

// LimiterAdmin is the operational surface of the guard.
type LimiterAdmin interface {
	Stats() domain.Stats
	ClearAll()
}

// LimiterOpsHandler exposes guard introspection and reset for operators.
type LimiterOpsHandler struct {
	guard  LimiterAdmin
	logger *zap.Logger
	now    func() time.Time
}

func NewLimiterOpsHandler(guard LimiterAdmin, log *zap.Logger) *LimiterOpsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &LimiterOpsHandler{guard: guard, logger: log, now: time.Now}
}

func (h *LimiterOpsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stats", h.stats)
	r.POST("/reset", h.reset)
}

func (h *LimiterOpsHandler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, LimiterStatsResponse{
		Stats:       h.guard.Stats(),
		GeneratedAt: h.now().UTC(),
	})
}

func (h *LimiterOpsHandler) reset(c *gin.Context) {
	h.guard.ClearAll()
	h.logger.Warn("limiter state reset by operator",
		zap.String("client_ip", logger.MaskIP(middleware.GetIdentity(c))),
		zap.String("trace_id", middleware.GetTraceID(c)),
	)
	c.Status(http.StatusNoContent)
}
