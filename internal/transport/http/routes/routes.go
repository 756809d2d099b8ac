package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/infra/config"
	"github.com/arklim/abuse-guard/internal/transport/http/handlers"
	"github.com/arklim/abuse-guard/internal/transport/http/middleware"
	"github.com/arklim/abuse-guard/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Guard       *usecase.Guard
	AdminLogin  *usecase.AdminLoginService
	HTTPMetrics *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Tracer      trace.Tracer
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config == nil {
		deps.Config = &config.AppConfig{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))
	r.Use(deps.HTTPMetrics.Handler())
	r.Use(middleware.Logger(deps.Logger))

	handlers.NewHealthHandler().RegisterRoutes(r)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	} else {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api/v1")

	if deps.AdminLogin != nil {
		adminHandler := handlers.NewAdminHandler(deps.AdminLogin)
		adminHandler.RegisterRoutes(api.Group("/admin"), guardMiddlewares(deps, domain.PolicyAdminLogin)...)
	}

	if deps.Guard != nil {
		ops := api.Group("/ops/limiter")
		ops.Use(middleware.RequireOpsToken(deps.Config.Admin.OpsToken))
		handlers.NewLimiterOpsHandler(deps.Guard, deps.Logger).RegisterRoutes(ops)
	}

	return r
}

func guardMiddlewares(deps Dependencies, policy domain.PolicyName) []gin.HandlerFunc {
	if deps.Guard == nil {
		return nil
	}
	return []gin.HandlerFunc{
		middleware.Guard(deps.Guard, policy,
			middleware.WithBlockOnAbuse(deps.Config.Limiter.BlockOnAbuse),
			middleware.WithGuardLogger(deps.Logger),
			middleware.WithTracer(deps.Tracer),
		),
	}
}
