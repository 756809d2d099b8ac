package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/infra/config"
	"github.com/arklim/abuse-guard/internal/infra/logger"
	"github.com/arklim/abuse-guard/internal/infra/memory"
	"github.com/arklim/abuse-guard/internal/infra/security"
	"github.com/arklim/abuse-guard/internal/infra/telemetry"
	"github.com/arklim/abuse-guard/internal/transport/http/middleware"
	"github.com/arklim/abuse-guard/internal/transport/http/routes"
	"github.com/arklim/abuse-guard/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	telemetry *telemetry.Provider
	janitor   *memory.Janitor
}

// GuardConfig maps limiter settings onto the guard's store bounds.
func GuardConfig(cfg config.LimiterSettings) usecase.GuardConfig {
	return usecase.GuardConfig{
		WindowCapacity: cfg.WindowCapacity,
		Backoff: usecase.BackoffConfig{
			Capacity:  cfg.FailureCapacity,
			BaseDelay: cfg.BackoffBase,
			MaxDelay:  cfg.BackoffMax,
			TTL:       cfg.FailureTTL,
		},
		Activity: usecase.ActivityConfig{
			Capacity:            cfg.ActivityCapacity,
			TTL:                 cfg.ActivityTTL,
			History:             cfg.PatternHistory,
			SuspiciousThreshold: cfg.SuspiciousThreshold,
			BlockThreshold:      cfg.BlockThreshold,
		},
	}
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := security.ConfigureArgon2(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}

	tel, err := telemetry.Attach(ctx, cfg.Telemetry, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	guard, err := usecase.NewGuard(GuardConfig(cfg.Limiter), nil, log)
	if err != nil {
		return nil, fmt.Errorf("init guard: %w", err)
	}
	guard.WithMetrics(tel.GuardMetrics())

	if cfg.Telemetry.MetricsEnabled {
		if err := tel.RegisterStats(telemetry.NewStatsCollector(guard.Stats)); err != nil {
			return nil, fmt.Errorf("init guard stats: %w", err)
		}
	}

	var adminLogin *usecase.AdminLoginService
	if cfg.Admin.PasswordHash != "" {
		adminLogin = usecase.NewAdminLoginService(guard, usecase.AdminCredentials{
			Username:     cfg.Admin.Username,
			PasswordHash: cfg.Admin.PasswordHash,
		}, log).WithEnforceLockout(cfg.Limiter.EnforceLockout)
	} else {
		log.Warn("admin password hash not configured, admin login disabled")
	}

	if cfg.Admin.OpsToken == "" {
		log.Info("ops token not configured, limiter ops endpoints disabled")
	}

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: tel.Registry()})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Guard:       guard,
		AdminLogin:  adminLogin,
		HTTPMetrics: httpMetrics,
		Gatherer:    tel.Registry(),
		Tracer:      tel.Tracer("github.com/arklim/abuse-guard"),
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		telemetry: tel,
		janitor:   memory.NewJanitor(cfg.Limiter.JanitorInterval, log, guard.Sweepers()...),
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if err := a.telemetry.Shutdown(context.Background()); err != nil {
			a.logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go a.janitor.Run(janitorCtx)

	// Failed admin logins are held for up to backoff_max before answering.
	writeTimeout := a.cfg.Limiter.BackoffMax + 30*time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting abuse guard API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
