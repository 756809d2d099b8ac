package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/port"
	"github.com/arklim/abuse-guard/internal/infra/config"
)

// Provider owns the metrics registry and the optional tracer for one process.
type Provider struct {
	registry *prometheus.Registry
	guard    *GuardMetrics
	tracer   *TracerProvider
}

// Attach builds the registry, guard metrics and, when enabled, the OTLP tracer.
func Attach(ctx context.Context, cfg config.TelemetrySettings, logger *zap.Logger) (*Provider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	p := &Provider{registry: registry}

	if cfg.MetricsEnabled {
		guard, err := NewGuardMetrics(registry)
		if err != nil {
			return nil, fmt.Errorf("guard metrics: %w", err)
		}
		p.guard = guard
	}

	if cfg.TracingEnabled {
		tp, err := NewTracerProvider(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		p.tracer = tp
	}

	return p, nil
}

func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// GuardMetrics returns a no-op recorder when metrics are disabled.
func (p *Provider) GuardMetrics() port.GuardMetrics {
	if p == nil || p.guard == nil {
		return port.NopGuardMetrics{}
	}
	return p.guard
}

func (p *Provider) Tracer(name string) trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tracer.Tracer(name)
}

// RegisterStats exposes the guard occupancy snapshot on the registry.
func (p *Provider) RegisterStats(c *StatsCollector) error {
	if err := p.registry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("register stats collector: %w", err)
	}
	return nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tracer == nil {
		return nil
	}
	return p.tracer.Shutdown(ctx)
}
