package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/core/port"
	"github.com/arklim/abuse-guard/internal/infra/memory"
)

// GuardConfig bounds every store owned by the guard.
type GuardConfig struct {
	WindowCapacity int
	Backoff        BackoffConfig
	Activity       ActivityConfig
}

// DefaultGuardConfig returns the production bounds.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		WindowCapacity: 10000,
		Backoff:        DefaultBackoffConfig(),
		Activity:       DefaultActivityConfig(),
	}
}

// Guard bundles the limiter, the backoff tracker and the activity accumulator.
// It is built once per process and injected into request handlers; its state is
// process-local, so every instance of a horizontally scaled deployment enforces
// its own independent quota.
type Guard struct {
	limiter  *SlidingWindowLimiter
	backoff  *BackoffTracker
	activity *ActivityTracker
	logger   *zap.Logger
}

// NewGuard builds a guard backed by bounded in-memory stores.
func NewGuard(cfg GuardConfig, policies *domain.PolicyTable, log *zap.Logger) (*Guard, error) {
	if policies == nil {
		policies = domain.DefaultPolicyTable()
	}
	if log == nil {
		log = zap.NewNop()
	}

	limiter, err := NewSlidingWindowLimiter(policies, memory.WindowStoreFactory(cfg.WindowCapacity), log)
	if err != nil {
		return nil, fmt.Errorf("init limiter: %w", err)
	}

	backoff, err := NewBackoffTracker(cfg.Backoff, policies, log)
	if err != nil {
		return nil, fmt.Errorf("init backoff tracker: %w", err)
	}

	activity, err := NewActivityTracker(cfg.Activity, log)
	if err != nil {
		return nil, fmt.Errorf("init activity tracker: %w", err)
	}

	return &Guard{
		limiter:  limiter,
		backoff:  backoff,
		activity: activity,
		logger:   log,
	}, nil
}

// WithClock injects the same clock into every component (primarily for testing).
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.limiter.WithClock(now)
	g.backoff.WithClock(now)
	g.activity.WithClock(now)
	return g
}

// WithMetrics attaches a metrics sink to every component.
func (g *Guard) WithMetrics(m port.GuardMetrics) *Guard {
	g.limiter.WithMetrics(m)
	g.backoff.WithMetrics(m)
	g.activity.WithMetrics(m)
	return g
}

// Check evaluates and, when allowed, records one event for identifier under policy.
func (g *Guard) Check(identifier string, policy domain.PolicyName) domain.Decision {
	return g.limiter.Check(identifier, policy)
}

// RecordFailure records an authentication failure for identifier.
func (g *Guard) RecordFailure(identifier string) domain.BackoffResult {
	return g.backoff.RecordFailure(identifier)
}

// ResetFailures clears the failure count after a successful authentication.
func (g *Guard) ResetFailures(identifier string) {
	g.backoff.ResetFailures(identifier)
}

// IsLocked reports whether identifier reached the failure threshold.
func (g *Guard) IsLocked(identifier string) bool {
	return g.backoff.IsLocked(identifier)
}

// FailureCount returns the recorded failures for identifier.
func (g *Guard) FailureCount(identifier string) int {
	return g.backoff.FailureCount(identifier)
}

// RecordPattern records an anomaly pattern for identifier.
func (g *Guard) RecordPattern(identifier, pattern string) domain.ActivityResult {
	return g.activity.RecordPattern(identifier, pattern)
}

// ShouldBlock reports whether identifier already crossed the activity block threshold.
func (g *Guard) ShouldBlock(identifier string) bool {
	return g.activity.ShouldBlock(identifier)
}

// Activity returns the accumulated anomaly record for identifier.
func (g *Guard) Activity(identifier string) (domain.ActivityRecord, bool) {
	return g.activity.Lookup(identifier)
}

// WaitBackoff suspends the calling request for delay. Only the caller's goroutine waits;
// it returns ctx.Err() if the request is cancelled first.
func (g *Guard) WaitBackoff(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClearAll empties every store. Intended for operations and tests.
func (g *Guard) ClearAll() {
	g.limiter.Purge()
	g.backoff.Store().Purge()
	g.activity.Store().Purge()
	g.logger.Info("guard state cleared")
}

// Stats returns a snapshot of store occupancy.
func (g *Guard) Stats() domain.Stats {
	return domain.Stats{
		PerPolicy:       g.limiter.StoreStats(),
		FailureCount:    g.backoff.Store().Len(),
		SuspiciousCount: g.activity.Store().Len(),
	}
}

// LockThreshold returns the failure count at which identifiers are reported locked.
func (g *Guard) LockThreshold() int {
	return g.backoff.Threshold()
}

// Sweepers returns every store so a janitor can drop expired entries.
func (g *Guard) Sweepers() []memory.Sweeper {
	sweepers := []memory.Sweeper{g.backoff.Store(), g.activity.Store()}
	for _, s := range g.limiter.Stores() {
		if sw, ok := s.(memory.Sweeper); ok {
			sweepers = append(sweepers, sw)
		}
	}
	return sweepers
}
