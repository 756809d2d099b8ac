package usecase

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/core/port"
	"github.com/arklim/abuse-guard/internal/infra/logger"
	"github.com/arklim/abuse-guard/internal/infra/memory"
)

// BackoffConfig tunes the progressive backoff tracker.
type BackoffConfig struct {
	Capacity  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	TTL       time.Duration
}

// DefaultBackoffConfig returns 1s doubling delays capped at 60s, forgotten after an hour.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Capacity:  10000,
		BaseDelay: time.Second,
		MaxDelay:  time.Minute,
		TTL:       time.Hour,
	}
}

// BackoffTracker counts authentication failures per identifier and derives an
// exponentially growing delay. It reports a lock signal but never rejects anything itself.
type BackoffTracker struct {
	cfg       BackoffConfig
	threshold int
	failures  *memory.Store[int]
	locks     keyLocks
	metrics   port.GuardMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewBackoffTracker builds a tracker whose lock threshold is the adminLogin quota.
func NewBackoffTracker(cfg BackoffConfig, policies *domain.PolicyTable, log *zap.Logger) (*BackoffTracker, error) {
	admin, ok := policies.Lookup(domain.PolicyAdminLogin)
	if !ok {
		return nil, fmt.Errorf("policy %s is required for lockout threshold", domain.PolicyAdminLogin)
	}
	if cfg.BaseDelay <= 0 || cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("invalid backoff delays: base=%s max=%s", cfg.BaseDelay, cfg.MaxDelay)
	}

	store, err := memory.NewStore[int](cfg.Capacity, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("create failure store: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &BackoffTracker{
		cfg:       cfg,
		threshold: admin.MaxEvents,
		failures:  store,
		metrics:   port.NopGuardMetrics{},
		logger:    log,
		now:       time.Now,
	}, nil
}

// WithClock allows injection of a custom clock (primarily for testing).
func (b *BackoffTracker) WithClock(now func() time.Time) *BackoffTracker {
	if now != nil {
		b.now = now
	}
	return b
}

// WithMetrics attaches a metrics sink.
func (b *BackoffTracker) WithMetrics(m port.GuardMetrics) *BackoffTracker {
	if m != nil {
		b.metrics = m
	}
	return b
}

// RecordFailure increments the failure count for identifier.
func (b *BackoffTracker) RecordFailure(identifier string) domain.BackoffResult {
	unlock := b.locks.lock(identifier)
	defer unlock()

	now := b.now()
	attempts, _ := b.failures.Get(identifier, now)
	attempts++
	b.failures.Put(identifier, attempts, now)

	result := domain.BackoffResult{
		Attempts: attempts,
		Delay:    backoffDelay(attempts, b.cfg.BaseDelay, b.cfg.MaxDelay),
		Locked:   attempts >= b.threshold,
	}

	if attempts == b.threshold {
		b.logger.Warn("authentication lock threshold reached",
			zap.String("identifier", logger.MaskIP(identifier)),
			zap.Int("attempts", attempts),
		)
	}
	b.metrics.ObserveFailure(result.Locked)

	return result
}

// ResetFailures forgets every failure recorded for identifier.
func (b *BackoffTracker) ResetFailures(identifier string) {
	unlock := b.locks.lock(identifier)
	defer unlock()

	b.failures.Delete(identifier)
}

// FailureCount returns the current failure count for identifier.
func (b *BackoffTracker) FailureCount(identifier string) int {
	count, _ := b.failures.Get(identifier, b.now())
	return count
}

// IsLocked reports whether identifier reached the lock threshold.
func (b *BackoffTracker) IsLocked(identifier string) bool {
	return b.FailureCount(identifier) >= b.threshold
}

// Threshold returns the failure count at which an identifier is reported locked.
func (b *BackoffTracker) Threshold() int {
	return b.threshold
}

// Store exposes the failure store.
func (b *BackoffTracker) Store() *memory.Store[int] {
	return b.failures
}

// backoffDelay returns base*2^(attempts-1) capped at max.
func backoffDelay(attempts int, base, max time.Duration) time.Duration {
	if attempts <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempts; i++ {
		if delay > max/2 {
			return max
		}
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
