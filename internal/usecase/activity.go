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

// ActivityConfig tunes the suspicious activity accumulator.
type ActivityConfig struct {
	Capacity            int
	TTL                 time.Duration
	History             int
	SuspiciousThreshold int
	BlockThreshold      int
}

// DefaultActivityConfig flags identifiers above 10 events and recommends blocking above 50.
func DefaultActivityConfig() ActivityConfig {
	return ActivityConfig{
		Capacity:            10000,
		TTL:                 24 * time.Hour,
		History:             10,
		SuspiciousThreshold: 10,
		BlockThreshold:      50,
	}
}

// ActivityTracker accumulates anomaly patterns per identifier. Its signals are advisory.
type ActivityTracker struct {
	cfg     ActivityConfig
	records *memory.Store[domain.ActivityRecord]
	locks   keyLocks
	metrics port.GuardMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewActivityTracker builds an accumulator from cfg.
func NewActivityTracker(cfg ActivityConfig, log *zap.Logger) (*ActivityTracker, error) {
	if cfg.History <= 0 {
		return nil, fmt.Errorf("activity history must be positive")
	}
	if cfg.SuspiciousThreshold <= 0 || cfg.BlockThreshold < cfg.SuspiciousThreshold {
		return nil, fmt.Errorf("invalid activity thresholds: suspicious=%d block=%d", cfg.SuspiciousThreshold, cfg.BlockThreshold)
	}

	store, err := memory.NewStore[domain.ActivityRecord](cfg.Capacity, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("create activity store: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &ActivityTracker{
		cfg:     cfg,
		records: store,
		metrics: port.NopGuardMetrics{},
		logger:  log,
		now:     time.Now,
	}, nil
}

// WithClock allows injection of a custom clock (primarily for testing).
func (a *ActivityTracker) WithClock(now func() time.Time) *ActivityTracker {
	if now != nil {
		a.now = now
	}
	return a
}

// WithMetrics attaches a metrics sink.
func (a *ActivityTracker) WithMetrics(m port.GuardMetrics) *ActivityTracker {
	if m != nil {
		a.metrics = m
	}
	return a
}

// RecordPattern counts one anomalous event for identifier.
func (a *ActivityTracker) RecordPattern(identifier, pattern string) domain.ActivityResult {
	unlock := a.locks.lock(identifier)
	defer unlock()

	now := a.now()
	record, ok := a.records.Get(identifier, now)
	if !ok {
		record = domain.ActivityRecord{FirstSeenAt: now}
	}

	record.Count++

	// keep the newest entries only; copy so earlier snapshots stay untouched
	keep := min(len(record.RecentPatterns), a.cfg.History-1)
	patterns := make([]string, 0, keep+1)
	patterns = append(patterns, record.RecentPatterns[len(record.RecentPatterns)-keep:]...)
	record.RecentPatterns = append(patterns, pattern)

	a.records.Put(identifier, record, now)

	result := a.classify(record.Count)

	switch record.Count {
	case a.cfg.SuspiciousThreshold + 1:
		a.logger.Warn("suspicious activity detected",
			zap.String("identifier", logger.MaskIP(identifier)),
			zap.Int("count", record.Count),
			zap.Strings("recent_patterns", record.RecentPatterns),
		)
	case a.cfg.BlockThreshold + 1:
		a.logger.Error("activity exceeded block threshold",
			zap.String("identifier", logger.MaskIP(identifier)),
			zap.Int("count", record.Count),
			zap.Time("first_seen_at", record.FirstSeenAt),
			zap.Strings("recent_patterns", record.RecentPatterns),
		)
	}
	a.metrics.ObserveActivity(result)

	return result
}

// Lookup returns the accumulated record for identifier without modifying it.
func (a *ActivityTracker) Lookup(identifier string) (domain.ActivityRecord, bool) {
	record, ok := a.records.Get(identifier, a.now())
	if !ok {
		return domain.ActivityRecord{}, false
	}
	record.RecentPatterns = append([]string(nil), record.RecentPatterns...)
	return record, true
}

// ShouldBlock reports whether identifier already crossed the block threshold.
func (a *ActivityTracker) ShouldBlock(identifier string) bool {
	record, ok := a.records.Get(identifier, a.now())
	return ok && a.classify(record.Count).ShouldBlock
}

// Store exposes the activity store.
func (a *ActivityTracker) Store() *memory.Store[domain.ActivityRecord] {
	return a.records
}

func (a *ActivityTracker) classify(count int) domain.ActivityResult {
	return domain.ActivityResult{
		Suspicious:  count > a.cfg.SuspiciousThreshold,
		Count:       count,
		ShouldBlock: count > a.cfg.BlockThreshold,
	}
}
