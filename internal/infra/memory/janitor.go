package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper drops expired entries.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Janitor periodically sweeps a set of stores so expired identifiers release memory
// before capacity eviction would reach them.
type Janitor struct {
	interval time.Duration
	sweepers []Sweeper
	logger   *zap.Logger
	now      func() time.Time
}

// NewJanitor builds a janitor sweeping the given stores every interval.
func NewJanitor(interval time.Duration, logger *zap.Logger, sweepers ...Sweeper) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Janitor{
		interval: interval,
		sweepers: sweepers,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.SweepOnce()
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce sweeps every store immediately and returns the number of dropped entries.
func (j *Janitor) SweepOnce() int {
	now := j.now()
	removed := 0
	for _, s := range j.sweepers {
		removed += s.Sweep(now)
	}
	if removed > 0 {
		j.logger.Debug("swept expired guard entries", zap.Int("removed", removed))
	}
	return removed
}
