package usecase

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/core/port"
	"github.com/arklim/abuse-guard/internal/infra/logger"
)

const (
	unknownPolicyLimit  = 100
	unknownPolicyWindow = time.Minute
)

// WindowStoreFactory creates the store backing a single policy.
type WindowStoreFactory func(policy domain.Policy) (port.WindowStore, error)

// SlidingWindowLimiter enforces rolling-window quotas per identifier and policy.
type SlidingWindowLimiter struct {
	policies *domain.PolicyTable
	stores   map[domain.PolicyName]port.WindowStore
	locks    keyLocks
	metrics  port.GuardMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewSlidingWindowLimiter builds one store per policy using newStore.
func NewSlidingWindowLimiter(policies *domain.PolicyTable, newStore WindowStoreFactory, log *zap.Logger) (*SlidingWindowLimiter, error) {
	if policies == nil {
		return nil, fmt.Errorf("policy table is required")
	}
	if newStore == nil {
		return nil, fmt.Errorf("window store factory is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	stores := make(map[domain.PolicyName]port.WindowStore)
	for _, p := range policies.Policies() {
		s, err := newStore(p)
		if err != nil {
			return nil, fmt.Errorf("create store for %s: %w", p.Name, err)
		}
		stores[p.Name] = s
	}

	return &SlidingWindowLimiter{
		policies: policies,
		stores:   stores,
		metrics:  port.NopGuardMetrics{},
		logger:   log,
		now:      time.Now,
	}, nil
}

// WithClock allows injection of a custom clock (primarily for testing).
func (l *SlidingWindowLimiter) WithClock(now func() time.Time) *SlidingWindowLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// WithMetrics attaches a metrics sink.
func (l *SlidingWindowLimiter) WithMetrics(m port.GuardMetrics) *SlidingWindowLimiter {
	if m != nil {
		l.metrics = m
	}
	return l
}

// Check records an event for identifier under the named policy if its quota allows it.
// Unknown policy names fail open.
func (l *SlidingWindowLimiter) Check(identifier string, name domain.PolicyName) domain.Decision {
	now := l.now()

	policy, ok := l.policies.Lookup(name)
	if !ok {
		l.logger.Warn("unknown rate limit policy",
			zap.String("policy", string(name)),
			zap.String("identifier", logger.MaskIP(identifier)),
		)
		l.metrics.ObserveUnknownPolicy(name)
		return domain.Decision{
			Allowed:   true,
			Policy:    name,
			Limit:     unknownPolicyLimit,
			Remaining: unknownPolicyLimit - 1,
			ResetAt:   now.Add(unknownPolicyWindow),
		}
	}

	store := l.stores[name]

	unlock := l.locks.lock(string(name) + ":" + identifier)
	defer unlock()

	events, _ := store.Get(identifier, now)
	valid := make([]time.Time, 0, len(events)+1)
	for _, ts := range events {
		if now.Sub(ts) < policy.Window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= policy.MaxEvents {
		oldest := valid[0]
		for _, ts := range valid[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		l.metrics.ObserveDecision(name, false)
		return domain.Decision{
			Allowed:   false,
			Policy:    name,
			Limit:     policy.MaxEvents,
			Remaining: 0,
			ResetAt:   oldest.Add(policy.Window),
			Message:   policy.Message,
		}
	}

	valid = append(valid, now)
	store.Put(identifier, valid, now)

	l.metrics.ObserveDecision(name, true)
	return domain.Decision{
		Allowed:   true,
		Policy:    name,
		Limit:     policy.MaxEvents,
		Remaining: policy.MaxEvents - len(valid),
		ResetAt:   now.Add(policy.Window),
	}
}

// StoreStats reports occupancy per policy.
func (l *SlidingWindowLimiter) StoreStats() map[domain.PolicyName]domain.StoreStats {
	out := make(map[domain.PolicyName]domain.StoreStats, len(l.stores))
	for name, s := range l.stores {
		out[name] = domain.StoreStats{Size: s.Len(), Capacity: s.Cap()}
	}
	return out
}

// Purge empties every policy store.
func (l *SlidingWindowLimiter) Purge() {
	for _, s := range l.stores {
		s.Purge()
	}
}

// Stores exposes the backing stores, keyed by policy.
func (l *SlidingWindowLimiter) Stores() map[domain.PolicyName]port.WindowStore {
	out := make(map[domain.PolicyName]port.WindowStore, len(l.stores))
	for name, s := range l.stores {
		out[name] = s
	}
	return out
}
