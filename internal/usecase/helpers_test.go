package usecase

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/abuse-guard/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingMetrics struct {
	mu       sync.Mutex
	allowed  map[domain.PolicyName]int
	denied   map[domain.PolicyName]int
	unknown  []domain.PolicyName
	failures int
	locked   int
	activity []domain.ActivityResult
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		allowed: make(map[domain.PolicyName]int),
		denied:  make(map[domain.PolicyName]int),
	}
}

func (m *recordingMetrics) ObserveDecision(policy domain.PolicyName, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if allowed {
		m.allowed[policy]++
		return
	}
	m.denied[policy]++
}

func (m *recordingMetrics) ObserveUnknownPolicy(policy domain.PolicyName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unknown = append(m.unknown, policy)
}

func (m *recordingMetrics) ObserveFailure(locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
	if locked {
		m.locked++
	}
}

func (m *recordingMetrics) ObserveActivity(result domain.ActivityResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = append(m.activity, result)
}

func newTestGuard(t *testing.T, cfg GuardConfig) (*Guard, *fakeClock) {
	t.Helper()

	clock := newFakeClock()
	guard, err := NewGuard(cfg, domain.DefaultPolicyTable(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return guard.WithClock(clock.Now), clock
}
