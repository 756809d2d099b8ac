package usecase

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/infra/memory"
)

func newTestLimiter(t *testing.T, capacity int, policies ...domain.Policy) (*SlidingWindowLimiter, *fakeClock) {
	t.Helper()

	table, err := domain.NewPolicyTable(policies...)
	if err != nil {
		t.Fatalf("policy table: %v", err)
	}

	limiter, err := NewSlidingWindowLimiter(table, memory.WindowStoreFactory(capacity), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	clock := newFakeClock()
	return limiter.WithClock(clock.Now), clock
}

func TestLimiterEnforcesQuota(t *testing.T) {
	limiter, clock := newTestLimiter(t, 100, domain.DefaultPolicies()...)

	for i, want := range []int{4, 3, 2, 1, 0} {
		d := limiter.Check("192.0.2.1", domain.PolicyContactForm)
		if !d.Allowed {
			t.Fatalf("request %d: expected allowed", i+1)
		}
		if d.Remaining != want {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, want, d.Remaining)
		}
		if d.Limit != 5 {
			t.Fatalf("request %d: expected limit 5, got %d", i+1, d.Limit)
		}
		if !d.ResetAt.Equal(clock.Now().Add(time.Hour)) {
			t.Fatalf("request %d: expected reset one window ahead, got %s", i+1, d.ResetAt)
		}
		if d.Message != "" {
			t.Fatalf("request %d: expected no message on allow, got %q", i+1, d.Message)
		}
		clock.Advance(time.Minute)
	}

	d := limiter.Check("192.0.2.1", domain.PolicyContactForm)
	if d.Allowed {
		t.Fatalf("expected 6th request to be denied")
	}
	if d.Remaining != 0 {
		t.Fatalf("expected remaining 0 on deny, got %d", d.Remaining)
	}
	if d.Message == "" {
		t.Fatalf("expected policy message on deny")
	}

	start := clock.Now().Add(-5 * time.Minute)
	if want := start.Add(time.Hour); !d.ResetAt.Equal(want) {
		t.Fatalf("expected reset at oldest+window %s, got %s", want, d.ResetAt)
	}
}

func TestLimiterWindowRolls(t *testing.T) {
	limiter, clock := newTestLimiter(t, 100, domain.Policy{
		Name: "test", MaxEvents: 5, Window: time.Hour, Message: "slow down",
	})

	for i := 0; i < 5; i++ {
		limiter.Check("a", "test")
		clock.Advance(time.Minute)
	}

	denied := limiter.Check("a", "test")
	if denied.Allowed {
		t.Fatalf("expected deny once quota exhausted")
	}

	clock.Advance(denied.ResetAt.Sub(clock.Now()) + time.Nanosecond)

	d := limiter.Check("a", "test")
	if !d.Allowed {
		t.Fatalf("expected allow after oldest event aged out")
	}
	if d.Remaining != 0 {
		t.Fatalf("expected exactly one freed slot, remaining=%d", d.Remaining)
	}

	if again := limiter.Check("a", "test"); again.Allowed {
		t.Fatalf("expected deny again: the other four events are still inside the window")
	}
}

func TestLimiterDeniedRequestsAreNotRecorded(t *testing.T) {
	limiter, clock := newTestLimiter(t, 100, domain.Policy{
		Name: "test", MaxEvents: 2, Window: time.Minute, Message: "slow down",
	})

	limiter.Check("a", "test")
	limiter.Check("a", "test")
	for i := 0; i < 10; i++ {
		limiter.Check("a", "test")
	}

	clock.Advance(time.Minute)
	if d := limiter.Check("a", "test"); !d.Allowed || d.Remaining != 1 {
		t.Fatalf("expected a fresh window after denials, got %+v", d)
	}
}

func TestLimiterIdentifiersAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100, domain.DefaultPolicies()...)

	for i := 0; i < 6; i++ {
		limiter.Check("192.0.2.1", domain.PolicyContactForm)
	}

	d := limiter.Check("192.0.2.2", domain.PolicyContactForm)
	if !d.Allowed || d.Remaining != 4 {
		t.Fatalf("expected untouched identifier to keep its quota, got %+v", d)
	}
}

func TestLimiterPoliciesAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100, domain.DefaultPolicies()...)

	for i := 0; i < 6; i++ {
		limiter.Check("192.0.2.1", domain.PolicyContactForm)
	}

	d := limiter.Check("192.0.2.1", domain.PolicyJobApplication)
	if !d.Allowed || d.Remaining != 2 || d.Limit != 3 {
		t.Fatalf("expected jobApplication quota to be unaffected, got %+v", d)
	}
}

func TestLimiterUnknownPolicyFailsOpen(t *testing.T) {
	limiter, clock := newTestLimiter(t, 100, domain.DefaultPolicies()...)
	metrics := newRecordingMetrics()
	limiter.WithMetrics(metrics)

	for i := 0; i < 200; i++ {
		d := limiter.Check("192.0.2.1", "doesNotExist")
		if !d.Allowed {
			t.Fatalf("expected unknown policy to fail open on call %d", i+1)
		}
		if d.Limit != unknownPolicyLimit || d.Remaining != unknownPolicyLimit-1 {
			t.Fatalf("unexpected fallback quota %+v", d)
		}
		if !d.ResetAt.Equal(clock.Now().Add(unknownPolicyWindow)) {
			t.Fatalf("unexpected fallback reset %s", d.ResetAt)
		}
	}

	if len(metrics.unknown) != 200 {
		t.Fatalf("expected unknown policy to be observed 200 times, got %d", len(metrics.unknown))
	}
}

func TestLimiterPolicyLookupIsCaseSensitive(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100, domain.DefaultPolicies()...)

	for i := 0; i < 10; i++ {
		if d := limiter.Check("a", "ContactForm"); !d.Allowed {
			t.Fatalf("expected miscased policy name to be treated as unknown")
		}
	}
}

func TestLimiterStoreSizeIsBounded(t *testing.T) {
	const capacity = 8
	limiter, _ := newTestLimiter(t, capacity, domain.DefaultPolicies()...)

	for i := 0; i < capacity*20; i++ {
		limiter.Check(fmt.Sprintf("198.51.100.%d", i), domain.PolicyGeneralAPI)
		stats := limiter.StoreStats()[domain.PolicyGeneralAPI]
		if stats.Size > capacity {
			t.Fatalf("store size %d exceeds capacity %d", stats.Size, capacity)
		}
	}
}

func TestLimiterConcurrentChecksNeverOverAdmit(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100, domain.Policy{
		Name: "burst", MaxEvents: 10, Window: time.Hour, Message: "slow down",
	})

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.Check("203.0.113.9", "burst").Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Fatalf("expected exactly 10 admitted requests, got %d", got)
	}
}

func TestLimiterObservesDecisions(t *testing.T) {
	limiter, _ := newTestLimiter(t, 100, domain.DefaultPolicies()...)
	metrics := newRecordingMetrics()
	limiter.WithMetrics(metrics)

	for i := 0; i < 4; i++ {
		limiter.Check("a", domain.PolicyJobApplication)
	}

	if metrics.allowed[domain.PolicyJobApplication] != 3 || metrics.denied[domain.PolicyJobApplication] != 1 {
		t.Fatalf("unexpected decision metrics allowed=%d denied=%d",
			metrics.allowed[domain.PolicyJobApplication], metrics.denied[domain.PolicyJobApplication])
	}
}
