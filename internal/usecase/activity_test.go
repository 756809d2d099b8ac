package usecase

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestActivity(t *testing.T) (*ActivityTracker, *fakeClock) {
	t.Helper()

	tracker, err := NewActivityTracker(DefaultActivityConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new activity tracker: %v", err)
	}
	clock := newFakeClock()
	return tracker.WithClock(clock.Now), clock
}

func TestActivitySuspiciousThreshold(t *testing.T) {
	tracker, _ := newTestActivity(t)

	for i := 1; i <= 11; i++ {
		res := tracker.RecordPattern("192.0.2.1", "honeypot")
		if res.Count != i {
			t.Fatalf("expected count %d, got %d", i, res.Count)
		}
		if res.Suspicious != (i == 11) {
			t.Fatalf("call %d: unexpected suspicious=%v", i, res.Suspicious)
		}
		if res.ShouldBlock {
			t.Fatalf("call %d: unexpected shouldBlock", i)
		}
	}
}

func TestActivityBlockThreshold(t *testing.T) {
	tracker, _ := newTestActivity(t)

	for i := 1; i <= 51; i++ {
		res := tracker.RecordPattern("192.0.2.1", "rate_limited:contactForm")
		if res.ShouldBlock != (i == 51) {
			t.Fatalf("call %d: unexpected shouldBlock=%v", i, res.ShouldBlock)
		}
	}

	if !tracker.ShouldBlock("192.0.2.1") {
		t.Fatalf("expected ShouldBlock to report the crossed threshold")
	}
	if tracker.ShouldBlock("192.0.2.2") {
		t.Fatalf("expected unknown identifier not to be blocked")
	}
}

func TestActivityKeepsRecentPatternsOnly(t *testing.T) {
	tracker, clock := newTestActivity(t)
	start := clock.Now()

	for i := 0; i < 15; i++ {
		tracker.RecordPattern("a", fmt.Sprintf("p%d", i))
		clock.Advance(time.Second)
	}

	record, ok := tracker.Lookup("a")
	if !ok {
		t.Fatalf("expected record for a")
	}
	if len(record.RecentPatterns) != 10 {
		t.Fatalf("expected 10 retained patterns, got %d", len(record.RecentPatterns))
	}
	if record.RecentPatterns[0] != "p5" || record.RecentPatterns[9] != "p14" {
		t.Fatalf("expected oldest patterns dropped, got %v", record.RecentPatterns)
	}
	if record.Count != 15 {
		t.Fatalf("expected count 15, got %d", record.Count)
	}
	if !record.FirstSeenAt.Equal(start) {
		t.Fatalf("expected first seen %s, got %s", start, record.FirstSeenAt)
	}
}

func TestActivityLookupReturnsSnapshot(t *testing.T) {
	tracker, _ := newTestActivity(t)

	tracker.RecordPattern("a", "p0")
	record, _ := tracker.Lookup("a")
	record.RecentPatterns[0] = "mutated"

	again, _ := tracker.Lookup("a")
	if again.RecentPatterns[0] != "p0" {
		t.Fatalf("expected stored patterns to be isolated, got %v", again.RecentPatterns)
	}
}

func TestActivityEvictedAfterInactivity(t *testing.T) {
	tracker, clock := newTestActivity(t)

	for i := 0; i < 20; i++ {
		tracker.RecordPattern("a", "x")
	}

	clock.Advance(24 * time.Hour)
	if _, ok := tracker.Lookup("a"); ok {
		t.Fatalf("expected record to expire after 24h of inactivity")
	}
	if res := tracker.RecordPattern("a", "x"); res.Count != 1 || res.Suspicious {
		t.Fatalf("expected counting to restart, got %+v", res)
	}
}

func TestActivityRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultActivityConfig()
	cfg.BlockThreshold = 5

	if _, err := NewActivityTracker(cfg, nil); err == nil {
		t.Fatalf("expected error when block threshold is below suspicious threshold")
	}
}
