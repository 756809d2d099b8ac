package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/usecase"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubLimiter struct {
	decision domain.Decision
	blocked  bool
	checks   int
	patterns []string
}

func (s *stubLimiter) Check(string, domain.PolicyName) domain.Decision {
	s.checks++
	return s.decision
}

func (s *stubLimiter) RecordPattern(_ string, pattern string) domain.ActivityResult {
	s.patterns = append(s.patterns, pattern)
	return domain.ActivityResult{Count: len(s.patterns)}
}

func (s *stubLimiter) ShouldBlock(string) bool {
	return s.blocked
}

func newGuardedRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(EnrichContext())
	router.POST("/contact", handler, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestHeadersFor(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	allowed := HeadersFor(domain.Decision{
		Allowed:   true,
		Limit:     5,
		Remaining: 4,
		ResetAt:   now.Add(time.Hour),
	}, now)

	if allowed[HeaderRateLimitLimit] != "5" || allowed[HeaderRateLimitRemaining] != "4" {
		t.Fatalf("unexpected limit headers %v", allowed)
	}
	if allowed[HeaderRateLimitReset] != strconv.FormatInt(now.Add(time.Hour).Unix(), 10) {
		t.Fatalf("unexpected reset header %s", allowed[HeaderRateLimitReset])
	}
	if allowed[HeaderRetryAfter] != "3600" {
		t.Fatalf("expected retry-after 3600, got %s", allowed[HeaderRetryAfter])
	}

	partial := HeadersFor(domain.Decision{ResetAt: now.Add(1500 * time.Millisecond)}, now)
	if partial[HeaderRetryAfter] != "2" {
		t.Fatalf("expected retry-after to round up to 2, got %s", partial[HeaderRetryAfter])
	}

	past := HeadersFor(domain.Decision{Remaining: -1, ResetAt: now.Add(-time.Minute)}, now)
	if past[HeaderRetryAfter] != "0" || past[HeaderRateLimitRemaining] != "0" {
		t.Fatalf("expected clamped headers, got %v", past)
	}
	if len(past) != 4 {
		t.Fatalf("expected exactly four headers, got %d", len(past))
	}
}

func TestGuardAllowsAndSetsHeaders(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := &stubLimiter{decision: domain.Decision{Allowed: true, Limit: 5, Remaining: 4, ResetAt: now.Add(time.Hour)}}

	router := newGuardedRouter(Guard(limiter, domain.PolicyContactForm, WithGuardClock(func() time.Time { return now })))

	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Header().Get(HeaderRateLimitRemaining) != "4" {
		t.Fatalf("expected remaining header 4, got %q", rr.Header().Get(HeaderRateLimitRemaining))
	}
	if len(limiter.patterns) != 0 {
		t.Fatalf("allowed requests must not record patterns")
	}
}

func TestGuardRejectsWithProblemDetails(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := &stubLimiter{decision: domain.Decision{
		Allowed: false,
		Limit:   5,
		ResetAt: now.Add(90 * time.Second),
		Message: "Too many contact form submissions. Please try again later.",
	}}

	router := newGuardedRouter(Guard(limiter, domain.PolicyContactForm,
		WithGuardClock(func() time.Time { return now }),
		WithGuardLogger(zaptest.NewLogger(t)),
	))

	req := httptest.NewRequest(http.MethodPost, "/contact", nil)
	req.Header.Set("X-Real-IP", "198.51.100.4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get(HeaderRetryAfter) != "90" {
		t.Fatalf("expected retry-after 90, got %q", rr.Header().Get(HeaderRetryAfter))
	}

	var problem ProblemDetails
	if err := json.Unmarshal(rr.Body.Bytes(), &problem); err != nil {
		t.Fatalf("decode problem: %v", err)
	}
	if problem.Status != http.StatusTooManyRequests || problem.RetryAfter != 90 {
		t.Fatalf("unexpected problem body %+v", problem)
	}
	if problem.Detail != limiter.decision.Message {
		t.Fatalf("expected policy message as detail, got %q", problem.Detail)
	}
	if problem.Instance != "/contact" || problem.TraceID == "" {
		t.Fatalf("expected instance and trace id, got %+v", problem)
	}
	if len(limiter.patterns) != 1 || limiter.patterns[0] != "rate_limited:contactForm" {
		t.Fatalf("expected rate_limited pattern, got %v", limiter.patterns)
	}
}

func TestGuardBlocksAbusiveClientsWhenEnabled(t *testing.T) {
	limiter := &stubLimiter{blocked: true, decision: domain.Decision{Allowed: true, Limit: 5, Remaining: 4}}

	router := newGuardedRouter(Guard(limiter, domain.PolicyContactForm, WithBlockOnAbuse(true)))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contact", nil))

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if limiter.checks != 0 {
		t.Fatalf("blocked clients must not consume quota")
	}
}

func TestGuardIgnoresBlockFlagWhenDisabled(t *testing.T) {
	limiter := &stubLimiter{blocked: true, decision: domain.Decision{Allowed: true, Limit: 5, Remaining: 4}}

	router := newGuardedRouter(Guard(limiter, domain.PolicyContactForm))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/contact", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestGuardEnforcesQuotaEndToEnd(t *testing.T) {
	clock := &testClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	guard, err := usecase.NewGuard(usecase.DefaultGuardConfig(), nil, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	guard.WithClock(clock.Now)

	router := newGuardedRouter(Guard(guard, domain.PolicyJobApplication, WithGuardClock(clock.Now)))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/contact", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	for i, want := range []string{"2", "1", "0"} {
		rr := send("192.0.2.1")
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rr.Code)
		}
		if got := rr.Header().Get(HeaderRateLimitRemaining); got != want {
			t.Fatalf("request %d: expected remaining %s, got %s", i+1, want, got)
		}
	}

	if rr := send("192.0.2.1"); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected fourth request to be limited, got %d", rr.Code)
	}
	if rr := send("192.0.2.2"); rr.Code != http.StatusOK {
		t.Fatalf("expected other client to be unaffected, got %d", rr.Code)
	}

	record, ok := guard.Activity("192.0.2.1")
	if !ok || record.Count != 1 || record.RecentPatterns[0] != "rate_limited:jobApplication" {
		t.Fatalf("expected denial to be recorded as activity, got %+v", record)
	}

	clock.Advance(time.Hour + time.Second)
	if rr := send("192.0.2.1"); rr.Code != http.StatusOK {
		t.Fatalf("expected window to roll over, got %d", rr.Code)
	}
}
