package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/arklim/abuse-guard/internal/core/domain"
	appLogger "github.com/arklim/abuse-guard/internal/infra/logger"
)

const (
	rateLimitProblemType  = "https://abuse-guard.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
	blockedProblemType    = "https://abuse-guard.example.com/errors/client-blocked"
	blockedProblemTitle   = "Client Blocked"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"

	rateLimitedPatternPrefix = "rate_limited:"
)

// Limiter is the subset of the guard consulted per request.
type Limiter interface {
	Check(identifier string, policy domain.PolicyName) domain.Decision
	RecordPattern(identifier, pattern string) domain.ActivityResult
	ShouldBlock(identifier string) bool
}

// ProblemDetails represents an RFC 9457 compatible error payload for rejected requests.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

type guardOptions struct {
	identify     IdentityFunc
	blockOnAbuse bool
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// GuardOption customises the Guard middleware.
type GuardOption func(*guardOptions)

func WithIdentity(fn IdentityFunc) GuardOption {
	return func(o *guardOptions) {
		if fn != nil {
			o.identify = fn
		}
	}
}

// WithBlockOnAbuse rejects identifiers the activity tracker flags for blocking before any quota is spent.
func WithBlockOnAbuse(enabled bool) GuardOption {
	return func(o *guardOptions) {
		o.blockOnAbuse = enabled
	}
}

func WithGuardLogger(log *zap.Logger) GuardOption {
	return func(o *guardOptions) {
		if log != nil {
			o.logger = log
		}
	}
}

func WithTracer(tracer trace.Tracer) GuardOption {
	return func(o *guardOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithGuardClock sets the clock used to compute Retry-After; it should match the guard's clock.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(o *guardOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// Guard enforces the named policy for every request passing through the handler chain.
func Guard(limiter Limiter, policy domain.PolicyName, opts ...GuardOption) gin.HandlerFunc {
	o := guardOptions{
		identify: HeaderIdentity(),
		logger:   zap.NewNop(),
		tracer:   noop.NewTracerProvider().Tracer("guard"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		identifier := o.identify(c)
		c.Set(IdentityKey, identifier)

		_, span := o.tracer.Start(c.Request.Context(), "guard.check", trace.WithAttributes(
			attribute.String("guard.policy", string(policy)),
		))

		if o.blockOnAbuse && limiter.ShouldBlock(identifier) {
			span.SetStatus(codes.Error, "client blocked")
			span.End()
			o.logger.Warn("request from blocked client rejected",
				zap.String("policy", string(policy)),
				zap.String("client_ip", appLogger.MaskIP(identifier)),
				zap.String("trace_id", GetTraceID(c)),
			)
			respondBlocked(c)
			return
		}

		now := o.now()
		decision := limiter.Check(identifier, policy)
		for name, value := range HeadersFor(decision, now) {
			c.Header(name, value)
		}

		span.SetAttributes(
			attribute.Bool("guard.allowed", decision.Allowed),
			attribute.Int("guard.remaining", decision.Remaining),
		)
		span.End()

		if !decision.Allowed {
			activity := limiter.RecordPattern(identifier, rateLimitedPatternPrefix+string(policy))
			o.logger.Info("request rate limited",
				zap.String("policy", string(policy)),
				zap.String("client_ip", appLogger.MaskIP(identifier)),
				zap.Int("activity_count", activity.Count),
				zap.Bool("suspicious", activity.Suspicious),
				zap.String("trace_id", GetTraceID(c)),
			)
			respondRateLimited(c, decision, now)
			return
		}

		c.Next()
	}
}

// HeadersFor renders the rate limit response headers for a decision.
// Retry-After is the number of whole seconds until ResetAt, rounded up and never negative.
func HeadersFor(decision domain.Decision, now time.Time) map[string]string {
	return map[string]string{
		HeaderRateLimitLimit:     strconv.Itoa(decision.Limit),
		HeaderRateLimitRemaining: strconv.Itoa(max(decision.Remaining, 0)),
		HeaderRateLimitReset:     strconv.FormatInt(decision.ResetAt.Unix(), 10),
		HeaderRetryAfter:         strconv.Itoa(retryAfterSeconds(decision, now)),
	}
}

func retryAfterSeconds(decision domain.Decision, now time.Time) int {
	return int(math.Ceil(decision.RetryAfter(now).Seconds()))
}

func requestInstance(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func respondRateLimited(c *gin.Context, decision domain.Decision, now time.Time) {
	retrySeconds := retryAfterSeconds(decision, now)

	detail := decision.Message
	if detail == "" {
		detail = fmt.Sprintf("Too many requests. Try again in %d seconds.", retrySeconds)
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     detail,
		Instance:   requestInstance(c),
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	})
}

func respondBlocked(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, ProblemDetails{
		Type:     blockedProblemType,
		Title:    blockedProblemTitle,
		Status:   http.StatusForbidden,
		Detail:   "Requests from this client are blocked due to repeated abuse.",
		Instance: requestInstance(c),
		TraceID:  GetTraceID(c),
	})
}
