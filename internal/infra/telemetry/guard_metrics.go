package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/core/port"
)

const namespace = "guard"

// GuardMetrics records limiter, backoff and activity outcomes as Prometheus counters.
type GuardMetrics struct {
	Decisions      *prometheus.CounterVec
	UnknownPolicy  *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	ActivityEvents *prometheus.CounterVec
}

var _ port.GuardMetrics = (*GuardMetrics)(nil)

func NewGuardMetrics(reg prometheus.Registerer) (*GuardMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	decisions, err := RegisterOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "decisions_total",
		Help:      "Sliding window decisions partitioned by policy and outcome.",
	}, []string{"policy", "allowed"}))
	if err != nil {
		return nil, err
	}

	unknown, err := RegisterOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "unknown_policy_total",
		Help:      "Checks against unregistered policy names answered with the permissive fallback.",
	}, []string{"policy"}))
	if err != nil {
		return nil, err
	}

	failures, err := RegisterOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backoff",
		Name:      "failures_total",
		Help:      "Recorded authentication failures partitioned by whether the identifier is locked.",
	}, []string{"locked"}))
	if err != nil {
		return nil, err
	}

	activity, err := RegisterOrReuse(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "activity",
		Name:      "patterns_total",
		Help:      "Recorded anomaly patterns partitioned by resulting classification.",
	}, []string{"classification"}))
	if err != nil {
		return nil, err
	}

	return &GuardMetrics{
		Decisions:      decisions,
		UnknownPolicy:  unknown,
		Failures:       failures,
		ActivityEvents: activity,
	}, nil
}

func (m *GuardMetrics) ObserveDecision(policy domain.PolicyName, allowed bool) {
	m.Decisions.WithLabelValues(string(policy), strconv.FormatBool(allowed)).Inc()
}

func (m *GuardMetrics) ObserveUnknownPolicy(policy domain.PolicyName) {
	m.UnknownPolicy.WithLabelValues(string(policy)).Inc()
}

func (m *GuardMetrics) ObserveFailure(locked bool) {
	m.Failures.WithLabelValues(strconv.FormatBool(locked)).Inc()
}

func (m *GuardMetrics) ObserveActivity(result domain.ActivityResult) {
	m.ActivityEvents.WithLabelValues(classification(result)).Inc()
}

func classification(result domain.ActivityResult) string {
	switch {
	case result.ShouldBlock:
		return "block"
	case result.Suspicious:
		return "suspicious"
	default:
		return "normal"
	}
}
