package port

import "github.com/arklim/abuse-guard/internal/core/domain"

// GuardMetrics receives the outcome of every guard decision.
type GuardMetrics interface {
	ObserveDecision(policy domain.PolicyName, allowed bool)
	ObserveUnknownPolicy(policy domain.PolicyName)
	ObserveFailure(locked bool)
	ObserveActivity(result domain.ActivityResult)
}

// NopGuardMetrics discards all observations.
type NopGuardMetrics struct{}

func (NopGuardMetrics) ObserveDecision(domain.PolicyName, bool) {}
func (NopGuardMetrics) ObserveUnknownPolicy(domain.PolicyName) {}
func (NopGuardMetrics) ObserveFailure(bool) {}
func (NopGuardMetrics) ObserveActivity(domain.ActivityResult) {}
