package domain

import "time"

// Decision is the outcome of a sliding window check.
type Decision struct {
	Allowed   bool
	Policy    PolicyName
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Message is set only when the request is denied.
	Message string
}

// RetryAfter reports how long the caller should wait before the next slot frees up.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// BackoffResult describes the state of an identifier after a recorded authentication failure.
type BackoffResult struct {
	Attempts int
	Delay    time.Duration
	Locked   bool
}

// ActivityResult classifies an identifier after a recorded anomaly pattern.
type ActivityResult struct {
	Suspicious  bool
	Count       int
	ShouldBlock bool
}

// ActivityRecord is the accumulated anomaly history for an identifier.
type ActivityRecord struct {
	Count          int
	RecentPatterns []string
	FirstSeenAt    time.Time
}

// StoreStats reports the occupancy of a bounded store.
type StoreStats struct {
	Size     int `json:"size"`
	Capacity int `json:"capacity"`
}

// Stats is a read-only snapshot used by operational dashboards.
type Stats struct {
	PerPolicy       map[PolicyName]StoreStats `json:"per_policy"`
	FailureCount    int                       `json:"failure_count"`
	SuspiciousCount int                       `json:"suspicious_count"`
}
