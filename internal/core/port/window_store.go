package port

import "time"

// WindowStore holds the event history of each identifier for a single limiter class.
// Implementations must bound their size and hide entries whose TTL elapsed since the last Put.
// The in-process memory store is the only implementation; a centralized backing would
// have to provide the same get/put semantics atomically across processes.
type WindowStore interface {
	Get(identifier string, now time.Time) ([]time.Time, bool)
	Put(identifier string, events []time.Time, now time.Time)
	Len() int
	Cap() int
	Purge()
}
