package memory

import (
	"time"

	"github.com/arklim/abuse-guard/internal/core/domain"
	"github.com/arklim/abuse-guard/internal/core/port"
)

// WindowStore keeps the event timestamps of one limiter class.
type WindowStore struct {
	*Store[[]time.Time]
}

// NewWindowStore creates a window store whose entries live for one policy window.
func NewWindowStore(capacity int, window time.Duration) (*WindowStore, error) {
	s, err := NewStore[[]time.Time](capacity, window)
	if err != nil {
		return nil, err
	}
	return &WindowStore{Store: s}, nil
}

// Put stores a copy of events so callers may keep reusing their slice.
func (w *WindowStore) Put(identifier string, events []time.Time, now time.Time) {
	copied := make([]time.Time, len(events))
	copy(copied, events)
	w.Store.Put(identifier, copied, now)
}

var _ port.WindowStore = (*WindowStore)(nil)

// WindowStoreFactory returns a constructor creating one window store per policy,
// each holding at most capacity identifiers for the policy window.
func WindowStoreFactory(capacity int) func(domain.Policy) (port.WindowStore, error) {
	return func(p domain.Policy) (port.WindowStore, error) {
		s, err := NewWindowStore(capacity, p.Window)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
