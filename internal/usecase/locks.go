package usecase

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 64

// keyLocks serialises read-modify-write sequences per identifier without a global lock.
type keyLocks struct {
	shards [lockShards]sync.Mutex
}

func (l *keyLocks) lock(key string) func() {
	mu := &l.shards[xxhash.Sum64String(key)%lockShards]
	mu.Lock()
	return mu.Unlock
}
