package rwlock

import "sync/atomic"

// Tickets hands out round-robin reader-slot indices. Go has no portable
// OS-thread-id primitive to shard on (unlike the C++ reference, which
// shards on std::thread::hardware_concurrency() and a thread id), so
// callers draw a fresh ticket for each read-locked call; the same
// goroutine is not kept on the same slot.
type Tickets struct {
	next atomic.Uint64
}

// Next returns the next slot index, wrapping as a plain counter; callers
// reduce it mod ShardedRWMutex.Shards() (the lock does this internally).
func (t *Tickets) Next() int {
	return int(t.next.Add(1) - 1)
}
