// Package sync provides keyed locking for work that must not run twice
// concurrently for the same resource inside one process.
package sync

import (
	"hash/fnv"
	"sync"
)

const defaultShards = 32

// ShardedMutex serializes callers that share a key. Keys are hashed onto a
// fixed set of mutexes, so unrelated keys may occasionally share a shard.
type ShardedMutex struct {
	shards []sync.Mutex
}

// NewShardedMutex creates a ShardedMutex with n shards, or 32 if n <= 0.
func NewShardedMutex(n int) *ShardedMutex {
	if n <= 0 {
		n = defaultShards
	}
	return &ShardedMutex{shards: make([]sync.Mutex, n)}
}

// Lock acquires the shard for key.
func (m *ShardedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the shard for key.
func (m *ShardedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// With runs fn while holding the shard for key.
func (m *ShardedMutex) With(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}

func (m *ShardedMutex) shardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}
