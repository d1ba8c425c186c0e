package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount bounds lock memory regardless of how many tenants are seen.
const shardCount = 256

// ShardedMutex is a fixed-size pool of mutexes keyed by string. The abuse
// engine keys it by tenant ID to serialize score mutations: two tenants
// that hash to the same shard occasionally queue behind each other, which
// is harmless, while memory stays bounded under tenant churn.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[shardIdx(key)]
	mu.Lock()
	return mu.Unlock
}

func shardIdx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
