package auth

import (
	"chat-gateway/domain"
	"hash/fnv"
	"sync"
)

const defaultShardCount = 32

type shard struct {
	mu         sync.RWMutex
	identities map[domain.SessionID]domain.Identity
}

// ContextStore binds a session to the identity verified at OPEN time.
// Entries are spread over shards so unrelated sessions never contend on
// the same lock; operations on a single session are linearizable.
type ContextStore struct {
	shards []*shard
}

func NewContextStore(shardCount int) *ContextStore {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{identities: make(map[domain.SessionID]domain.Identity)}
	}
	return &ContextStore{shards: shards}
}

func (s *ContextStore) shardFor(id domain.SessionID) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *ContextStore) Put(id domain.SessionID, identity domain.Identity) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.identities[id] = identity
}

func (s *ContextStore) Get(id domain.SessionID) (domain.Identity, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	identity, ok := sh.identities[id]
	return identity, ok
}

// Delete is the only path removing a binding. It is called when the session closes.
func (s *ContextStore) Delete(id domain.SessionID) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.identities, id)
}

func (s *ContextStore) Len() int {
	total := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		total += len(sh.identities)
		sh.mu.RUnlock()
	}
	return total
}
