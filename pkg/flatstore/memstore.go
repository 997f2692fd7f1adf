package flatstore

import (
	"encoding/json"
	"sync"

	"github.com/cuemby/flatshard/pkg/flatstate"
)

// MemStore is an in-memory Store used by tests and by scenario-level
// unit tests of the split engine and witness pipeline, so they don't
// need a real bbolt file on disk.
type MemStore struct {
	mu       sync.Mutex
	statuses map[string]flatstate.Status
	values   map[string]map[string][]byte // shard key -> trie key -> JSON value
	deltas   map[string]map[string]flatstate.Delta
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		statuses: make(map[string]flatstate.Status),
		values:   make(map[string]map[string][]byte),
		deltas:   make(map[string]map[string]flatstate.Delta),
	}
}

func (s *MemStore) Close() error { return nil }

func (s *MemStore) GetStatus(shard flatstate.ShardUID) (flatstate.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.statuses[shard.String()]
	if !ok {
		return flatstate.Empty(), nil
	}
	return status, nil
}

func (s *MemStore) Iter(shard flatstate.ShardUID) (Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shardValues := s.values[shard.String()]
	keys := sortedKeys(shardValues)
	entries := make([]memEntry, 0, len(keys))
	for _, k := range keys {
		var v flatstate.FlatStateValue
		if err := json.Unmarshal(shardValues[k], &v); err != nil {
			return nil, err
		}
		entries = append(entries, memEntry{key: []byte(k), value: v})
	}
	return &memIterator{entries: entries, index: -1}, nil
}

func (s *MemStore) GetDelta(shard flatstate.ShardUID, blockHash string) (flatstate.Delta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	shardDeltas, ok := s.deltas[shard.String()]
	if !ok {
		return flatstate.Delta{}, false, nil
	}
	delta, ok := shardDeltas[blockHash]
	return delta, ok, nil
}

func (s *MemStore) StoreUpdate() Update {
	return &memUpdate{store: s}
}

type memEntry struct {
	key   []byte
	value flatstate.FlatStateValue
}

type memIterator struct {
	entries []memEntry
	index   int
}

func (it *memIterator) Next() bool {
	it.index++
	return it.index < len(it.entries)
}

func (it *memIterator) Key() []byte                     { return it.entries[it.index].key }
func (it *memIterator) Value() flatstate.FlatStateValue { return it.entries[it.index].value }
func (it *memIterator) Err() error                      { return nil }
func (it *memIterator) Close() error                    { return nil }

// memOp is one recorded mutation, applied in order at Commit so the
// batch stays atomic: nothing is visible to readers until Commit runs.
type memOp func(s *MemStore)

type memUpdate struct {
	store *MemStore
	ops   []memOp
}

func (u *memUpdate) SetStatus(shard flatstate.ShardUID, status flatstate.Status) {
	u.ops = append(u.ops, func(s *MemStore) {
		s.statuses[shard.String()] = status
	})
}

func (u *memUpdate) Set(shard flatstate.ShardUID, key []byte, value *flatstate.FlatStateValue) {
	k := shard.String()
	keyCopy := append([]byte(nil), key...)
	u.ops = append(u.ops, func(s *MemStore) {
		bucket, ok := s.values[k]
		if !ok {
			bucket = make(map[string][]byte)
			s.values[k] = bucket
		}
		if value == nil {
			delete(bucket, string(keyCopy))
			return
		}
		data, err := json.Marshal(value)
		if err != nil {
			return
		}
		bucket[string(keyCopy)] = data
	})
}

func (u *memUpdate) SetDelta(shard flatstate.ShardUID, delta flatstate.Delta) {
	k := shard.String()
	u.ops = append(u.ops, func(s *MemStore) {
		bucket, ok := s.deltas[k]
		if !ok {
			bucket = make(map[string]flatstate.Delta)
			s.deltas[k] = bucket
		}
		bucket[delta.BlockHash] = delta
	})
}

func (u *memUpdate) RemoveAllValues(shard flatstate.ShardUID) {
	k := shard.String()
	u.ops = append(u.ops, func(s *MemStore) {
		delete(s.values, k)
	})
}

func (u *memUpdate) RemoveAllDeltas(shard flatstate.ShardUID) {
	k := shard.String()
	u.ops = append(u.ops, func(s *MemStore) {
		delete(s.deltas, k)
	})
}

func (u *memUpdate) RemoveFlatStorage(shard flatstate.ShardUID) {
	k := shard.String()
	u.ops = append(u.ops, func(s *MemStore) {
		delete(s.statuses, k)
		delete(s.values, k)
		delete(s.deltas, k)
	})
}

func (u *memUpdate) Commit() error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, op := range u.ops {
		op(u.store)
	}
	u.ops = nil
	return nil
}

func (u *memUpdate) Discard() {
	u.ops = nil
}
