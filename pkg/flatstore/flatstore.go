// Package flatstore is the typed wrapper over the key-value engine that
// the rest of the resharding pipeline uses: per-shard status, ordered
// base iteration, the delta log, and an atomic batch for commits. It
// mirrors the shape of the teacher's storage.Store/BoltStore pair, but
// the schema underneath is flat-storage specific.
package flatstore

import (
	"errors"

	"github.com/cuemby/flatshard/pkg/flatstate"
)

// ErrInconsistent is returned by any read that finds the on-disk state
// unexpectedly missing or malformed. The caller (the split engine)
// treats this as fatal, per spec §7.
var ErrInconsistent = errors.New("flatstore: storage inconsistent")

// Iterator produces the ordered stream of (key, value) pairs in a
// shard's base flat storage, excluding deltas.
type Iterator interface {
	// Next advances the iterator. It returns false once exhausted or on error.
	Next() bool
	// Key returns the current entry's key. Valid only after Next returns true.
	Key() []byte
	// Value returns the current entry's value. Valid only after Next returns true.
	Value() flatstate.FlatStateValue
	// Err returns the first error encountered, if any.
	Err() error
	// Close releases resources held by the iterator.
	Close() error
}

// Update accumulates writes for one atomic batch. Writes are visible to
// readers only after Commit succeeds; Commit either applies everything
// or nothing.
type Update interface {
	SetStatus(shard flatstate.ShardUID, status flatstate.Status)
	// Set writes (or tombstones, when value is nil) a key in shard.
	Set(shard flatstate.ShardUID, key []byte, value *flatstate.FlatStateValue)
	SetDelta(shard flatstate.ShardUID, delta flatstate.Delta)
	RemoveAllValues(shard flatstate.ShardUID)
	RemoveAllDeltas(shard flatstate.ShardUID)
	// RemoveFlatStorage tears down status, values and deltas for shard.
	RemoveFlatStorage(shard flatstate.ShardUID)
	Commit() error
	// Discard abandons the batch without applying it. Safe to call after Commit.
	Discard()
}

// Store is the contract the split engine and witness pipeline consume
// from the underlying key-value engine.
type Store interface {
	GetStatus(shard flatstate.ShardUID) (flatstate.Status, error)
	// Iter returns an ordered iterator over shard's base mapping, strictly
	// excluding deltas.
	Iter(shard flatstate.ShardUID) (Iterator, error)
	// GetDelta returns the delta for shard at blockHash, or ok=false if none exists.
	GetDelta(shard flatstate.ShardUID, blockHash string) (flatstate.Delta, bool, error)
	// StoreUpdate opens a fresh batch.
	StoreUpdate() Update
	Close() error
}
