// Package mergeiter replays a shard's base flat storage followed by the
// deltas between its flat head and a target block, in ascending height
// order, with explicit commit-point markers between delta transactions.
// It is written as a hand-rolled state machine over an explicit sum
// type (Entry | CommitPoint) rather than a chain of lazy iterators, so
// the commit-point semantics stay locally visible to the reader.
package mergeiter

import (
	"fmt"

	"github.com/cuemby/flatshard/pkg/chainlookup"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/flatstore"
)

// Kind distinguishes an ordinary entry from a commit-point marker.
type Kind int

const (
	KindEntry Kind = iota
	KindCommitPoint
)

// Item is one element of the merged stream. Value is nil both for a
// CommitPoint and for a tombstone entry; callers distinguish the two
// cases by Kind.
type Item struct {
	Kind  Kind
	Key   []byte
	Value *flatstate.FlatStateValue
}

type phase int

const (
	phaseBase phase = iota
	phaseDeltaCommit
	phaseDeltaEntries
	phaseDone
)

// Iterator is the merged (key, value-or-tombstone) stream described by
// the construction in the resharding design: base mapping first, then
// each delta in ascending height order behind its own commit point.
type Iterator struct {
	base   flatstore.Iterator
	deltas []flatstate.Delta

	phase    phase
	deltaIdx int
	entryIdx int
	cur      Item
	err      error
}

// New builds a merging iterator from an already-open base iterator and
// the ordered sequence of deltas to replay over it. deltas must already
// be in ascending height order; ResolveDeltas produces such a slice.
func New(base flatstore.Iterator, deltas []flatstate.Delta) *Iterator {
	return &Iterator{base: base, deltas: deltas}
}

// ResolveDeltas walks the chain from flatHead (exclusive) to
// blockHash (inclusive) and loads the corresponding delta for shard at
// each height, in ascending order. A block in that range with no
// stored delta is treated as storage inconsistency: it is fatal rather
// than silently skipped, since every block in a shard's active range
// is expected to have produced one.
func ResolveDeltas(store flatstore.Store, shard flatstate.ShardUID, flatHead, blockHash string, chain chainlookup.ChainReader) ([]flatstate.Delta, error) {
	hashes, err := chain.BlockHashesAscending(flatHead, blockHash)
	if err != nil {
		return nil, fmt.Errorf("mergeiter: resolving chain range: %w", err)
	}

	deltas := make([]flatstate.Delta, 0, len(hashes))
	for _, h := range hashes {
		delta, ok, err := store.GetDelta(shard, h)
		if err != nil {
			return nil, fmt.Errorf("mergeiter: loading delta for block %s: %w", h, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: missing delta for block %s in shard %s", flatstore.ErrInconsistent, h, shard)
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

// Next advances the iterator. It returns false once the stream is
// exhausted or an error has occurred; callers must check Err after a
// false return to distinguish the two.
func (it *Iterator) Next() bool {
	switch it.phase {
	case phaseBase:
		if it.base.Next() {
			v := it.base.Value()
			it.cur = Item{Kind: KindEntry, Key: it.base.Key(), Value: &v}
			return true
		}
		if err := it.base.Err(); err != nil {
			it.err = fmt.Errorf("mergeiter: reading base iterator: %w", err)
			it.phase = phaseDone
			return false
		}
		it.phase = phaseDeltaCommit
		return it.Next()

	case phaseDeltaCommit:
		if it.deltaIdx >= len(it.deltas) {
			it.phase = phaseDone
			return false
		}
		it.cur = Item{Kind: KindCommitPoint}
		it.entryIdx = 0
		it.phase = phaseDeltaEntries
		return true

	case phaseDeltaEntries:
		entries := it.deltas[it.deltaIdx].Entries
		if it.entryIdx >= len(entries) {
			it.deltaIdx++
			it.phase = phaseDeltaCommit
			return it.Next()
		}
		e := entries[it.entryIdx]
		it.entryIdx++
		it.cur = Item{Kind: KindEntry, Key: e.Key, Value: e.Value}
		return true

	default:
		return false
	}
}

// Item returns the current element. Valid only after Next returns true.
func (it *Iterator) Item() Item { return it.cur }

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the underlying base iterator.
func (it *Iterator) Close() error {
	if it.base == nil {
		return nil
	}
	return it.base.Close()
}
