// Package flatstate defines the on-disk data model for a shard's flat
// storage: the status lifecycle, block references, and the value
// encoding shared by the flat store adapter, the merging iterator and
// the resharding engine.
package flatstate

import (
	"encoding/binary"
	"fmt"
)

// ShardUID identifies a shard within a specific shard-layout generation.
// Distinct layouts never collide because the layout version is part of
// the identifier.
type ShardUID struct {
	LayoutVersion uint32 `json:"layout_version"`
	ShardID       uint64 `json:"shard_id"`
}

func (u ShardUID) String() string {
	return fmt.Sprintf("s%d.v%d", u.ShardID, u.LayoutVersion)
}

// BlockInfo identifies a block on the canonical chain.
type BlockInfo struct {
	Hash     string `json:"hash"`
	Height   uint64 `json:"height"`
	PrevHash string `json:"prev_hash"`
}

// StatusKind discriminates the variants of FlatStorageStatus. Go has no
// tagged union, so the status is modeled as a kind tag plus the payload
// fields relevant to that kind, the same way the teacher pairs
// DesiredState/ActualState enums with the struct fields they govern.
type StatusKind string

const (
	StatusEmpty           StatusKind = "empty"
	StatusReady           StatusKind = "ready"
	StatusSplittingParent StatusKind = "splitting_parent"
	StatusCreatingChild   StatusKind = "creating_child"
	StatusCatchingUp      StatusKind = "catching_up"
)

// SplittingParent holds the parameters of an in-progress shard split, as
// recorded on the parent shard's status.
type SplittingParent struct {
	LeftChild     ShardUID  `json:"left_child"`
	RightChild    ShardUID  `json:"right_child"`
	BlockHash     string    `json:"block_hash"`
	PrevBlockHash string    `json:"prev_block_hash"`
	FlatHead      BlockInfo `json:"flat_head"`
}

// Status is the per-shard flat storage status. Exactly one of its kinds
// applies at a time (invariant I1); the unused payload fields for other
// kinds are left zero.
type Status struct {
	Kind StatusKind `json:"kind"`

	// Populated when Kind == StatusReady.
	FlatHead BlockInfo `json:"flat_head,omitempty"`

	// Populated when Kind == StatusSplittingParent.
	Splitting SplittingParent `json:"splitting,omitempty"`

	// Populated when Kind == StatusCatchingUp.
	TargetBlockHash string `json:"target_block_hash,omitempty"`
}

// Empty returns the Empty status.
func Empty() Status { return Status{Kind: StatusEmpty} }

// Ready returns the Ready status at the given flat head.
func Ready(flatHead BlockInfo) Status {
	return Status{Kind: StatusReady, FlatHead: flatHead}
}

// ReshardingSplittingParent returns the SplittingParent status for a parent entering a split.
func ReshardingSplittingParent(s SplittingParent) Status {
	return Status{Kind: StatusSplittingParent, Splitting: s}
}

// ReshardingCreatingChild returns the CreatingChild status for a new child shard.
func ReshardingCreatingChild() Status {
	return Status{Kind: StatusCreatingChild}
}

// ReshardingCatchingUp returns the CatchingUp status for a child awaiting catch-up.
func ReshardingCatchingUp(targetBlockHash string) Status {
	return Status{Kind: StatusCatchingUp, TargetBlockHash: targetBlockHash}
}

// DeltaEntry is a single key-level mutation applied by one block. A nil
// Value marks a tombstone (deletion).
type DeltaEntry struct {
	Key   []byte
	Value *FlatStateValue
}

// Delta is the full set of mutations a block applied to a shard's flat storage.
type Delta struct {
	BlockHash string
	Entries   []DeltaEntry
}

// ValueKind discriminates FlatStateValue's two shapes.
type ValueKind uint8

const (
	ValueKindRef ValueKind = iota
	ValueKindInlined
)

// ValueRefSize is the byte-exact encoding length of a ValueRef: 4 bytes
// little-endian length followed by a 32-byte hash.
const ValueRefSize = 36

// ValueRef is an indirect pointer into the trie: the value's length and
// a hash uniquely identifying its content.
type ValueRef struct {
	Length uint32
	Hash   [32]byte
}

// Encode serializes the ValueRef to its byte-exact 36-byte wire form.
func (r ValueRef) Encode() [ValueRefSize]byte {
	var out [ValueRefSize]byte
	binary.LittleEndian.PutUint32(out[0:4], r.Length)
	copy(out[4:36], r.Hash[:])
	return out
}

// DecodeValueRef parses a 36-byte ValueRef encoding produced by Encode.
func DecodeValueRef(b [ValueRefSize]byte) ValueRef {
	var r ValueRef
	r.Length = binary.LittleEndian.Uint32(b[0:4])
	copy(r.Hash[:], b[4:36])
	return r
}

// FlatStateValue is either an inlined byte string or a reference into
// the trie, opaque to this module beyond its length and identity.
type FlatStateValue struct {
	Kind    ValueKind
	Ref     ValueRef
	Inlined []byte
}

// ValueRefOf returns a ValueRef describing v regardless of its kind.
func (v FlatStateValue) ValueRefOf(hashFn func([]byte) [32]byte) ValueRef {
	if v.Kind == ValueKindRef {
		return v.Ref
	}
	return ValueRef{Length: uint32(len(v.Inlined)), Hash: hashFn(v.Inlined)}
}

// Size estimates the in-memory footprint used when accumulating batch
// byte budgets during resharding (spec's "processed += key.len() +
// value.size_or_zero()").
func (v FlatStateValue) Size() int {
	if v.Kind == ValueKindInlined {
		return len(v.Inlined)
	}
	return ValueRefSize
}

// OnDisk builds a FlatStateValue from a raw value, inlining it when it
// fits under threshold and otherwise storing it as a reference.
func OnDisk(value []byte, threshold int, hashFn func([]byte) [32]byte) FlatStateValue {
	if len(value) <= threshold {
		return FlatStateValue{Kind: ValueKindInlined, Inlined: append([]byte(nil), value...)}
	}
	return FlatStateValue{Kind: ValueKindRef, Ref: ValueRef{Length: uint32(len(value)), Hash: hashFn(value)}}
}
