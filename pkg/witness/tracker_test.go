package witness

import (
	"testing"

	"github.com/cuemby/flatshard/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAssemblesOnceDataShardsReceived(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	key := wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 100}
	payload := []byte("payload for reassembly test, long enough to split meaningfully across shards")

	parts, encodedLength, err := Encode(cache, payload, 10)
	require.NoError(t, err)

	tracker := NewTracker(cache)
	_, dataShards, err := cache.For(10)
	require.NoError(t, err)

	var assembled []byte
	var gotAssembled bool
	for i := 0; i < dataShards-1; i++ {
		part := wire.PartialWitnessPart{Key: key, PartOrd: i, Data: parts[i], EncodedLength: encodedLength}
		_, ok, err := tracker.ReceivePart(key, part, 10, dataShards)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	lastIdx := dataShards - 1
	part := wire.PartialWitnessPart{Key: key, PartOrd: lastIdx, Data: parts[lastIdx], EncodedLength: encodedLength}
	assembled, gotAssembled, err = tracker.ReceivePart(key, part, 10, dataShards)
	require.NoError(t, err)
	assert.True(t, gotAssembled)
	assert.Equal(t, payload, assembled)

	assert.Equal(t, 0, tracker.Pending(key))
}

func TestTrackerRejectsOutOfRangePartOrd(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	tracker := NewTracker(cache)
	key := wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 100}

	_, _, err := tracker.ReceivePart(key, wire.PartialWitnessPart{PartOrd: 10, EncodedLength: 5}, 10, 6)
	assert.ErrorIs(t, err, ErrInvalidPart)
}

func TestTrackerRejectsOversizedData(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	tracker := NewTracker(cache)
	key := wire.ProductionKey{EpochID: "e0", ShardID: 1, HeightCreated: 100}

	part := wire.PartialWitnessPart{PartOrd: 0, Data: []byte("toolong"), EncodedLength: 3}
	_, _, err := tracker.ReceivePart(key, part, 10, 6)
	assert.ErrorIs(t, err, ErrInvalidPart)
}
