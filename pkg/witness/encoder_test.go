package witness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardCounts(t *testing.T) {
	data, parity := shardCounts(10, 0.6)
	assert.Equal(t, 6, data)
	assert.Equal(t, 4, parity)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for bulk: " +
		"the quick brown fox jumps over the lazy dog")

	parts, encodedLength, err := Encode(cache, payload, 10)
	require.NoError(t, err)
	require.Len(t, parts, 10)

	subset := map[int][]byte{0: parts[0], 2: parts[2], 4: parts[4], 5: parts[5], 7: parts[7], 9: parts[9]}
	decoded, err := Decode(cache, subset, 10, encodedLength)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

// TestDecodeFailsWithFewerThanDataShards covers P8's negative half:
// fewer than `data` parts never yields a decode.
func TestDecodeFailsWithFewerThanDataShards(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	payload := []byte("short payload")

	parts, encodedLength, err := Encode(cache, payload, 10)
	require.NoError(t, err)

	subset := map[int][]byte{0: parts[0], 1: parts[1]}
	_, err = Decode(cache, subset, 10, encodedLength)
	assert.Error(t, err)
}

func TestEncoderCacheReusesEncoderPerN(t *testing.T) {
	cache := NewEncoderCache(0.6, "test")
	enc1, data1, err := cache.For(10)
	require.NoError(t, err)
	enc2, data2, err := cache.For(10)
	require.NoError(t, err)

	assert.Equal(t, data1, data2)
	assert.Same(t, enc1, enc2)
}
