// Package witness implements the Reed-Solomon encode/decode and
// reassembly pipeline shared by chunk state witnesses and contract
// deploy payloads: one encoder per observed validator-set size, cached,
// compressing with zstd before sharding and decompressing after
// reconstruction.
package witness

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/reedsolomon"
)

// shardCounts derives the data and parity shard counts for n
// validators and a data ratio in (0, 1], per spec's "data-part count
// is ceil(N * r); parity count is N - data".
func shardCounts(n int, ratio float64) (data, parity int) {
	data = int(math.Ceil(float64(n) * ratio))
	if data < 1 {
		data = 1
	}
	if data > n {
		data = n
	}
	parity = n - data
	return data, parity
}

// EncoderCache owns one reedsolomon.Encoder per observed validator-set
// size, built lazily and kept for the process lifetime. It is
// read-mostly: lookups take the read lock, and only a cache miss
// upgrades to the write lock to insert.
type EncoderCache struct {
	mu       sync.RWMutex
	ratio    float64
	pipeline string // label for EncoderCacheSize: "witness" or "deploys"
	byN      map[int]reedsolomon.Encoder
	parts    map[int]int // n -> data shard count, cached alongside the encoder
}

// NewEncoderCache builds a cache for the given data ratio (0, 1].
// pipeline labels the cache-size gauge so a witness cache and a deploys
// cache report separately.
func NewEncoderCache(ratio float64, pipeline string) *EncoderCache {
	return &EncoderCache{
		ratio:    ratio,
		pipeline: pipeline,
		byN:      make(map[int]reedsolomon.Encoder),
		parts:    make(map[int]int),
	}
}

// For returns the encoder for n validators along with its data shard
// count, building and caching it on first use.
func (c *EncoderCache) For(n int) (reedsolomon.Encoder, int, error) {
	c.mu.RLock()
	enc, ok := c.byN[n]
	data := c.parts[n]
	c.mu.RUnlock()
	if ok {
		return enc, data, nil
	}

	data, parity := shardCounts(n, c.ratio)
	built, err := reedsolomon.New(data, parity)
	if err != nil {
		return nil, 0, fmt.Errorf("witness: building reed-solomon encoder for n=%d: %w", n, err)
	}

	c.mu.Lock()
	c.byN[n] = built
	c.parts[n] = data
	size := len(c.byN)
	c.mu.Unlock()
	metrics.EncoderCacheSize.WithLabelValues(c.pipeline).Set(float64(size))

	return built, data, nil
}

// Encode compresses payload and splits it into n Reed-Solomon shards,
// returning the shards and the length of the compressed (pre-padding)
// input, which callers must carry alongside the parts so Decode knows
// where to truncate after reconstruction.
func Encode(cache *EncoderCache, payload []byte, n int) (parts [][]byte, encodedLength int, err error) {
	compressed, err := compress(payload)
	if err != nil {
		return nil, 0, err
	}

	enc, data, err := cache.For(n)
	if err != nil {
		return nil, 0, err
	}

	shards, err := enc.Split(compressed)
	if err != nil {
		return nil, 0, fmt.Errorf("witness: splitting payload into %d data shards: %w", data, err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, 0, fmt.Errorf("witness: computing parity shards: %w", err)
	}

	return shards, len(compressed), nil
}

// Decode reconstructs the original payload from a sparse set of
// shards, indexed by part_ord, given the total shard count n and the
// encoded length recorded at encode time.
func Decode(cache *EncoderCache, parts map[int][]byte, n int, encodedLength int) ([]byte, error) {
	enc, _, err := cache.For(n)
	if err != nil {
		return nil, err
	}

	shards := make([][]byte, n)
	for i, part := range parts {
		shards[i] = part
	}

	if err := enc.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("witness: reconstructing from %d parts: %w", len(parts), err)
	}

	var buf bytes.Buffer
	if err := enc.Join(&buf, shards, encodedLength); err != nil {
		return nil, fmt.Errorf("witness: joining reconstructed shards: %w", err)
	}

	return decompress(buf.Bytes())
}

func compress(payload []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("witness: building zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(payload, nil), nil
}

func decompress(payload []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("witness: building zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("witness: decompressing reconstructed payload: %w", err)
	}
	return out, nil
}
