package witness

import (
	"sync"

	"github.com/cuemby/flatshard/pkg/wire"
)

// assembly is the per-production-key reassembly state: a sparse map of
// received parts, keyed by part_ord, plus the sizing recorded on the
// first part seen for that key.
type assembly struct {
	parts         map[int][]byte
	n             int
	dataShards    int
	encodedLength int
	done          bool
}

// Tracker reassembles a Reed-Solomon-coded payload from a sparse set of
// parts, one assembly slot per ChunkProductionKey. It holds no network
// or signing knowledge: callers validate signature, production key,
// and validator assignment before handing a part to ReceivePart.
type Tracker struct {
	mu         sync.Mutex
	cache      *EncoderCache
	assemblies map[wire.ProductionKey]*assembly
	settled    map[wire.ProductionKey]bool // completed or evicted; never reopened
}

// NewTracker builds an empty reassembly tracker over cache.
func NewTracker(cache *EncoderCache) *Tracker {
	return &Tracker{
		cache:      cache,
		assemblies: make(map[wire.ProductionKey]*assembly),
		settled:    make(map[wire.ProductionKey]bool),
	}
}

// ReceivePart records one already-validated part. Once at least
// dataShards distinct parts are present for key, it RS-decodes,
// truncates to encodedLength, decompresses, and returns the assembled
// payload with assembled=true, dropping the slot. A part for an
// already-assembled or already-evicted key is a no-op: settlement is
// permanent, so late duplicates never re-trigger assembly.
func (t *Tracker) ReceivePart(key wire.ProductionKey, part wire.PartialWitnessPart, n, dataShards int) (payload []byte, assembled bool, err error) {
	if part.PartOrd < 0 || part.PartOrd >= n {
		return nil, false, ErrInvalidPart
	}
	if len(part.Data) > part.EncodedLength {
		return nil, false, ErrInvalidPart
	}

	t.mu.Lock()
	if t.settled[key] {
		t.mu.Unlock()
		return nil, false, nil
	}

	a, ok := t.assemblies[key]
	if !ok {
		a = &assembly{parts: make(map[int][]byte), n: n, dataShards: dataShards, encodedLength: part.EncodedLength}
		t.assemblies[key] = a
	}
	a.parts[part.PartOrd] = part.Data
	ready := len(a.parts) >= a.dataShards
	var partsCopy map[int][]byte
	if ready {
		partsCopy = make(map[int][]byte, len(a.parts))
		for k, v := range a.parts {
			partsCopy[k] = v
		}
		t.settled[key] = true
		delete(t.assemblies, key)
	}
	t.mu.Unlock()

	if !ready {
		return nil, false, nil
	}

	decoded, err := Decode(t.cache, partsCopy, a.n, a.encodedLength)
	if err != nil {
		return nil, false, ErrAssemblyFailed
	}
	return decoded, true, nil
}

// Evict drops the assembly slot for key without decoding, permanently
// settling it, matching "Discard the assembly slot on success or
// explicit eviction."
func (t *Tracker) Evict(key wire.ProductionKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.assemblies, key)
	t.settled[key] = true
}

// Pending reports how many parts are currently held for key (0 if
// there is no active assembly), for observability/tests.
func (t *Tracker) Pending(key wire.ProductionKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.assemblies[key]
	if !ok {
		return 0
	}
	return len(a.parts)
}
