package witness

import (
	"sync"
	"time"

	"github.com/cuemby/flatshard/pkg/metrics"
)

// sentRecord is what the producer remembers about one witness it sent
// out, so it can measure RTT and fan-in completeness as acks arrive.
type sentRecord struct {
	sentAt  time.Time
	size    int
	fanOut  int
	ackedBy map[string]bool
}

// AckTracker is the producer-side ChunkStateWitnessTracker: it records
// (chunk_hash, size, fan_out) when a witness is sent, then measures RTT
// and fan-in completeness as ChunkStateWitnessAck messages arrive.
type AckTracker struct {
	mu     sync.Mutex
	byHash map[string]*sentRecord
}

// NewAckTracker returns an empty AckTracker.
func NewAckTracker() *AckTracker {
	return &AckTracker{byHash: make(map[string]*sentRecord)}
}

// RecordSent starts RTT measurement for chunkHash, to be measured
// strictly after the direct-send broadcast completes.
func (a *AckTracker) RecordSent(chunkHash string, size int, fanOut int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.byHash[chunkHash] = &sentRecord{
		sentAt:  time.Now(),
		size:    size,
		fanOut:  fanOut,
		ackedBy: make(map[string]bool),
	}
}

// RecordAck records one validator's ack, observes RTT into the
// witness-ack-RTT histogram, and reports whether every expected
// validator has now acked (fan-in complete).
func (a *AckTracker) RecordAck(chunkHash, validatorID string) (rtt time.Duration, complete bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, found := a.byHash[chunkHash]
	if !found {
		return 0, false, false
	}

	rtt = time.Since(rec.sentAt)
	metrics.WitnessAckRTT.Observe(rtt.Seconds())
	rec.ackedBy[validatorID] = true

	complete = len(rec.ackedBy) >= rec.fanOut
	if complete {
		delete(a.byHash, chunkHash)
	}
	return rtt, complete, true
}

// Pending reports how many distinct validators have acked chunkHash so
// far (0 if unknown), for tests.
func (a *AckTracker) Pending(chunkHash string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.byHash[chunkHash]
	if !ok {
		return 0
	}
	return len(rec.ackedBy)
}
