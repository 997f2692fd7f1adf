package network

import (
	"context"
	"fmt"
	"sync"
)

// Sender delivers one wire message to a single peer over whatever
// reliable unicast transport the deployment provides. Implementations
// are expected to retry transient failures internally; Send returning
// an error means delivery is given up on.
type Sender interface {
	Send(ctx context.Context, peerID string, msg any) error
}

// Multicast sends msg to every peer in peerIDs, skipping any peer
// equal to exclude (the owner-forward rule's "excluding the originating
// chunk producer"). It returns the first error encountered but keeps
// sending to the remaining peers.
func Multicast(ctx context.Context, sender Sender, peerIDs []string, exclude string, msg any) error {
	var firstErr error
	for _, peerID := range peerIDs {
		if peerID == exclude {
			continue
		}
		if err := sender.Send(ctx, peerID, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("network: sending to peer %s: %w", peerID, err)
		}
	}
	return firstErr
}

// Recorder is an in-memory Sender test double: it appends every send to
// a per-peer inbox instead of touching real transport, the same
// map-plus-mutex shape the teacher uses for its scheduler's in-memory
// task tracking.
type Recorder struct {
	mu     sync.Mutex
	inbox  map[string][]any
	failAt map[string]error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		inbox:  make(map[string][]any),
		failAt: make(map[string]error),
	}
}

// FailFor makes subsequent sends to peerID return err instead of
// recording the message.
func (r *Recorder) FailFor(peerID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAt[peerID] = err
}

func (r *Recorder) Send(_ context.Context, peerID string, msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.failAt[peerID]; ok {
		return err
	}
	r.inbox[peerID] = append(r.inbox[peerID], msg)
	return nil
}

// Inbox returns a copy of the messages recorded for peerID.
func (r *Recorder) Inbox(peerID string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.inbox[peerID]))
	copy(out, r.inbox[peerID])
	return out
}

// Clear empties peerID's inbox, letting a test driver drain messages
// in rounds without reprocessing ones it already delivered.
func (r *Recorder) Clear(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inbox, peerID)
}
