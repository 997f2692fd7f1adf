package resharding

import (
	"sync"

	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/trieroute"
)

// Event describes one in-progress split: the parent and its two
// children, the resharding block boundaries, the parent's flat head
// at the moment the split began, and the layout to route keys under.
type Event struct {
	ParentShard   flatstate.ShardUID
	LeftChild     flatstate.ShardUID
	RightChild    flatstate.ShardUID
	BlockHash     string
	PrevBlockHash string
	FlatHead      flatstate.BlockInfo
	NewLayout     trieroute.ShardLayout
}

// Controller guards the single process-wide resharding-event slot and
// the cancellation flag. The guard is held only for the duration of a
// read/set/clear; callers must never perform I/O while it is held.
type Controller struct {
	mu        sync.Mutex
	event     *Event
	reserved  bool
	cancelled bool
}

// NewController returns an empty controller: no event in progress.
func NewController() *Controller {
	return &Controller{}
}

// Reserve claims the slot ahead of the on-disk status flip, so a
// concurrent Start/Resume cannot race in between the in-progress check
// and the write. Callers must follow with Commit on success or
// Release on failure.
func (c *Controller) Reserve() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reserved || c.event != nil {
		return ErrAlreadyInProgress
	}
	c.reserved = true
	return nil
}

// Release abandons a reservation that did not make it to Commit.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reserved = false
}

// Commit finalizes a reservation into an active event and resets the
// cancellation flag.
func (c *Controller) Commit(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := event
	c.event = &e
	c.reserved = false
	c.cancelled = false
}

// Clear empties the slot, allowing a new split to start. Called once
// post-processing has landed on disk.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.event = nil
	c.reserved = false
	c.cancelled = false
}

// Current returns the active event, if any.
func (c *Controller) Current() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.event == nil {
		return Event{}, false
	}
	return *c.event, true
}

// Cancel sets the cancellation flag. Safe to call before the task
// starts: the first between-batch check will then short-circuit to
// Cancelled. A no-op once the task has already reported Successful.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = true
}

// Cancelled reports whether cancellation has been requested for the
// current event.
func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}
