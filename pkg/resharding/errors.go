package resharding

import "errors"

var (
	// ErrAlreadyInProgress is returned by Start/Resume when the
	// process-wide resharding-event slot is already occupied.
	ErrAlreadyInProgress = errors.New("resharding: a split is already in progress")

	// ErrParentNotReady is returned by Start when the parent shard's
	// status is not Ready.
	ErrParentNotReady = errors.New("resharding: parent shard is not ready")

	// ErrInvariantViolation marks a fatal routing failure: an empty
	// key, an unroutable account, or an unknown column tag.
	ErrInvariantViolation = errors.New("resharding: invariant violation")

	// ErrCancelled marks a task that was cancelled before it ran to
	// completion. It is not propagated as a Go error from
	// SplitShardTask (which returns a Result instead); it exists for
	// callers that want to classify a Result in error-handling code.
	ErrCancelled = errors.New("resharding: split task was cancelled")
)
