// Package resharding drives the batched copy that decomposes a parent
// shard's flat storage into two children, owning the state machine,
// post-processing, and rollback described by the flat storage
// resharder.
package resharding

import (
	"fmt"
	"time"

	"github.com/cuemby/flatshard/pkg/chainlookup"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/flatstore"
	"github.com/cuemby/flatshard/pkg/log"
	"github.com/cuemby/flatshard/pkg/mergeiter"
	"github.com/cuemby/flatshard/pkg/metrics"
	"github.com/cuemby/flatshard/pkg/schedulerbridge"
	"github.com/cuemby/flatshard/pkg/trieroute"
	"github.com/rs/zerolog"
)

// Outcome is the three-way result of running a split task to
// completion.
type Outcome int

const (
	Successful Outcome = iota
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Successful:
		return "successful"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is returned by SplitShardTask.
type Result struct {
	Outcome        Outcome
	NumBatchesDone int
}

// Config holds the batched-copy tuning knobs.
type Config struct {
	BatchSizeBytes int
	BatchDelay     time.Duration
}

// Engine is the Split Engine: it drives start, resume, and the
// background task body against a flat store and a shared cancellation
// controller.
type Engine struct {
	store      flatstore.Store
	controller *Controller
	chain      chainlookup.ChainReader
	config     Config
	logger     zerolog.Logger

	// OnOutcome, if set, is called after a split task's outcome has
	// landed on disk but before the event slot is cleared. Optional;
	// wired by node to publish lifecycle events.
	OnOutcome func(Event, Result)
}

// New builds a Split Engine.
func New(store flatstore.Store, controller *Controller, chain chainlookup.ChainReader, config Config) *Engine {
	return &Engine{
		store:      store,
		controller: controller,
		chain:      chain,
		config:     config,
		logger:     log.WithComponent("split-engine"),
	}
}

// Start begins a split: it flips the parent and both children's
// status in one atomic batch and hands the task off to bridge.
func (e *Engine) Start(event Event, bridge *schedulerbridge.Bridge) error {
	if err := e.controller.Reserve(); err != nil {
		return err
	}

	status, err := e.store.GetStatus(event.ParentShard)
	if err != nil {
		e.controller.Release()
		return fmt.Errorf("resharding: reading parent status: %w", err)
	}
	if status.Kind != flatstate.StatusReady {
		e.controller.Release()
		return ErrParentNotReady
	}
	event.FlatHead = status.FlatHead

	sp := flatstate.SplittingParent{
		LeftChild:     event.LeftChild,
		RightChild:    event.RightChild,
		BlockHash:     event.BlockHash,
		PrevBlockHash: event.PrevBlockHash,
		FlatHead:      event.FlatHead,
	}

	batch := e.store.StoreUpdate()
	batch.SetStatus(event.ParentShard, flatstate.ReshardingSplittingParent(sp))
	batch.SetStatus(event.LeftChild, flatstate.ReshardingCreatingChild())
	batch.SetStatus(event.RightChild, flatstate.ReshardingCreatingChild())
	if err := batch.Commit(); err != nil {
		e.controller.Release()
		return fmt.Errorf("resharding: committing split-start batch: %w", err)
	}

	e.controller.Commit(event)
	e.logger.Info().
		Str("parent_shard", event.ParentShard.String()).
		Str("left_child", event.LeftChild.String()).
		Str("right_child", event.RightChild.String()).
		Msg("split started")

	bridge.Dispatch(func() { e.SplitShardTask() })
	return nil
}

// Resume is called on node restart with the shard's persisted status.
func (e *Engine) Resume(shard flatstate.ShardUID, status flatstate.Status, newLayout trieroute.ShardLayout, bridge *schedulerbridge.Bridge) error {
	switch status.Kind {
	case flatstate.StatusCreatingChild:
		return nil

	case flatstate.StatusCatchingUp:
		return nil

	case flatstate.StatusSplittingParent:
		sp := status.Splitting
		event := Event{
			ParentShard:   shard,
			LeftChild:     sp.LeftChild,
			RightChild:    sp.RightChild,
			BlockHash:     sp.BlockHash,
			PrevBlockHash: sp.PrevBlockHash,
			FlatHead:      sp.FlatHead,
			NewLayout:     newLayout,
		}

		if err := e.controller.Reserve(); err != nil {
			return err
		}

		batch := e.store.StoreUpdate()
		batch.RemoveAllValues(sp.LeftChild)
		batch.RemoveAllDeltas(sp.LeftChild)
		batch.RemoveAllValues(sp.RightChild)
		batch.RemoveAllDeltas(sp.RightChild)
		if err := batch.Commit(); err != nil {
			e.controller.Release()
			return fmt.Errorf("resharding: clearing children before resume: %w", err)
		}

		e.controller.Commit(event)
		e.logger.Info().Str("parent_shard", shard.String()).Msg("split rescheduled on resume")
		bridge.Dispatch(func() { e.SplitShardTask() })
		return nil

	default:
		return fmt.Errorf("resharding: resume called with non-resharding status %q", status.Kind)
	}
}

// SplitShardTask is the background worker body: it drains a merging
// iterator over the parent in batches, routing each entry to the
// correct child, until the stream is exhausted or cancellation is
// observed between batches.
func (e *Engine) SplitShardTask() Result {
	event, ok := e.controller.Current()
	if !ok {
		panic("resharding: split_shard_task invoked with no active resharding event")
	}

	deltas, err := mergeiter.ResolveDeltas(e.store, event.ParentShard, event.FlatHead.Hash, event.BlockHash, e.chain)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to resolve deltas")
		return e.postprocess(event, Result{Outcome: Failed})
	}

	base, err := e.store.Iter(event.ParentShard)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to open base iterator")
		return e.postprocess(event, Result{Outcome: Failed})
	}
	iter := mergeiter.New(base, deltas)
	defer iter.Close()

	numBatches := 0
	for {
		timer := metrics.NewTimer()
		outcome, exhausted, err := e.runBatch(iter, event)
		timer.ObserveDuration(metrics.ReshardingBatchDuration)

		if err != nil {
			e.logger.Error().Err(err).Msg("batch failed")
			return e.postprocess(event, Result{Outcome: Failed, NumBatchesDone: numBatches})
		}
		numBatches++
		metrics.ReshardingBatchesTotal.Inc()

		if outcome == Failed {
			return e.postprocess(event, Result{Outcome: Failed, NumBatchesDone: numBatches})
		}

		if e.controller.Cancelled() {
			return e.postprocess(event, Result{Outcome: Cancelled, NumBatchesDone: numBatches})
		}
		if exhausted {
			return e.postprocess(event, Result{Outcome: Successful, NumBatchesDone: numBatches})
		}

		time.Sleep(e.config.BatchDelay)
	}
}

// runBatch drains iter into a fresh store batch until the byte budget
// is spent, a commit point is reached, or the stream ends, then
// commits atomically. outcome is Failed on an invariant violation;
// exhausted reports whether the stream is known to be fully drained.
func (e *Engine) runBatch(iter *mergeiter.Iterator, event Event) (outcome Outcome, exhausted bool, err error) {
	batch := e.store.StoreUpdate()
	processed := 0

	for processed < e.config.BatchSizeBytes {
		if !iter.Next() {
			if iterErr := iter.Err(); iterErr != nil {
				batch.Discard()
				return Failed, false, iterErr
			}
			exhausted = true
			break
		}

		item := iter.Item()
		if item.Kind == mergeiter.KindCommitPoint {
			break
		}

		decision, routeErr := trieroute.Route(item.Key, event.NewLayout)
		if routeErr != nil {
			batch.Discard()
			e.logger.Error().Err(routeErr).Msg("invariant violation: unroutable key during split")
			return Failed, false, nil
		}

		switch decision.Kind {
		case trieroute.ToChild:
			if decision.Child != event.LeftChild && decision.Child != event.RightChild {
				batch.Discard()
				e.logger.Error().Str("shard", decision.Child.String()).Msg("invariant violation: routed key landed outside split children")
				return Failed, false, nil
			}
			batch.Set(decision.Child, item.Key, item.Value)
			metrics.ReshardingKeysRoutedTotal.WithLabelValues("to_child").Inc()

		case trieroute.ToBoth:
			batch.Set(event.LeftChild, item.Key, item.Value)
			batch.Set(event.RightChild, item.Key, item.Value)
			metrics.ReshardingKeysRoutedTotal.WithLabelValues("to_both").Inc()

		case trieroute.ToLeft:
			batch.Set(event.LeftChild, item.Key, item.Value)
			metrics.ReshardingKeysRoutedTotal.WithLabelValues("to_left").Inc()

		case trieroute.Fatal:
			batch.Discard()
			e.logger.Error().Msg("invariant violation: unroutable column during split")
			return Failed, false, nil
		}

		processed += len(item.Key) + valueSize(item.Value)
	}

	if err := batch.Commit(); err != nil {
		return Failed, false, err
	}
	return Successful, exhausted, nil
}

func valueSize(v *flatstate.FlatStateValue) int {
	if v == nil {
		return 0
	}
	return v.Size()
}

// postprocess runs unconditionally after the copy loop: it lands
// either the success transition or the rollback, then clears the
// event slot last so a new split cannot start until state is on disk.
func (e *Engine) postprocess(event Event, result Result) Result {
	batch := e.store.StoreUpdate()

	switch result.Outcome {
	case Successful:
		batch.RemoveFlatStorage(event.ParentShard)
		batch.SetStatus(event.LeftChild, flatstate.ReshardingCatchingUp(event.FlatHead.Hash))
		batch.SetStatus(event.RightChild, flatstate.ReshardingCatchingUp(event.FlatHead.Hash))
	default:
		batch.SetStatus(event.ParentShard, flatstate.Ready(event.FlatHead))
		batch.RemoveFlatStorage(event.LeftChild)
		batch.RemoveFlatStorage(event.RightChild)
	}

	if err := batch.Commit(); err != nil {
		e.logger.Fatal().Err(err).Msg("post-processing commit failed, status left inconsistent on disk")
	}

	metrics.ReshardingOutcomesTotal.WithLabelValues(result.Outcome.String()).Inc()
	e.logger.Info().
		Str("parent_shard", event.ParentShard.String()).
		Str("outcome", result.Outcome.String()).
		Int("num_batches", result.NumBatchesDone).
		Msg("split task finished")

	if e.OnOutcome != nil {
		e.OnOutcome(event, result)
	}
	e.controller.Clear()
	return result
}

// ParentShardAndStatus reports the shard's status when it names an
// in-progress split (get_parent_shard_and_status in the source).
func (e *Engine) ParentShardAndStatus(shard flatstate.ShardUID) (flatstate.Status, bool, error) {
	status, err := e.store.GetStatus(shard)
	if err != nil {
		return flatstate.Status{}, false, err
	}
	if status.Kind != flatstate.StatusSplittingParent {
		return flatstate.Status{}, false, nil
	}
	return status, true, nil
}
