package resharding

import (
	"testing"

	"github.com/cuemby/flatshard/pkg/chainlookup"
	"github.com/cuemby/flatshard/pkg/flatstate"
	"github.com/cuemby/flatshard/pkg/flatstore"
	"github.com/cuemby/flatshard/pkg/schedulerbridge"
	"github.com/cuemby/flatshard/pkg/trieroute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	trieroute.RegisterAccountParsers(map[byte]trieroute.AccountParser{
		trieroute.ColAccount:   func(key []byte) (string, error) { return string(key[1:]), nil },
		trieroute.ColAccessKey: func(key []byte) (string, error) { return string(key[1:]), nil },
	})
}

// splitLayout sends "mm"/"oo" to shard 2 and "vv" to shard 3, mirroring
// scenarios S1/S4.
type splitLayout struct {
	byAccount map[string]uint64
}

func (l splitLayout) ShardIDForAccount(accountID string) uint64 { return l.byAccount[accountID] }
func (l splitLayout) ShardUID(shardID uint64) flatstate.ShardUID {
	return flatstate.ShardUID{LayoutVersion: 1, ShardID: shardID}
}

// fakeChain returns a fixed hash list regardless of the requested
// range, since each test constructs one for the single range it drives.
type fakeChain struct {
	hashes []string
}

func (c fakeChain) BlockHashesAscending(from, to string) ([]string, error) {
	return c.hashes, nil
}

func inlineVal(b string) *flatstate.FlatStateValue {
	return &flatstate.FlatStateValue{Kind: flatstate.ValueKindInlined, Inlined: []byte(b)}
}

func accountKey(col byte, accountID string) []byte {
	return append([]byte{col}, []byte(accountID)...)
}

func delayedKey(idx byte) []byte {
	return []byte{trieroute.ColDelayedReceiptOrIndices, idx}
}

func bufferedKey(idx byte) []byte {
	return []byte{trieroute.ColBufferedReceiptIndices, idx}
}

var (
	parentShard = flatstate.ShardUID{LayoutVersion: 0, ShardID: 1}
	leftChild   = flatstate.ShardUID{LayoutVersion: 1, ShardID: 2}
	rightChild  = flatstate.ShardUID{LayoutVersion: 1, ShardID: 3}
	layout      = splitLayout{byAccount: map[string]uint64{"mm": 2, "vv": 3, "oo": 2}}
	flatHead    = flatstate.BlockInfo{Hash: "h0", Height: 10}
)

// seedParent writes parent's Ready status and the given base entries
// directly, bypassing the engine.
func seedParent(t *testing.T, store flatstore.Store, entries map[string]*flatstate.FlatStateValue) {
	t.Helper()
	batch := store.StoreUpdate()
	batch.SetStatus(parentShard, flatstate.Ready(flatHead))
	for k, v := range entries {
		batch.Set(parentShard, []byte(k), v)
	}
	require.NoError(t, batch.Commit())
}

func readAll(t *testing.T, store flatstore.Store, shard flatstate.ShardUID) map[string]flatstate.FlatStateValue {
	t.Helper()
	it, err := store.Iter(shard)
	require.NoError(t, err)
	defer it.Close()

	out := map[string]flatstate.FlatStateValue{}
	for it.Next() {
		out[string(it.Key())] = it.Value()
	}
	require.NoError(t, it.Err())
	return out
}

func newTestEngine(store flatstore.Store, chain chainlookup.ChainReader) (*Engine, *Controller) {
	controller := NewController()
	engine := New(store, controller, chain, Config{BatchSizeBytes: 4096})
	return engine, controller
}

func startEvent(blockHash string) Event {
	return Event{
		ParentShard:   parentShard,
		LeftChild:     leftChild,
		RightChild:    rightChild,
		BlockHash:     blockHash,
		PrevBlockHash: flatHead.Hash,
		NewLayout:     layout,
	}
}

// TestSplitSimple covers S1: mm/vv accounts split across two children.
func TestSplitSimple(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, map[string]*flatstate.FlatStateValue{
		string(accountKey(trieroute.ColAccount, "mm")):   inlineVal("mm"),
		string(accountKey(trieroute.ColAccount, "vv")):   inlineVal("vv"),
		string(accountKey(trieroute.ColAccessKey, "mm")): inlineVal("mm-key"),
		string(accountKey(trieroute.ColAccessKey, "vv")): inlineVal("vv-key"),
	})

	engine, controller := newTestEngine(store, fakeChain{})
	bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})

	require.NoError(t, engine.Start(startEvent(flatHead.Hash), bridge))

	left := readAll(t, store, leftChild)
	right := readAll(t, store, rightChild)
	assert.Len(t, left, 2)
	assert.Len(t, right, 2)
	assert.Equal(t, "mm", string(left[string(accountKey(trieroute.ColAccount, "mm"))].Inlined))
	assert.Equal(t, "vv", string(right[string(accountKey(trieroute.ColAccount, "vv"))].Inlined))

	parentStatus, err := store.GetStatus(parentShard)
	require.NoError(t, err)
	assert.Equal(t, flatstate.StatusEmpty, parentStatus.Kind)

	leftStatus, err := store.GetStatus(leftChild)
	require.NoError(t, err)
	assert.Equal(t, flatstate.StatusCatchingUp, leftStatus.Kind)
	assert.Equal(t, flatHead.Hash, leftStatus.TargetBlockHash)

	_, inProgress, err := engine.ParentShardAndStatus(parentShard)
	require.NoError(t, err)
	assert.False(t, inProgress)
	assert.False(t, controller.Cancelled())
}

// TestSplitBatching covers S2: a byte-size-1 budget forces one batch
// per entry, and the two account keys still land in the same children
// as in TestSplitSimple.
func TestSplitBatching(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, map[string]*flatstate.FlatStateValue{
		string(accountKey(trieroute.ColAccount, "mm")): inlineVal("mm"),
		string(accountKey(trieroute.ColAccount, "vv")): inlineVal("vv"),
	})

	controller := NewController()
	engine := New(store, controller, fakeChain{}, Config{BatchSizeBytes: 1})
	bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})

	require.NoError(t, engine.Start(startEvent(flatHead.Hash), bridge))

	left := readAll(t, store, leftChild)
	right := readAll(t, store, rightChild)
	assert.Len(t, left, 1)
	assert.Len(t, right, 1)
	assert.Equal(t, "mm", string(left[string(accountKey(trieroute.ColAccount, "mm"))].Inlined))
	assert.Equal(t, "vv", string(right[string(accountKey(trieroute.ColAccount, "vv"))].Inlined))
}

// TestSplitCancelBeforeStart covers S3: cancelling immediately after
// start rolls back to Ready with both children empty.
func TestSplitCancelBeforeStart(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, map[string]*flatstate.FlatStateValue{
		string(accountKey(trieroute.ColAccount, "mm")): inlineVal("mm"),
	})

	controller := NewController()
	engine := New(store, controller, fakeChain{}, Config{BatchSizeBytes: 4096})
	deferred := &schedulerbridge.DeferredRunner{}
	bridge := schedulerbridge.New(deferred)

	require.NoError(t, engine.Start(startEvent(flatHead.Hash), bridge))
	controller.Cancel()
	deferred.RunAll()

	parentStatus, err := store.GetStatus(parentShard)
	require.NoError(t, err)
	assert.Equal(t, flatstate.StatusReady, parentStatus.Kind)
	assert.Equal(t, flatHead, parentStatus.FlatHead)

	assert.Len(t, readAll(t, store, leftChild), 0)
	assert.Len(t, readAll(t, store, rightChild), 0)

	leftStatus, err := store.GetStatus(leftChild)
	require.NoError(t, err)
	assert.Equal(t, flatstate.StatusEmpty, leftStatus.Kind)
}

// TestSplitWithDeltas covers S4: deltas across two blocks, including
// updates and tombstones on both account and both-children/left-only columns.
func TestSplitWithDeltas(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, map[string]*flatstate.FlatStateValue{
		string(accountKey(trieroute.ColAccount, "mm")): inlineVal("mm"),
		string(accountKey(trieroute.ColAccount, "vv")): inlineVal("vv"),
	})

	delta1 := flatstate.Delta{
		BlockHash: "b1",
		Entries: []flatstate.DeltaEntry{
			{Key: accountKey(trieroute.ColAccount, "oo"), Value: inlineVal("oo")},
			{Key: accountKey(trieroute.ColAccount, "vv"), Value: inlineVal("vv-update")},
			{Key: delayedKey(0), Value: inlineVal("delayed0-0")},
			{Key: delayedKey(1), Value: inlineVal("delayed1")},
			{Key: delayedKey(0), Value: inlineVal("delayed0-1")},
			{Key: bufferedKey(0), Value: inlineVal("buffered0-0")},
			{Key: bufferedKey(1), Value: inlineVal("buffered1")},
			{Key: bufferedKey(0), Value: inlineVal("buffered0-1")},
		},
	}
	delta2 := flatstate.Delta{
		BlockHash: "b2",
		Entries: []flatstate.DeltaEntry{
			{Key: accountKey(trieroute.ColAccount, "mm"), Value: nil},
			{Key: delayedKey(1), Value: nil},
			{Key: bufferedKey(1), Value: nil},
		},
	}

	batch := store.StoreUpdate()
	batch.SetDelta(parentShard, delta1)
	batch.SetDelta(parentShard, delta2)
	require.NoError(t, batch.Commit())

	controller := NewController()
	engine := New(store, controller, fakeChain{hashes: []string{"b1", "b2"}}, Config{BatchSizeBytes: 4096})
	bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})

	require.NoError(t, engine.Start(startEvent("b2"), bridge))

	left := readAll(t, store, leftChild)
	right := readAll(t, store, rightChild)

	assert.Equal(t, "oo", string(left[string(accountKey(trieroute.ColAccount, "oo"))].Inlined))
	assert.Equal(t, "delayed0-1", string(left[string(delayedKey(0))].Inlined))
	assert.Equal(t, "buffered0-1", string(left[string(bufferedKey(0))].Inlined))
	_, hasMM := left[string(accountKey(trieroute.ColAccount, "mm"))]
	assert.False(t, hasMM)
	_, hasDelayed1 := left[string(delayedKey(1))]
	assert.False(t, hasDelayed1)
	_, hasBuffered1 := left[string(bufferedKey(1))]
	assert.False(t, hasBuffered1)

	assert.Equal(t, "vv-update", string(right[string(accountKey(trieroute.ColAccount, "vv"))].Inlined))
	assert.Equal(t, "delayed0-1", string(right[string(delayedKey(0))].Inlined))
	_, hasOOInRight := right[string(accountKey(trieroute.ColAccount, "oo"))]
	assert.False(t, hasOOInRight)
	_, hasBufferedInRight := right[string(bufferedKey(0))]
	assert.False(t, hasBufferedInRight)
}

// TestResumeAfterDirtyInterruption covers S5: pre-populated dirty keys
// on both children must be cleared before the replay lands.
func TestResumeAfterDirtyInterruption(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, map[string]*flatstate.FlatStateValue{
		string(accountKey(trieroute.ColAccount, "mm")): inlineVal("mm"),
		string(accountKey(trieroute.ColAccount, "vv")): inlineVal("vv"),
	})

	dirtyKey := []byte{1, 2, 3, 4}
	dirtyVal := &flatstate.FlatStateValue{Kind: flatstate.ValueKindInlined, Inlined: dirtyKey}

	sp := flatstate.SplittingParent{
		LeftChild:     leftChild,
		RightChild:    rightChild,
		BlockHash:     flatHead.Hash,
		PrevBlockHash: flatHead.Hash,
		FlatHead:      flatHead,
	}
	batch := store.StoreUpdate()
	batch.SetStatus(parentShard, flatstate.ReshardingSplittingParent(sp))
	batch.SetStatus(leftChild, flatstate.ReshardingCreatingChild())
	batch.SetStatus(rightChild, flatstate.ReshardingCreatingChild())
	batch.Set(leftChild, dirtyKey, dirtyVal)
	batch.Set(rightChild, dirtyKey, dirtyVal)
	require.NoError(t, batch.Commit())

	controller := NewController()
	engine := New(store, controller, fakeChain{}, Config{BatchSizeBytes: 4096})
	bridge := schedulerbridge.New(schedulerbridge.SyncRunner{})

	status, err := store.GetStatus(parentShard)
	require.NoError(t, err)
	require.NoError(t, engine.Resume(parentShard, status, layout, bridge))

	left := readAll(t, store, leftChild)
	right := readAll(t, store, rightChild)
	assert.Len(t, left, 1)
	assert.Len(t, right, 1)
	_, leftDirty := left[string(dirtyKey)]
	_, rightDirty := right[string(dirtyKey)]
	assert.False(t, leftDirty)
	assert.False(t, rightDirty)
}

// TestStartFailsWhileInProgress covers P1: start refuses a second
// concurrent split while SplittingParent is active.
func TestStartFailsWhileInProgress(t *testing.T) {
	store := flatstore.NewMemStore()
	seedParent(t, store, nil)

	controller := NewController()
	engine := New(store, controller, fakeChain{}, Config{BatchSizeBytes: 4096})
	deferred := &schedulerbridge.DeferredRunner{}
	bridge := schedulerbridge.New(deferred)

	require.NoError(t, engine.Start(startEvent(flatHead.Hash), bridge))

	_, inProgress, err := engine.ParentShardAndStatus(parentShard)
	require.NoError(t, err)
	assert.True(t, inProgress)

	err = engine.Start(startEvent(flatHead.Hash), bridge)
	assert.ErrorIs(t, err, ErrAlreadyInProgress)

	deferred.RunAll()
}
