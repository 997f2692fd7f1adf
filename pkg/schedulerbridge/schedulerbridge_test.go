package schedulerbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncRunnerRunsImmediately(t *testing.T) {
	ran := false
	bridge := New(SyncRunner{})
	bridge.Dispatch(func() { ran = true })
	assert.True(t, ran)
}

func TestDeferredRunnerCapturesUntilRun(t *testing.T) {
	ran := false
	runner := &DeferredRunner{}
	bridge := New(runner)

	bridge.Dispatch(func() { ran = true })
	assert.False(t, ran)
	assert.Equal(t, 1, runner.Pending())

	assert.True(t, runner.RunNext())
	assert.True(t, ran)
	assert.Equal(t, 0, runner.Pending())
}

func TestDeferredRunnerRunAllDrainsChainedDispatches(t *testing.T) {
	var order []int
	runner := &DeferredRunner{}
	bridge := New(runner)

	bridge.Dispatch(func() {
		order = append(order, 1)
		bridge.Dispatch(func() { order = append(order, 2) })
	})

	runner.RunAll()
	assert.Equal(t, []int{1, 2}, order)
}

func TestGoroutineRunnerRunsAsynchronously(t *testing.T) {
	done := make(chan struct{})
	bridge := New(GoroutineRunner{})
	bridge.Dispatch(func() { close(done) })
	<-done
}
