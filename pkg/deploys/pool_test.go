package deploys

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCompilationPoolRunsSubmittedJobs(t *testing.T) {
	pool := NewCompilationPool(2)
	defer pool.Stop()

	var count int32
	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		pool.Submit(func() {
			atomic.AddInt32(&count, 1)
			done <- struct{}{}
		})
	}

	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for submitted job to run")
		}
	}
	assert.EqualValues(t, 5, atomic.LoadInt32(&count))
}

func TestCompilationPoolStopWaitsForInFlightJobs(t *testing.T) {
	pool := NewCompilationPool(1)
	started := make(chan struct{})
	finished := int32(0)
	pool.Submit(func() {
		close(started)
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})
	<-started
	pool.Stop()
	assert.EqualValues(t, 1, atomic.LoadInt32(&finished))
}
