// Package schedulerbridge is the one-shot hand-off of a split task to a
// background worker. The source models this as a message carrying a
// cloned engine handle; here it is a plain closure dispatched through
// a pluggable Runner, so tests can substitute a synchronous or
// deferred runner for determinism instead of racing a goroutine.
package schedulerbridge

// Runner executes a dispatched task. Implementations decide when and
// on what goroutine the task actually runs.
type Runner interface {
	Run(task func())
}

// SyncRunner runs the task immediately, on the caller's goroutine.
// Useful in tests that want split_shard_task to complete before the
// call to Dispatch returns.
type SyncRunner struct{}

func (SyncRunner) Run(task func()) { task() }

// GoroutineRunner spawns the task on its own goroutine, matching how
// the dedicated split-task worker thread in the concurrency model
// actually runs in production.
type GoroutineRunner struct{}

func (GoroutineRunner) Run(task func()) { go task() }

// DeferredRunner captures dispatched tasks without running them,
// letting a test drive execution explicitly via RunNext/RunAll. This
// is the "capture-then-run" executor the design notes call for.
type DeferredRunner struct {
	pending []func()
}

func (d *DeferredRunner) Run(task func()) {
	d.pending = append(d.pending, task)
}

// Pending reports how many captured tasks have not yet run.
func (d *DeferredRunner) Pending() int { return len(d.pending) }

// RunNext runs the oldest captured task. It reports false if there was
// nothing pending.
func (d *DeferredRunner) RunNext() bool {
	if len(d.pending) == 0 {
		return false
	}
	task := d.pending[0]
	d.pending = d.pending[1:]
	task()
	return true
}

// RunAll runs every captured task, including ones captured by earlier
// tasks in the batch, until none remain.
func (d *DeferredRunner) RunAll() {
	for d.RunNext() {
	}
}

// Bridge dispatches one-shot tasks through its Runner.
type Bridge struct {
	runner Runner
}

// New builds a Bridge over the given runner.
func New(runner Runner) *Bridge {
	return &Bridge{runner: runner}
}

// Dispatch hands task off to the bridge's runner exactly once.
func (b *Bridge) Dispatch(task func()) {
	b.runner.Run(task)
}
