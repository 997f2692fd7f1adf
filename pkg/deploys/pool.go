// Package deploys implements the contract-deploy analog of the witness
// pipeline: Reed-Solomon parts assembled back into a contract batch,
// then handed to a bounded pool of compilation workers, mirroring the
// teacher's goroutine-per-task-with-channel-signaling worker shape.
package deploys

import "sync"

// CompilationPool runs precompilation jobs on a fixed number of
// worker goroutines fed by a buffered channel, so an unbounded burst
// of assembled deploy batches can't spawn unbounded goroutines.
type CompilationPool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// NewCompilationPool starts workers goroutines draining a queue sized
// to keep a few batches of slack before Submit blocks.
func NewCompilationPool(workers int) *CompilationPool {
	p := &CompilationPool{jobs: make(chan func(), workers*4)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *CompilationPool) run() {
	defer p.wg.Done()
	for job := range p.jobs {
		job()
	}
}

// Submit enqueues job. It blocks if every worker is busy and the queue
// is full, providing backpressure instead of unbounded growth.
func (p *CompilationPool) Submit(job func()) {
	p.jobs <- job
}

// Stop closes the job queue and waits for in-flight jobs to finish.
func (p *CompilationPool) Stop() {
	close(p.jobs)
	p.wg.Wait()
}
