package workerpool

import (
	"sync"
)

// Job is a unit of work submitted to a Pool.
type Job func() error

// Pool runs submitted jobs on a fixed number of worker goroutines.
// Jobs queued after Stop are discarded; in-flight jobs run to completion.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Job
	pending int
	stopped bool
	err     error
}

// New starts a pool with n workers.
func New(n int) *Pool {
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// Add queues jobs for execution.
func (p *Pool) Add(jobs []Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.queue = append(p.queue, jobs...)
	p.pending += len(jobs)
	p.cond.Broadcast()
}

// Wait blocks until all queued jobs have completed (or were discarded by
// Stop) and returns the first error encountered by any job.
func (p *Pool) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 {
		p.cond.Wait()
	}
	return p.err
}

// Stop discards queued jobs and shuts down the workers. Jobs already
// running complete normally.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.pending -= len(p.queue)
	p.queue = nil
	p.cond.Broadcast()
}

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		err := job()

		p.mu.Lock()
		if err != nil && p.err == nil {
			p.err = err
		}
		p.pending--
		if p.pending <= 0 {
			p.cond.Broadcast()
		}
		p.mu.Unlock()
	}
}
