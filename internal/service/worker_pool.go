package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Job is one unit of detached work. The context it receives belongs to the
// pool, not to the HTTP request that scheduled it, so completing the request
// never cancels the job.
type Job func(ctx context.Context)

// WorkerPool runs evaluation jobs on a fixed set of goroutines. Submit never
// blocks the caller: jobs beyond the queue capacity run on their own
// goroutine, so an accepted trigger is always executed.
type WorkerPool struct {
	jobs   chan Job
	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewWorkerPool starts a pool with the given number of workers and queue
// slots.
func NewWorkerPool(workers, queueSize int, logger zerolog.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize < 0 {
		queueSize = 0
	}

	root, cancel := context.WithCancel(context.Background())
	pool := &WorkerPool{
		jobs:   make(chan Job, queueSize),
		root:   root,
		cancel: cancel,
		logger: logger.With().Str("component", "worker_pool").Logger(),
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

// Submit schedules a job. It returns false only after Close, in which case
// the job is dropped.
func (p *WorkerPool) Submit(job Job) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}

	select {
	case p.jobs <- job:
		p.mu.Unlock()
	default:
		// Queue full. Run detached instead of making the caller wait.
		p.wg.Add(1)
		p.mu.Unlock()
		go func() {
			defer p.wg.Done()
			p.run(job)
		}()
	}

	return true
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		p.run(job)
	}
}

func (p *WorkerPool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("evaluation job panicked")
		}
	}()

	job(p.root)
}
