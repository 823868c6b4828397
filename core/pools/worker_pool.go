package pools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/searchktools/mini-server/core/observability"
)

// Job is a unit of work. Each submitted job runs at most once, on exactly
// one worker.
type Job func()

var (
	ErrPoolClosed = errors.New("pools: worker pool is closed")
	ErrQueueFull  = errors.New("pools: job queue is full")
)

// WorkerState is the lifecycle position of a single worker.
type WorkerState int32

const (
	StateIdle WorkerState = iota
	StateExecuting
	StateTerminated
)

func (s WorkerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExecuting:
		return "executing"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// WorkerPool runs jobs on a fixed set of goroutines fed by one FIFO queue.
// Dequeueing is serialized; execution is fully parallel.
type WorkerPool struct {
	queue   *jobQueue
	workers []*worker
	wg      sync.WaitGroup

	queueCapacity int
	logger        zerolog.Logger
	metrics       *observability.Metrics

	// Statistics
	stats struct {
		tasksCompleted atomic.Uint64
		tasksPanicked  atomic.Uint64
	}
}

type worker struct {
	id    int
	pool  *WorkerPool
	state atomic.Int32
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithQueueCapacity bounds the queue. Execute blocks while it is full and
// TrySubmit fails with ErrQueueFull. Zero keeps the queue unbounded.
func WithQueueCapacity(n int) Option {
	return func(p *WorkerPool) {
		if n > 0 {
			p.queueCapacity = n
		}
	}
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l zerolog.Logger) Option {
	return func(p *WorkerPool) {
		p.logger = l
	}
}

// WithMetrics records job counters on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *WorkerPool) {
		p.metrics = m
	}
}

// NewWorkerPool starts size workers. A size below one is a programming
// error and panics.
func NewWorkerPool(size int, opts ...Option) *WorkerPool {
	if size < 1 {
		panic(fmt.Sprintf("pools: worker pool size must be positive, got %d", size))
	}

	p := &WorkerPool{
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.queue = newJobQueue(p.queueCapacity)
	p.workers = make([]*worker, size)

	for i := 0; i < size; i++ {
		w := &worker{id: i, pool: p}
		p.workers[i] = w
		p.wg.Add(1)
		go w.run()
	}

	return p
}

// Execute enqueues job. It returns once the job is queued, blocking only
// when a bounded queue is full. Submitting to a closed pool panics: it
// means the caller's lifecycle is broken.
func (p *WorkerPool) Execute(job Job) {
	if err := p.submit(job, true); err != nil {
		panic(fmt.Sprintf("pools: execute: %v", err))
	}
}

// TrySubmit enqueues job without blocking. It fails with ErrQueueFull when
// a bounded queue has no room and ErrPoolClosed after Close.
func (p *WorkerPool) TrySubmit(job Job) error {
	return p.submit(job, false)
}

func (p *WorkerPool) submit(job Job, block bool) error {
	if job == nil {
		panic("pools: nil job")
	}

	if err := p.queue.push(job, block); err != nil {
		return err
	}
	p.metrics.JobSubmitted(context.Background())
	return nil
}

// run is the main loop for a worker goroutine
func (w *worker) run() {
	defer w.pool.wg.Done()
	defer w.state.Store(int32(StateTerminated))

	for {
		job, ok := w.pool.queue.pop()
		if !ok {
			return // Closed and drained
		}

		w.state.Store(int32(StateExecuting))
		w.execute(job)
		w.state.Store(int32(StateIdle))
	}
}

// execute runs job behind a recover so a failing job never takes its
// worker down.
func (w *worker) execute(job Job) {
	p := w.pool
	defer func() {
		if r := recover(); r != nil {
			p.stats.tasksPanicked.Add(1)
			p.metrics.JobPanicked(context.Background())
			p.logger.Error().
				Int("worker", w.id).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("job panicked; worker recovered")
		}
		p.stats.tasksCompleted.Add(1)
		p.metrics.JobCompleted(context.Background())
	}()

	job()
}

// Close stops intake. Queued jobs still run; workers exit once the queue
// is empty. Close is idempotent.
func (p *WorkerPool) Close() {
	p.queue.close()
}

// Wait blocks until every worker has terminated.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown closes the pool and waits for the workers, giving up when ctx
// is done.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.Close()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return len(p.workers)
}

// WorkerStates returns the current state of each worker by id.
func (p *WorkerPool) WorkerStates() []WorkerState {
	states := make([]WorkerState, len(p.workers))
	for i, w := range p.workers {
		states[i] = WorkerState(w.state.Load())
	}
	return states
}

// Stats returns pool statistics
func (p *WorkerPool) Stats() WorkerPoolStats {
	s := WorkerPoolStats{
		NumWorkers:     len(p.workers),
		QueueCapacity:  p.queueCapacity,
		Queued:         p.queue.len(),
		TasksSubmitted: p.queue.pushed.Load(),
		TasksCompleted: p.stats.tasksCompleted.Load(),
		TasksPanicked:  p.stats.tasksPanicked.Load(),
	}
	if s.TasksSubmitted > s.TasksCompleted {
		s.TasksPending = s.TasksSubmitted - s.TasksCompleted
	}
	for _, st := range p.WorkerStates() {
		switch st {
		case StateIdle:
			s.Idle++
		case StateExecuting:
			s.Busy++
		case StateTerminated:
			s.Terminated++
		}
	}
	return s
}

// WorkerPoolStats contains pool statistics
type WorkerPoolStats struct {
	NumWorkers     int    `json:"workers"`
	Idle           int    `json:"idle"`
	Busy           int    `json:"busy"`
	Terminated     int    `json:"terminated"`
	QueueCapacity  int    `json:"queue_capacity"`
	Queued         int    `json:"queued"`
	TasksSubmitted uint64 `json:"tasks_submitted"`
	TasksCompleted uint64 `json:"tasks_completed"`
	TasksPanicked  uint64 `json:"tasks_panicked"`
	TasksPending   uint64 `json:"tasks_pending"`
}
