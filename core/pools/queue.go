package pools

import (
	"sync"
	"sync/atomic"
)

// jobQueue is the single FIFO shared by every worker. capacity 0 means
// unbounded. The mutex is held only while a job is pushed or popped.
type jobQueue struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	notFull  sync.Cond
	items    []Job
	capacity int
	closed   bool

	// pushed counts accepted jobs; it is bumped under mu with the append.
	pushed atomic.Uint64
}

func newJobQueue(capacity int) *jobQueue {
	q := &jobQueue{capacity: capacity}
	q.notEmpty.L = &q.mu
	q.notFull.L = &q.mu
	return q
}

// push appends job. With block set a full bounded queue waits for room;
// otherwise it reports ErrQueueFull.
func (q *jobQueue) push(job Job, block bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.capacity > 0 && len(q.items) >= q.capacity {
		if !block {
			return ErrQueueFull
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrPoolClosed
	}

	q.items = append(q.items, job)
	q.pushed.Add(1)
	q.notEmpty.Signal()
	return nil
}

// pop blocks until a job is available. It returns false once the queue is
// closed and drained.
func (q *jobQueue) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}

	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	if q.capacity > 0 {
		q.notFull.Signal()
	}
	return job, true
}

func (q *jobQueue) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return true
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
