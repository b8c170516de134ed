package async

import (
	"errors"
	"sync"
)

// ErrQueueClosed is the error of operations submitted to a closed Queue.
var ErrQueueClosed = errors.New("queue is closed")

// Queue executes submitted operations one at a time, in the order of their
// submission, on a single background goroutine.
type Queue struct {
	mu     sync.Mutex
	closed bool
	ops    chan queued
	exitCh chan struct{}
}

type queued struct {
	fn     func() error
	result *AsyncOperation
}

// NewQueue returns a Queue which buffers up to |size| pending operations.
// Submit blocks while the buffer is full.
func NewQueue(size int) *Queue {
	var q = &Queue{
		ops:    make(chan queued, size),
		exitCh: make(chan struct{}),
	}
	go q.serve()
	return q
}

// Submit |fn| for execution after all previously submitted operations.
// The returned OpFuture resolves with the error of |fn|.
func (q *Queue) Submit(fn func() error) OpFuture {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return FinishedOperation(ErrQueueClosed)
	}
	var op = queued{fn: fn, result: NewAsyncOperation()}
	q.ops <- op
	return op.result
}

// Close the Queue, blocking until previously submitted operations complete.
// Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ops)
	}
	q.mu.Unlock()

	<-q.exitCh
}

func (q *Queue) serve() {
	defer close(q.exitCh)

	for op := range q.ops {
		op.result.Resolve(op.fn())
	}
}
