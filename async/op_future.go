// Package async implements OpFuture, a minimal API for awaiting the outcome
// of an operation which executes in the background.
package async

// OpFuture represents an operation which is executing in the background. The
// operation has completed when Done selects. Err may be invoked to determine
// whether the operation succeeded or failed.
type OpFuture interface {
	// Done selects when operation background execution has finished.
	Done() <-chan struct{}
	// Err blocks until Done() and returns the final error of the OpFuture.
	Err() error
}

// AsyncOperation is a simple, minimal implementation of the OpFuture interface.
type AsyncOperation struct {
	doneCh chan struct{} // Closed to signal operation has completed.
	err    error         // Error on operation completion.
}

// NewAsyncOperation returns a new AsyncOperation.
func NewAsyncOperation() *AsyncOperation { return &AsyncOperation{doneCh: make(chan struct{})} }

// Done selects when Resolve is called.
func (o *AsyncOperation) Done() <-chan struct{} { return o.doneCh }

// Err blocks until Resolve is called, then returns its error.
func (o *AsyncOperation) Err() error {
	<-o.Done()
	return o.err
}

// Resolve marks the AsyncOperation as completed with the given error.
// Resolve must be called exactly once.
func (o *AsyncOperation) Resolve(err error) {
	o.err = err
	close(o.doneCh)
}

// FinishedOperation is a convenience that returns an already-resolved AsyncOperation.
func FinishedOperation(err error) OpFuture {
	var op = NewAsyncOperation()
	op.Resolve(err)
	return op
}

// IsDone returns true if the OpFuture has already completed.
func IsDone(op OpFuture) bool {
	select {
	case <-op.Done():
		return true
	default:
		return false
	}
}

// All returns an OpFuture which resolves once every one of |ops| has
// resolved. Its error is the first non-nil error of |ops|, in argument order.
func All(ops ...OpFuture) OpFuture {
	var result = NewAsyncOperation()

	go func() {
		var first error
		for _, op := range ops {
			if err := op.Err(); err != nil && first == nil {
				first = err
			}
		}
		result.Resolve(first)
	}()
	return result
}
