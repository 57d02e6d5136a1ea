package async

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/chat-runtime/errors"
)

var (
	// ErrCanceled is returned from Await when the operation was canceled
	// before it produced a result.
	ErrCanceled = errors.New("operation canceled")
	// ErrClosed is returned from Await for operations spawned after the
	// runtime shut down.
	ErrClosed = errors.New("async runtime closed")
)

// State reports where an operation is in its lifecycle.
type State int32

const (
	StatePending   State = iota // queued or running
	StateCompleted              // finished with a value
	StateFailed                 // finished with an error
	StateCanceled               // canceled before completing
)

// Func is a unit of work scheduled on the runtime. It may block on network
// I/O; the context carries cancellation and deadlines.
type Func func(ctx context.Context) (any, error)

// Operation is the caller-visible future for one spawned unit of work.
// Completion is delivered at most once; a result that arrives after
// cancellation is discarded.
type Operation struct {
	name   string
	fn     Func
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	state  atomic.Int32

	// value and err are written once, by whichever of complete/Cancel wins
	// the state transition, strictly before done is closed.
	value any
	err   error
}

// Name returns the label the operation was spawned with.
func (o *Operation) Name() string { return o.name }

// State returns the operation's current lifecycle state.
func (o *Operation) State() State { return State(o.state.Load()) }

// Done returns a channel closed when the operation finishes or is canceled.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Await blocks until the operation completes, returning its payload or the
// converted error. The context bounds the wait only; abandoning an Await
// does not cancel the operation itself.
func (o *Operation) Await(ctx context.Context) (any, error) {
	select {
	case <-o.done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cooperative cancellation. An operation that has not
// started yet will never run; a running operation has its context canceled;
// a completed operation is unaffected. Safe to call from any goroutine,
// any number of times.
func (o *Operation) Cancel() {
	if o.state.CompareAndSwap(int32(StatePending), int32(StateCanceled)) {
		o.err = ErrCanceled
		close(o.done)
		Logger().Debug("operation canceled", zap.String("operation", o.name))
	}
	o.cancel()
}

// complete records the outcome if the operation is still pending. The error
// is converted at this boundary: context cancellation folds into the
// canceled state, everything else maps onto the taxonomy.
func (o *Operation) complete(value any, err error) {
	target := StateCompleted
	if err != nil {
		err = errors.Classify(errors.Op(o.name), err)
		if errors.Is(err, context.Canceled) {
			err = ErrCanceled
			target = StateCanceled
		} else {
			target = StateFailed
		}
	}

	if !o.state.CompareAndSwap(int32(StatePending), int32(target)) {
		// Lost to Cancel; drop the late result.
		return
	}
	o.value = value
	o.err = err
	close(o.done)
}

// run executes the operation on a worker goroutine. Panics are recovered
// at this boundary and surfaced as Unknown errors so a fault inside one
// operation never takes down the host process.
func (o *Operation) run() {
	defer o.cancel()

	if o.State() != StatePending {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("operation panicked",
				zap.String("operation", o.name),
				zap.Any("panic", r))
			o.complete(nil, errors.Unknown(errors.Op(o.name), fmt.Sprintf("panic: %v", r)))
		}
	}()

	value, err := o.fn(o.ctx)
	o.complete(value, err)
}
