package async

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Config controls the runtime's worker pool.
type Config struct {
	// Workers is the number of pool goroutines executing operations.
	// Defaults to NumCPU, with a floor of 2.
	Workers int
}

// Runtime executes spawned operations on a fixed background worker pool,
// keeping blocking network work off the caller's thread of control.
type Runtime struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*Operation
	closed bool
	wg     sync.WaitGroup
}

// New starts the worker pool.
func New(cfg Config) *Runtime {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers < 2 {
			workers = 2
		}
	}

	r := &Runtime{}
	r.cond = sync.NewCond(&r.mu)

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.worker()
	}

	Logger().Debug("async runtime started", zap.Int("workers", workers))
	return r
}

// Spawn schedules fn on the pool and returns its operation handle
// immediately. The context becomes the operation's parent: canceling it
// cancels the operation. Spawning on a closed runtime yields an operation
// that has already failed with ErrClosed.
func (r *Runtime) Spawn(ctx context.Context, name string, fn Func) *Operation {
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		name:   name,
		fn:     fn,
		ctx:    opCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		op.complete(nil, ErrClosed)
		return op
	}
	r.queue = append(r.queue, op)
	r.cond.Signal()
	r.mu.Unlock()

	Logger().Debug("operation spawned", zap.String("operation", name))
	return op
}

// Close stops accepting new operations, runs everything already queued to
// completion, and waits for the workers to exit.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func (r *Runtime) worker() {
	defer r.wg.Done()

	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return
		}
		op := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		op.run()
	}
}
