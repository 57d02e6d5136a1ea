package async

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/chat-runtime/errors"
)

func TestOperation_CancelBeforeStart(t *testing.T) {
	rt := New(Config{Workers: 1})
	defer rt.Close()

	// Occupy the only worker so the next operation stays queued.
	gate := make(chan struct{})
	blocker := rt.Spawn(context.Background(), "blocker", func(ctx context.Context) (any, error) {
		<-gate
		return nil, nil
	})

	queued := rt.Spawn(context.Background(), "queued", func(ctx context.Context) (any, error) {
		t.Error("canceled-before-start operation must never run")
		return nil, nil
	})

	queued.Cancel()
	close(gate)

	if _, err := queued.Await(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Await error = %v, want ErrCanceled", err)
	}
	if queued.State() != StateCanceled {
		t.Fatalf("State = %v, want canceled", queued.State())
	}
	if _, err := blocker.Await(context.Background()); err != nil {
		t.Fatalf("blocker failed: %v", err)
	}
}

func TestOperation_CancelRunning(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	started := make(chan struct{})
	op := rt.Spawn(context.Background(), "running", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	op.Cancel()

	if _, err := op.Await(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Await error = %v, want ErrCanceled", err)
	}
	if op.State() != StateCanceled {
		t.Fatalf("State = %v, want canceled", op.State())
	}
}

func TestOperation_CancelAfterComplete(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	op := rt.Spawn(context.Background(), "done", func(ctx context.Context) (any, error) {
		return "kept", nil
	})
	if _, err := op.Await(context.Background()); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	// Cancel after completion is a no-op; the result stands.
	op.Cancel()
	v, err := op.Await(context.Background())
	if err != nil || v != "kept" {
		t.Fatalf("Result changed after late cancel: v=%v err=%v", v, err)
	}
	if op.State() != StateCompleted {
		t.Fatalf("State = %v, want completed", op.State())
	}
}

func TestOperation_LateResultDiscarded(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	// The operation ignores its context, simulating work past the point of
	// no return that finishes after cancellation.
	started := make(chan struct{})
	gate := make(chan struct{})
	finished := make(chan struct{})
	op := rt.Spawn(context.Background(), "stubborn", func(ctx context.Context) (any, error) {
		close(started)
		<-gate
		defer close(finished)
		return "too late", nil
	})

	<-started
	op.Cancel()

	if _, err := op.Await(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Await error = %v, want ErrCanceled", err)
	}

	close(gate)
	<-finished

	// The late value never replaces the canceled outcome.
	if v, err := op.Await(context.Background()); !errors.Is(err, ErrCanceled) || v != nil {
		t.Fatalf("Late result leaked through: v=%v err=%v", v, err)
	}
	if op.State() != StateCanceled {
		t.Fatalf("State = %v, want canceled", op.State())
	}
}

func TestOperation_ParentContextCancels(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	op := rt.Spawn(ctx, "child", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	cancel()

	if _, err := op.Await(context.Background()); !errors.Is(err, ErrCanceled) {
		t.Fatalf("Await error = %v, want ErrCanceled", err)
	}
	if op.State() != StateCanceled {
		t.Fatalf("State = %v, want canceled", op.State())
	}
}

func TestOperation_AwaitContextBoundsWaitOnly(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	gate := make(chan struct{})
	op := rt.Spawn(context.Background(), "slow", func(ctx context.Context) (any, error) {
		<-gate
		return "eventually", nil
	})

	waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := op.Await(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Await error = %v, want deadline exceeded", err)
	}

	// Abandoning the wait did not cancel the operation.
	close(gate)
	v, err := op.Await(context.Background())
	if err != nil || v != "eventually" {
		t.Fatalf("Operation was disturbed by abandoned Await: v=%v err=%v", v, err)
	}
}

func TestOperation_MultipleAwaiters(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	op := rt.Spawn(context.Background(), "shared", func(ctx context.Context) (any, error) {
		return 7, nil
	})

	for i := 0; i < 3; i++ {
		v, err := op.Await(context.Background())
		if err != nil || v != 7 {
			t.Fatalf("Awaiter %d: v=%v err=%v", i, v, err)
		}
	}
}
