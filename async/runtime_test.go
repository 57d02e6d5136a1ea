package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/chat-runtime/errors"
)

func TestRuntime_SpawnAndAwait(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	op := rt.Spawn(context.Background(), "compute", func(ctx context.Context) (any, error) {
		return 42, nil
	})

	v, err := op.Await(context.Background())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if v != 42 {
		t.Fatalf("Expected 42, got %v", v)
	}
	if op.State() != StateCompleted {
		t.Fatalf("State = %v, want completed", op.State())
	}
}

func TestRuntime_ErrorConversion(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	t.Run("plain error becomes unknown", func(t *testing.T) {
		cause := errors.New("socket reset")
		op := rt.Spawn(context.Background(), "chat-send", func(ctx context.Context) (any, error) {
			return nil, cause
		})
		_, err := op.Await(context.Background())
		if !errors.IsKind(err, errors.KindUnknown) {
			t.Fatalf("Await error = %v, want unknown kind", err)
		}
		if !errors.Is(err, cause) {
			t.Error("original error should remain reachable as cause")
		}
		if op.State() != StateFailed {
			t.Fatalf("State = %v, want failed", op.State())
		}
	})

	t.Run("taxonomy error passes through", func(t *testing.T) {
		op := rt.Spawn(context.Background(), "create-session", func(ctx context.Context) (any, error) {
			return nil, errors.RetryAfter(errors.OpCreateSession, 42*time.Second)
		})
		_, err := op.Await(context.Background())
		var e *errors.Error
		if !errors.As(err, &e) || e.Kind != errors.KindRetryAfter || e.RetryAfter != 42*time.Second {
			t.Fatalf("Await error = %v, want retry_after 42s", err)
		}
	})

	t.Run("deadline becomes timeout", func(t *testing.T) {
		op := rt.Spawn(context.Background(), "submit-code", func(ctx context.Context) (any, error) {
			return nil, context.DeadlineExceeded
		})
		_, err := op.Await(context.Background())
		if !errors.IsKind(err, errors.KindTimeout) {
			t.Fatalf("Await error = %v, want timeout kind", err)
		}
	})
}

func TestRuntime_PanicBecomesUnknown(t *testing.T) {
	rt := New(Config{Workers: 2})
	defer rt.Close()

	op := rt.Spawn(context.Background(), "faulty", func(ctx context.Context) (any, error) {
		panic("native fault")
	})

	_, err := op.Await(context.Background())
	if !errors.IsKind(err, errors.KindUnknown) {
		t.Fatalf("Await error = %v, want unknown kind", err)
	}
	var e *errors.Error
	errors.As(err, &e)
	if e.Message == "" {
		t.Error("panic message should be preserved")
	}
	if op.State() != StateFailed {
		t.Fatalf("State = %v, want failed", op.State())
	}

	// The pool survives the fault.
	op2 := rt.Spawn(context.Background(), "after-fault", func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	if v, err := op2.Await(context.Background()); err != nil || v != "ok" {
		t.Fatalf("Pool did not survive panic: v=%v err=%v", v, err)
	}
}

func TestRuntime_CloseDrainsQueue(t *testing.T) {
	rt := New(Config{Workers: 1})

	var ran atomic.Int32
	ops := make([]*Operation, 0, 8)
	for i := 0; i < 8; i++ {
		op := rt.Spawn(context.Background(), "queued", func(ctx context.Context) (any, error) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
			return nil, nil
		})
		ops = append(ops, op)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if ran.Load() != 8 {
		t.Fatalf("Close drained %d operations, want 8", ran.Load())
	}
	for i, op := range ops {
		if op.State() != StateCompleted {
			t.Fatalf("op %d state = %v, want completed", i, op.State())
		}
	}
}

func TestRuntime_SpawnAfterClose(t *testing.T) {
	rt := New(Config{Workers: 2})
	rt.Close()

	op := rt.Spawn(context.Background(), "late", func(ctx context.Context) (any, error) {
		t.Error("operation spawned after close must not run")
		return nil, nil
	})

	_, err := op.Await(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Await error = %v, want ErrClosed", err)
	}
}

func TestRuntime_Concurrent(t *testing.T) {
	rt := New(Config{Workers: 4})
	defer rt.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			op := rt.Spawn(context.Background(), "worker", func(ctx context.Context) (any, error) {
				return n * 2, nil
			})
			v, err := op.Await(context.Background())
			if err != nil {
				t.Errorf("Await failed: %v", err)
				return
			}
			if v != n*2 {
				t.Errorf("Expected %d, got %v", n*2, v)
			}
		}(i)
	}
	wg.Wait()
}
