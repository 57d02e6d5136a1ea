// Package async provides the background execution context for runtime
// operations.
//
// Network-bound work never runs on the caller's thread of control: it is
// spawned onto a fixed worker pool and tracked through an Operation, the
// caller-visible future. Callers either block on Await or poll the
// operation's state, so both blocking and handle-polling embedders are
// served by the same primitive.
//
// # Spawning
//
//	rt := async.New(async.Config{Workers: 4})
//	defer rt.Close()
//
//	op := rt.Spawn(ctx, "create-session", func(ctx context.Context) (any, error) {
//		return svc.CreateSession(ctx, req)
//	})
//
//	result, err := op.Await(ctx)
//
// # Completion
//
// Completion is delivered at most once per operation, and only after the
// work has fully finished; no partial result is ever observable. Errors
// crossing the Await boundary are converted into the errors package
// taxonomy.
//
// # Cancellation
//
// Cancel is safe from any goroutine at any time. An operation that has not
// started will never start; a running operation has its context canceled
// and may still complete normally if it was past the point of no return; a
// finished operation is unaffected. A result racing a cancellation is
// discarded rather than delivered late.
//
// # Panics
//
// A panic inside a spawned operation is recovered at the pool boundary,
// logged, and surfaced as an Unknown taxonomy error. A fault in one
// operation never crashes the embedding process.
package async
