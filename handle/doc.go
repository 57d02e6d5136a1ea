// Package handle provides the registry that owns runtime objects exposed
// across the embedding boundary.
//
// Embedding callers never hold references to runtime objects; they hold
// opaque integer handles. The registry maps handles to the live objects,
// enforces single-owner destruction, and orders every use strictly against
// destruction.
//
// # Handles
//
// Handles are allocated from a process-wide monotonic counter and never
// reused. Handle 0 is reserved and always invalid. Resolving a destroyed
// handle fails with ErrInvalidHandle forever; it can never silently reach
// an object registered later.
//
// # Scoped acquisition
//
// Every operation on a handle acquires a guard around the use:
//
//	conn, guard, err := handle.Resolve[*chat.Connection](reg, h)
//	if err != nil {
//		return err
//	}
//	defer guard.Release()
//	// conn stays valid here even if another goroutine calls Destroy
//
// A Destroy racing outstanding guards blocks until they release, so code
// inside a guard never observes a partially destroyed object. New guards
// requested after Destroy begins fail immediately.
//
// # Destruction
//
// Destroy succeeds exactly once per handle. If the registered value
// implements io.Closer, its Close runs during Destroy, after the guards
// drain and outside the registry lock, so teardown may block on network
// I/O without stalling the rest of the registry.
package handle
