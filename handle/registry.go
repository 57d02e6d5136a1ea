package handle

import (
	"errors"
	"io"
	"sync"
)

var (
	ErrInvalidHandle = errors.New("invalid or destroyed handle")
	ErrClosed        = errors.New("handle registry closed")
)

// Handle is an opaque reference to an object owned by a Registry.
// Handle 0 is reserved and always invalid. Values are allocated from a
// monotonic counter and never reused, so a stale handle cannot alias an
// object registered later.
type Handle uint64

// Registry owns the runtime-side objects exposed across the embedding
// boundary. Callers hold handles, never references; every use goes through
// a Guard so destruction is strictly ordered against in-flight access.
type Registry struct {
	mu      sync.Mutex
	drained *sync.Cond
	entries map[Handle]*entry
	next    Handle
	closed  bool
}

type entry struct {
	value  any
	guards uint32
	dying  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[Handle]*entry)}
	r.drained = sync.NewCond(&r.mu)
	return r
}

// Register stores a value and returns its handle. If the value implements
// io.Closer, Close runs when the handle is destroyed.
func (r *Registry) Register(value any) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}

	r.next++
	r.entries[r.next] = &entry{value: value}
	return r.next, nil
}

// Acquire resolves a handle and pins the object for the guard's lifetime.
// It fails with ErrInvalidHandle if the handle is unknown, destroyed, or
// mid-destruction.
func (r *Registry) Acquire(h Handle) (*Guard, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h]
	if !ok || e.dying {
		return nil, ErrInvalidHandle
	}

	e.guards++
	return &Guard{registry: r, handle: h, value: e.value}, nil
}

// Destroy invalidates the handle and releases the owned object. New guards
// fail immediately; Destroy waits until in-flight guards release, then runs
// teardown exactly once, outside the registry lock. Exactly one concurrent
// caller wins; the rest fail with ErrInvalidHandle.
//
// Destroy must not be called while holding a guard on the same handle.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	e, ok := r.entries[h]
	if !ok || e.dying {
		r.mu.Unlock()
		return ErrInvalidHandle
	}

	e.dying = true
	for e.guards > 0 {
		r.drained.Wait()
	}
	delete(r.entries, h)
	value := e.value
	r.mu.Unlock()

	if c, ok := value.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if !e.dying {
			n++
		}
	}
	return n
}

// Close destroys every live handle and stops accepting registrations.
// It returns the first teardown error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	handles := make([]Handle, 0, len(r.entries))
	for h := range r.entries {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	var first error
	for _, h := range handles {
		err := r.Destroy(h)
		if err != nil && !errors.Is(err, ErrInvalidHandle) && first == nil {
			first = err
		}
	}
	return first
}

// Guard pins a resolved object against concurrent destruction. Release it
// as soon as the object is no longer in use; a Destroy racing the guard
// blocks until then.
type Guard struct {
	registry *Registry
	handle   Handle
	value    any
	released bool
}

// Value returns the guarded object.
func (g *Guard) Value() any { return g.value }

// Release unpins the object. Safe to call more than once.
func (g *Guard) Release() {
	r := g.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.released {
		return
	}
	g.released = true

	if e, ok := r.entries[g.handle]; ok {
		e.guards--
		if e.guards == 0 {
			r.drained.Broadcast()
		}
	}
}

// Resolve acquires a guard and asserts the object's concrete type. A live
// handle of the wrong type fails with ErrInvalidHandle, the same class as
// any other handle misuse.
func Resolve[T any](r *Registry, h Handle) (T, *Guard, error) {
	var zero T

	g, err := r.Acquire(h)
	if err != nil {
		return zero, nil, err
	}

	v, ok := g.value.(T)
	if !ok {
		g.Release()
		return zero, nil, ErrInvalidHandle
	}
	return v, g, nil
}
