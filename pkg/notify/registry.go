// Package notify implements the ordered listener registries used by every
// observable entity of the installer (progress trackers, phase, service
// status, busy registry, subsystems).
package notify

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Listener receives a value on every change of the entity it is
// registered with. A returned error is logged and does not stop delivery
// to the remaining listeners.
type Listener[T any] func(T) error

// Handle identifies a registration so it can be removed later.
type Handle uint64

type entry[T any] struct {
	handle Handle
	fn     Listener[T]
}

// Registry keeps listeners in registration order.
type Registry[T any] struct {
	name    string
	log     logr.Logger
	mu      sync.Mutex
	next    Handle
	entries []entry[T]
}

// NewRegistry creates an empty registry. The name is used in log entries.
func NewRegistry[T any](name string, log logr.Logger) *Registry[T] {
	return &Registry[T]{
		name: name,
		log:  log,
	}
}

// Add appends a listener and returns its handle.
func (r *Registry[T]) Add(fn Listener[T]) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	r.entries = append(r.entries, entry[T]{handle: r.next, fn: fn})
	return r.next
}

// Remove unregisters the listener with the given handle.
func (r *Registry[T]) Remove(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.entries {
		if e.handle == h {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Notify calls every listener with v, in registration order, and returns
// how many of them failed. Listeners added while Notify runs are not
// called for this value.
func (r *Registry[T]) Notify(v T) int {
	r.mu.Lock()
	entries := make([]entry[T], len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	failed := 0
	for _, e := range entries {
		if err := r.call(e.fn, v); err != nil {
			failed++
			r.log.Error(err, "listener failed", "registry", r.name, "handle", e.handle)
		}
	}
	return failed
}

func (r *Registry[T]) call(fn Listener[T], v T) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener panicked: %v", p)
		}
	}()
	return fn(v)
}
