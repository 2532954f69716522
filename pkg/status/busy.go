package status

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
)

// ErrBusy is returned when a mutating operation is requested while another
// one is running on the same entity.
var ErrBusy = errors.New("busy")

// BusyRegistry is the ordered set of subsystems currently running a
// mutating operation.
type BusyRegistry struct {
	emitMu    sync.Mutex
	mu        sync.RWMutex
	names     []string
	listeners *notify.Registry[[]string]
}

// NewBusyRegistry creates an empty registry.
func NewBusyRegistry(log logr.Logger) *BusyRegistry {
	return &BusyRegistry{
		listeners: notify.NewRegistry[[]string]("busy-registry", log),
	}
}

// Mark adds name to the set. It returns false when name is already busy.
func (r *BusyRegistry) Mark(name string) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	if r.indexLocked(name) >= 0 {
		r.mu.Unlock()
		return false
	}
	r.names = append(r.names, name)
	names := r.copyLocked()
	r.mu.Unlock()

	r.listeners.Notify(names)
	return true
}

// Clear removes name from the set. It returns false when name was not busy.
func (r *BusyRegistry) Clear(name string) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	i := r.indexLocked(name)
	if i < 0 {
		r.mu.Unlock()
		return false
	}
	r.names = append(r.names[:i:i], r.names[i+1:]...)
	names := r.copyLocked()
	r.mu.Unlock()

	r.listeners.Notify(names)
	return true
}

// BusyWhile marks name busy while fn runs. The mark is always removed,
// also when fn fails or panics. A subsystem that is already busy is
// rejected with ErrBusy and fn is not called.
func (r *BusyRegistry) BusyWhile(name string, fn func() error) error {
	if !r.Mark(name) {
		return fmt.Errorf("%s: %w", name, ErrBusy)
	}
	defer r.Clear(name)

	return fn()
}

// Names returns the busy subsystems in the order they became busy.
func (r *BusyRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

// IsBusy reports whether name is in the set.
func (r *BusyRegistry) IsBusy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(name) >= 0
}

// Len returns the number of busy subsystems.
func (r *BusyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// OnChange registers a listener called with the new set after every change.
func (r *BusyRegistry) OnChange(fn notify.Listener[[]string]) notify.Handle {
	return r.listeners.Add(fn)
}

func (r *BusyRegistry) indexLocked(name string) int {
	for i, n := range r.names {
		if n == name {
			return i
		}
	}
	return -1
}

func (r *BusyRegistry) copyLocked() []string {
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}
