// Package status holds the small observable values shared between the
// manager, the backend subsystems and the transport adapters.
package status

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/types"
)

// PhaseHolder stores the installation phase. Listeners are only notified
// when the value actually changes.
type PhaseHolder struct {
	emitMu    sync.Mutex
	mu        sync.RWMutex
	phase     types.Phase
	listeners *notify.Registry[types.Phase]
}

// NewPhaseHolder creates a holder in the startup phase.
func NewPhaseHolder(log logr.Logger) *PhaseHolder {
	return &PhaseHolder{
		phase:     types.PhaseStartup,
		listeners: notify.NewRegistry[types.Phase]("phase", log),
	}
}

// Get returns the current phase.
func (h *PhaseHolder) Get() types.Phase {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.phase
}

// Set updates the phase and reports whether it changed.
func (h *PhaseHolder) Set(p types.Phase) bool {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	changed := h.phase != p
	h.phase = p
	h.mu.Unlock()

	if changed {
		h.listeners.Notify(p)
	}
	return changed
}

// OnChange registers a listener for phase changes.
func (h *PhaseHolder) OnChange(fn notify.Listener[types.Phase]) notify.Handle {
	return h.listeners.Add(fn)
}
