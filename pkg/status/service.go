package status

import (
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/types"
)

// ServiceStatusHolder is the idle/busy flag of one service. It rejects
// instead of queueing: TryAcquire fails while the service is busy.
type ServiceStatusHolder struct {
	emitMu    sync.Mutex
	mu        sync.RWMutex
	status    types.ServiceStatus
	listeners *notify.Registry[types.ServiceStatus]
}

// NewServiceStatusHolder creates an idle holder.
func NewServiceStatusHolder(log logr.Logger) *ServiceStatusHolder {
	return &ServiceStatusHolder{
		status:    types.StatusIdle,
		listeners: notify.NewRegistry[types.ServiceStatus]("service-status", log),
	}
}

// Get returns the current status.
func (s *ServiceStatusHolder) Get() types.ServiceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsBusy reports whether the service is busy.
func (s *ServiceStatusHolder) IsBusy() bool {
	return s.Get() == types.StatusBusy
}

// TryAcquire switches the service to busy. It returns false, without any
// change, when the service is already busy.
func (s *ServiceStatusHolder) TryAcquire() bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.status == types.StatusBusy {
		s.mu.Unlock()
		return false
	}
	s.status = types.StatusBusy
	s.mu.Unlock()

	s.listeners.Notify(types.StatusBusy)
	return true
}

// Release switches the service back to idle.
func (s *ServiceStatusHolder) Release() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	changed := s.status != types.StatusIdle
	s.status = types.StatusIdle
	s.mu.Unlock()

	if changed {
		s.listeners.Notify(types.StatusIdle)
	}
}

// OnChange registers a listener for status changes.
func (s *ServiceStatusHolder) OnChange(fn notify.Listener[types.ServiceStatus]) notify.Handle {
	return s.listeners.Add(fn)
}
