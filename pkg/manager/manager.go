package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/status"
	"github.com/tierone/installd/pkg/types"
)

var (
	// ErrBusy is returned when a phase is requested while another one runs.
	ErrBusy = status.ErrBusy

	// ErrInvalidSettings is returned by RunInstallPhase when the backend
	// reports the installation settings as incomplete.
	ErrInvalidSettings = errors.New("installation settings are invalid")
)

// Backend performs the work of each phase. Implementations drive the
// tracker they are given and report busy subsystems through the registry
// they were built with.
type Backend interface {
	ConfigPhase(ctx context.Context, tracker *progress.Tracker) error
	InstallPhase(ctx context.Context, tracker *progress.Tracker) error
	Valid() bool
}

// SubsystemError annotates a backend error with the subsystem that failed.
type SubsystemError struct {
	Name string
	Err  error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *SubsystemError) Unwrap() error {
	return e.Err
}

// BackendError is returned when the backend fails during a phase.
type BackendError struct {
	Phase     types.Phase
	Subsystem string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s phase failed: %v", e.Phase, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Manager is the installation state machine: it tracks the phase, rejects
// overlapping phase runs and delegates the work to a Backend.
type Manager struct {
	backend Backend
	log     logr.Logger
	tracker *progress.Tracker
	phase   *status.PhaseHolder
	status  *status.ServiceStatusHolder
	busy    *status.BusyRegistry
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(log logr.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// WithTracker sets the tracker handed to the backend.
func WithTracker(t *progress.Tracker) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tracker = t
		}
	}
}

// WithBusyRegistry sets the registry shared with the backend subsystems.
func WithBusyRegistry(r *status.BusyRegistry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.busy = r
		}
	}
}

// New creates a manager in the startup phase.
func New(backend Backend, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend: backend,
		log:     logr.Discard(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.tracker == nil {
		m.tracker = progress.New(progress.WithName("manager-progress"), progress.WithLogger(m.log))
	}
	if m.busy == nil {
		m.busy = status.NewBusyRegistry(m.log)
	}
	m.phase = status.NewPhaseHolder(m.log)
	m.status = status.NewServiceStatusHolder(m.log)

	return m
}

// Phase returns the current installation phase.
func (m *Manager) Phase() types.Phase {
	return m.phase.Get()
}

// Status returns whether the manager is running a phase.
func (m *Manager) Status() types.ServiceStatus {
	return m.status.Get()
}

// CanInstall reports whether the backend settings allow installing.
func (m *Manager) CanInstall() bool {
	return m.backend.Valid()
}

// BusySubsystems returns the subsystems currently running an operation.
func (m *Manager) BusySubsystems() []string {
	return m.busy.Names()
}

// Progress returns the tracker driven during phases.
func (m *Manager) Progress() *progress.Tracker {
	return m.tracker
}

// Busy returns the registry shared with the subsystems.
func (m *Manager) Busy() *status.BusyRegistry {
	return m.busy
}

// OnPhaseChange registers a listener for phase transitions.
func (m *Manager) OnPhaseChange(fn notify.Listener[types.Phase]) notify.Handle {
	return m.phase.OnChange(fn)
}

// OnStatusChange registers a listener for idle/busy changes.
func (m *Manager) OnStatusChange(fn notify.Listener[types.ServiceStatus]) notify.Handle {
	return m.status.OnChange(fn)
}

// OnBusyChange registers a listener for changes of the busy subsystems.
func (m *Manager) OnBusyChange(fn notify.Listener[[]string]) notify.Handle {
	return m.busy.OnChange(fn)
}
