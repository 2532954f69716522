// Package progress implements the step counter used to report the
// fine-grained completion of a long running operation.
package progress

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"github.com/tierone/installd/pkg/notify"
	"github.com/tierone/installd/pkg/types"
)

var (
	// ErrOutOfRange is returned by Step when no further steps are expected.
	ErrOutOfRange = errors.New("progress: no steps remaining")

	// ErrInvalidTotal is returned by Start for a negative number of steps.
	ErrInvalidTotal = errors.New("progress: invalid number of steps")
)

// Tracker counts the steps of one run. The zero run (no Start yet) has no
// steps and reports itself as finished.
//
// Listeners must not call mutating methods of the tracker that notifies
// them.
type Tracker struct {
	// emitMu serializes mutation plus delivery so that notifications of
	// one tracker reach listeners in mutation order.
	emitMu sync.Mutex

	mu          sync.RWMutex
	total       int
	current     int
	description string

	listeners *notify.Registry[types.ProgressSnapshot]
}

// Option configures a Tracker.
type Option func(*trackerOptions)

type trackerOptions struct {
	name string
	log  logr.Logger
}

// WithName sets the name used when logging listener failures.
func WithName(name string) Option {
	return func(o *trackerOptions) {
		o.name = name
	}
}

// WithLogger sets the logger for listener failures.
func WithLogger(log logr.Logger) Option {
	return func(o *trackerOptions) {
		o.log = log
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	o := trackerOptions{name: "progress", log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Tracker{
		listeners: notify.NewRegistry[types.ProgressSnapshot](o.name, o.log),
	}
}

// Start begins a new run of total steps, discarding the previous one.
func (t *Tracker) Start(total int) error {
	if total < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTotal, total)
	}

	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.total = total
	t.current = 0
	t.description = ""
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.listeners.Notify(snap)
	return nil
}

// Step advances the run by one step described by description.
func (t *Tracker) Step(description string) error {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	if t.current >= t.total {
		total := t.total
		t.mu.Unlock()
		return fmt.Errorf("%w: %d of %d steps done, cannot start %q", ErrOutOfRange, total, total, description)
	}
	t.current++
	t.description = description
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.listeners.Notify(snap)
	return nil
}

// Finish forces the run to completion, whatever the number of steps done.
func (t *Tracker) Finish() {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	t.mu.Lock()
	t.current = t.total
	snap := t.snapshotLocked()
	t.mu.Unlock()

	t.listeners.Notify(snap)
}

// Snapshot returns the current state without side effects.
func (t *Tracker) Snapshot() types.ProgressSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshotLocked()
}

// Finished reports whether every step of the run was done.
func (t *Tracker) Finished() bool {
	return t.Snapshot().Finished
}

// OnChange registers a listener called after every mutation.
func (t *Tracker) OnChange(fn notify.Listener[types.ProgressSnapshot]) notify.Handle {
	return t.listeners.Add(fn)
}

// RemoveListener unregisters a listener added with OnChange.
func (t *Tracker) RemoveListener(h notify.Handle) bool {
	return t.listeners.Remove(h)
}

func (t *Tracker) snapshotLocked() types.ProgressSnapshot {
	return types.ProgressSnapshot{
		TotalSteps:  t.total,
		CurrentStep: t.current,
		Description: t.description,
		Finished:    t.current == t.total,
	}
}
