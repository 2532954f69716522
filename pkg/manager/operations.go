package manager

import (
	"context"
	"errors"
	"time"

	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/types"
)

// RunConfigPhase probes the system and computes the proposal. On success
// the manager enters the config phase. A failed phase leaves its tracker
// finished at the step that failed.
func (m *Manager) RunConfigPhase(ctx context.Context) error {
	return m.run(ctx, types.PhaseConfig, nil, m.backend.ConfigPhase)
}

// RunInstallPhase installs the system. It is rejected with
// ErrInvalidSettings when the backend settings are not valid. On success
// the manager enters the install phase.
func (m *Manager) RunInstallPhase(ctx context.Context) error {
	return m.run(ctx, types.PhaseInstall, m.checkValid, m.backend.InstallPhase)
}

func (m *Manager) checkValid() error {
	if !m.backend.Valid() {
		return ErrInvalidSettings
	}
	return nil
}

type phaseFunc func(ctx context.Context, tracker *progress.Tracker) error

func (m *Manager) run(ctx context.Context, target types.Phase, precheck func() error, fn phaseFunc) error {
	log := m.log.WithValues("phase", target.String())

	if !m.status.TryAcquire() {
		log.Info("phase rejected, service is busy")
		return ErrBusy
	}
	defer m.status.Release()

	if precheck != nil {
		if err := precheck(); err != nil {
			log.Info("phase rejected", "reason", err.Error())
			return err
		}
	}

	start := time.Now()
	log.Info("phase started")

	if err := fn(ctx, m.tracker); err != nil {
		berr := &BackendError{Phase: target, Err: err}
		var serr *SubsystemError
		if errors.As(err, &serr) {
			berr.Subsystem = serr.Name
		}
		m.tracker.Finish()
		log.Error(err, "phase failed", "subsystem", berr.Subsystem, "duration", time.Since(start))
		return berr
	}

	if m.phase.Set(target) {
		log.Info("phase changed")
	}
	log.Info("phase finished", "duration", time.Since(start))
	return nil
}
