package ui

import (
	"fmt"

	"github.com/tierone/installd/pkg/types"
)

// watchState folds the event stream into what the views render.
type watchState struct {
	phase      types.Phase
	status     types.ServiceStatus
	busy       []string
	canInstall bool
	product    string
	registered bool

	progress map[string]types.ProgressSnapshot
	order    []string

	// sawBusy is set once the service ran something while watched.
	sawBusy bool
}

func newWatchState() *watchState {
	return &watchState{progress: make(map[string]types.ProgressSnapshot)}
}

// apply updates the state with ev. Unknown event types are ignored.
func (s *watchState) apply(ev types.Event) error {
	switch ev.Type {
	case types.EventManager:
		var m types.ManagerState
		if err := ev.Decode(&m); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.phase = m.Phase
		s.setStatus(m.Status)
		s.busy = m.Busy
		s.canInstall = m.CanInstall
		s.setProgress(ev.Source, m.Progress)

	case types.EventPhase:
		var p types.PhaseEvent
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.phase = p.Phase

	case types.EventStatus:
		var st types.StatusEvent
		if err := ev.Decode(&st); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.setStatus(st.Status)

	case types.EventBusy:
		var names []string
		if err := ev.Decode(&names); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.busy = names

	case types.EventProgress:
		var snap types.ProgressSnapshot
		if err := ev.Decode(&snap); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.setProgress(ev.Source, snap)

	case types.EventProduct:
		var p struct {
			Product string `json:"product"`
		}
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.product = p.Product

	case types.EventRegistration:
		var r struct {
			Registered bool `json:"registered"`
		}
		if err := ev.Decode(&r); err != nil {
			return fmt.Errorf("decoding %s event: %w", ev.Type, err)
		}
		s.registered = r.Registered
	}
	return nil
}

func (s *watchState) setStatus(st types.ServiceStatus) {
	s.status = st
	if st == types.StatusBusy {
		s.sawBusy = true
	}
}

func (s *watchState) setProgress(source string, snap types.ProgressSnapshot) {
	if _, ok := s.progress[source]; !ok {
		s.order = append(s.order, source)
	}
	s.progress[source] = snap
}

// settled reports whether a run started while watching has ended.
func (s *watchState) settled() bool {
	return s.sawBusy && s.status == types.StatusIdle
}

// stepLabel renders "[current/total] description".
func stepLabel(snap types.ProgressSnapshot) string {
	if snap.TotalSteps == 0 {
		return ""
	}
	return fmt.Sprintf("[%d/%d] %s", snap.CurrentStep, snap.TotalSteps, snap.Description)
}
