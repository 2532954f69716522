package types

import (
	"encoding/json"
	"fmt"
)

// Phase is the coarse stage of the installation lifecycle.
type Phase uint32

const (
	PhaseStartup Phase = iota
	PhaseConfig
	PhaseInstall
)

// PhaseInfo describes one phase value for clients.
type PhaseInfo struct {
	ID    uint32 `json:"id"`
	Label string `json:"label"`
}

var phaseLabels = map[Phase]string{
	PhaseStartup: "startup",
	PhaseConfig:  "config",
	PhaseInstall: "install",
}

// String returns the label of the phase.
func (p Phase) String() string {
	if label, ok := phaseLabels[p]; ok {
		return label
	}
	return fmt.Sprintf("phase(%d)", uint32(p))
}

// Phases returns the id/label table of every phase, ordered by id.
func Phases() []PhaseInfo {
	return []PhaseInfo{
		{ID: uint32(PhaseStartup), Label: PhaseStartup.String()},
		{ID: uint32(PhaseConfig), Label: PhaseConfig.String()},
		{ID: uint32(PhaseInstall), Label: PhaseInstall.String()},
	}
}

// ServiceStatus tells whether a service is running a mutating operation.
type ServiceStatus uint32

const (
	StatusIdle ServiceStatus = iota
	StatusBusy
)

// String returns the label of the status.
func (s ServiceStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// ServiceStatuses returns the id/label table of every status value.
func ServiceStatuses() []PhaseInfo {
	return []PhaseInfo{
		{ID: uint32(StatusIdle), Label: StatusIdle.String()},
		{ID: uint32(StatusBusy), Label: StatusBusy.String()},
	}
}

// ProgressSnapshot is an immutable read of a progress tracker.
type ProgressSnapshot struct {
	TotalSteps  int
	CurrentStep int
	Description string
	Finished    bool
}

type progressJSON struct {
	TotalSteps  int    `json:"totalSteps"`
	CurrentStep [2]any `json:"currentStep"`
	Finished    bool   `json:"finished"`
}

// MarshalJSON encodes the snapshot as
// {"totalSteps": n, "currentStep": [index, description], "finished": b}.
func (s ProgressSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(progressJSON{
		TotalSteps:  s.TotalSteps,
		CurrentStep: [2]any{s.CurrentStep, s.Description},
		Finished:    s.Finished,
	})
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (s *ProgressSnapshot) UnmarshalJSON(data []byte) error {
	var raw struct {
		TotalSteps  int               `json:"totalSteps"`
		CurrentStep []json.RawMessage `json:"currentStep"`
		Finished    bool              `json:"finished"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := ProgressSnapshot{TotalSteps: raw.TotalSteps, Finished: raw.Finished}
	if len(raw.CurrentStep) > 0 {
		if err := json.Unmarshal(raw.CurrentStep[0], &out.CurrentStep); err != nil {
			return fmt.Errorf("invalid step index: %w", err)
		}
	}
	if len(raw.CurrentStep) > 1 {
		if err := json.Unmarshal(raw.CurrentStep[1], &out.Description); err != nil {
			return fmt.Errorf("invalid step description: %w", err)
		}
	}
	*s = out
	return nil
}

// Percent returns the completion ratio in the [0, 1] range.
func (s ProgressSnapshot) Percent() float64 {
	if s.TotalSteps <= 0 {
		if s.Finished {
			return 1
		}
		return 0
	}
	return float64(s.CurrentStep) / float64(s.TotalSteps)
}
