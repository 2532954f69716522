package types

import (
	"encoding/json"
	"testing"
)

func TestPhaseLabels(t *testing.T) {
	tests := []struct {
		phase    Phase
		expected string
	}{
		{PhaseStartup, "startup"},
		{PhaseConfig, "config"},
		{PhaseInstall, "install"},
		{Phase(7), "phase(7)"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if tt.phase.String() != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, tt.phase)
			}
		})
	}
}

func TestPhases(t *testing.T) {
	phases := Phases()
	if len(phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(phases))
	}
	for i, p := range phases {
		if p.ID != uint32(i) {
			t.Errorf("expected id %d, got %d", i, p.ID)
		}
	}
	if phases[2].Label != "install" {
		t.Errorf("expected install label, got %s", phases[2].Label)
	}
}

func TestServiceStatus_String(t *testing.T) {
	if StatusIdle.String() != "idle" {
		t.Errorf("expected idle, got %s", StatusIdle)
	}
	if StatusBusy.String() != "busy" {
		t.Errorf("expected busy, got %s", StatusBusy)
	}
}

func TestProgressSnapshot_JSON(t *testing.T) {
	s := ProgressSnapshot{TotalSteps: 2, CurrentStep: 1, Description: "step 1"}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	expected := `{"totalSteps":2,"currentStep":[1,"step 1"],"finished":false}`
	if string(data) != expected {
		t.Errorf("expected %s, got %s", expected, data)
	}

	var decoded ProgressSnapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != s {
		t.Errorf("expected %+v, got %+v", s, decoded)
	}
}

func TestProgressSnapshot_Percent(t *testing.T) {
	tests := []struct {
		name     string
		snapshot ProgressSnapshot
		expected float64
	}{
		{"empty finished", ProgressSnapshot{Finished: true}, 1},
		{"not started", ProgressSnapshot{TotalSteps: 4}, 0},
		{"half way", ProgressSnapshot{TotalSteps: 4, CurrentStep: 2}, 0.5},
		{"done", ProgressSnapshot{TotalSteps: 4, CurrentStep: 4, Finished: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.snapshot.Percent(); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
