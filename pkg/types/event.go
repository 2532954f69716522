package types

import "encoding/json"

// Event types relayed to remote observers.
const (
	EventManager      = "manager"
	EventPhase        = "phase"
	EventStatus       = "status"
	EventBusy         = "busy"
	EventProgress     = "progress"
	EventProduct      = "product"
	EventNetwork      = "network"
	EventRegistration = "registration"
)

// Event is one change notification sent over the event stream. Source
// names the entity that changed, e.g. the tracker owner for progress.
type Event struct {
	Type   string          `json:"type"`
	Source string          `json:"source"`
	Data   json.RawMessage `json:"data"`
}

// NewEvent encodes data into an event.
func NewEvent(eventType, source string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Source: source, Data: raw}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// ManagerState is the remote view of the state machine.
type ManagerState struct {
	Phase      Phase            `json:"phase"`
	PhaseLabel string           `json:"phaseLabel"`
	Status     ServiceStatus    `json:"status"`
	Busy       []string         `json:"busy"`
	CanInstall bool             `json:"canInstall"`
	Phases     []PhaseInfo      `json:"phases"`
	Progress   ProgressSnapshot `json:"progress"`
}

// PhaseEvent is the payload of EventPhase.
type PhaseEvent struct {
	Phase Phase  `json:"phase"`
	Label string `json:"label"`
}

// StatusEvent is the payload of EventStatus.
type StatusEvent struct {
	Status ServiceStatus `json:"status"`
	Label  string        `json:"label"`
}

// ErrorResponse is the body of a failed API request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Phase     string `json:"phase,omitempty"`
	Subsystem string `json:"subsystem,omitempty"`
}
