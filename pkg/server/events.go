package server

import (
	"encoding/json"
	"net/http"

	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/progress"
	"github.com/tierone/installd/pkg/registration"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/types"
)

// Event sources.
const (
	SourceManager      = "manager"
	SourceSoftware     = software.BusyName
	SourceNetwork      = network.BusyName
	SourceRegistration = registration.BusyName
)

func (s *Server) subscribe() {
	mgr := s.inst.Manager()

	mgr.OnPhaseChange(func(p types.Phase) error {
		return s.publish(types.EventPhase, SourceManager, types.PhaseEvent{Phase: p, Label: p.String()})
	})
	mgr.OnStatusChange(func(st types.ServiceStatus) error {
		return s.publish(types.EventStatus, SourceManager, types.StatusEvent{Status: st, Label: st.String()})
	})
	mgr.OnBusyChange(func(names []string) error {
		return s.publish(types.EventBusy, SourceManager, names)
	})

	s.relayProgress(SourceManager, mgr.Progress())
	s.relayProgress(SourceSoftware, s.inst.Software().Progress())
	s.relayProgress(SourceNetwork, s.inst.Network().Progress())

	s.inst.Software().OnProductSelected(func(name string) error {
		return s.publish(types.EventProduct, SourceSoftware, ProductResponse{Product: name, Selected: true})
	})
	s.inst.Network().OnChange(func(st network.State) error {
		return s.publish(types.EventNetwork, SourceNetwork, st)
	})
	s.inst.Registration().OnStateChange(func(st registration.State) error {
		return s.publish(types.EventRegistration, SourceRegistration, st)
	})
}

func (s *Server) relayProgress(source string, t *progress.Tracker) {
	t.OnChange(func(snap types.ProgressSnapshot) error {
		return s.publish(types.EventProgress, source, snap)
	})
}

func (s *Server) publish(eventType, source string, data any) error {
	msg, err := encodeEvent(eventType, source, data)
	if err != nil {
		return err
	}
	s.hub.broadcast(msg)
	return nil
}

func encodeEvent(eventType, source string, data any) ([]byte, error) {
	ev, err := types.NewEvent(eventType, source, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

// handleWS streams events to the client, starting with the current
// manager state.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.V(1).Info("websocket upgrade failed", "error", err.Error())
		return
	}

	c := newClient(conn, s.log, s.hub.pongWait)
	s.hub.register(c)
	initial, err := encodeEvent(types.EventManager, SourceManager, s.managerState())
	if err != nil {
		s.log.Error(err, "encoding initial state")
		s.hub.unregister(c)
		_ = conn.Close()
		return
	}
	c.start(initial)
	s.log.V(1).Info("event client connected", "remote", c.remote, "clients", s.hub.len())

	go c.writeLoop()
	c.readLoop(func() {
		s.hub.unregister(c)
		s.log.V(1).Info("event client disconnected", "remote", c.remote)
	})
}
