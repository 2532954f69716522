package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/types"
)

// ProductRequest is the body of a product selection.
type ProductRequest struct {
	Product string `json:"product"`
}

// ProductResponse reports the selected product. Product is empty when
// none is selected.
type ProductResponse struct {
	Product  string `json:"product"`
	Selected bool   `json:"selected"`
}

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Code  string `json:"code"`
	Email string `json:"email,omitempty"`
}

// HostnameResponse reports the configured hostname.
type HostnameResponse struct {
	Hostname string `json:"hostname"`
}

// managerState reads the state machine for clients.
func (s *Server) managerState() types.ManagerState {
	mgr := s.inst.Manager()
	phase := mgr.Phase()
	return types.ManagerState{
		Phase:      phase,
		PhaseLabel: phase.String(),
		Status:     mgr.Status(),
		Busy:       mgr.BusySubsystems(),
		CanInstall: mgr.CanInstall(),
		Phases:     types.Phases(),
		Progress:   mgr.Progress().Snapshot(),
	}
}

func (s *Server) getManager(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.managerState())
}

func (s *Server) getManagerProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Manager().Progress().Snapshot())
}

// Phases run to completion even when the requesting client goes away.
func (s *Server) probe(w http.ResponseWriter, r *http.Request) {
	if err := s.inst.Manager().RunConfigPhase(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.managerState())
}

func (s *Server) install(w http.ResponseWriter, r *http.Request) {
	if err := s.inst.Manager().RunInstallPhase(context.WithoutCancel(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.managerState())
}

func (s *Server) getProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Software().Products())
}

func (s *Server) getProduct(w http.ResponseWriter, _ *http.Request) {
	name, ok := s.inst.Software().SelectedProduct()
	writeJSON(w, http.StatusOK, ProductResponse{Product: name, Selected: ok})
}

func (s *Server) selectProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.inst.Software().SelectProduct(req.Product); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ProductResponse{Product: req.Product, Selected: true})
}

func (s *Server) getRepositories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Software().Repositories())
}

func (s *Server) getProposal(w http.ResponseWriter, r *http.Request) {
	proposal, ok := s.inst.Software().Proposal()
	if !ok {
		s.writeError(w, r, software.ErrNoProposal)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func (s *Server) getSoftwareProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Software().Progress().Snapshot())
}

func (s *Server) getConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Network().Connections())
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.inst.Network().Connection(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) addConnection(w http.ResponseWriter, r *http.Request) {
	var conn network.Connection
	if err := decodeJSON(w, r, &conn); err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.inst.Network().AddConnection(r.Context(), conn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	var conn network.Connection
	if err := decodeJSON(w, r, &conn); err != nil {
		s.writeError(w, r, err)
		return
	}
	conn.ID = chi.URLParam(r, "id")
	if err := s.inst.Network().UpdateConnection(r.Context(), conn); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.inst.Network().Connection(conn.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.inst.Network().DeleteConnection(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getActiveConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Network().ActiveConnections())
}

func (s *Server) getAccessPoints(w http.ResponseWriter, r *http.Request) {
	aps, err := s.inst.Network().AccessPoints(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, aps)
}

func (s *Server) getHostname(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HostnameResponse{Hostname: s.inst.Network().Hostname()})
}

func (s *Server) getNetworkProgress(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Network().Progress().Snapshot())
}

func (s *Server) getRegistration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.inst.Registration().State())
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.inst.Registration().Register(r.Context(), req.Code, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.inst.Registration().State())
}

func (s *Server) deregister(w http.ResponseWriter, r *http.Request) {
	if err := s.inst.Registration().Deregister(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.inst.Registration().State())
}
