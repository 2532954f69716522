package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tierone/installd/pkg/manager"
	"github.com/tierone/installd/pkg/network"
	"github.com/tierone/installd/pkg/registration"
	"github.com/tierone/installd/pkg/software"
	"github.com/tierone/installd/pkg/types"
)

var errBadRequest = errors.New("malformed request body")

// statusFor maps an installer error to an HTTP status code.
func statusFor(err error) int {
	var serverErr *registration.ServerError
	var backendErr *manager.BackendError

	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, registration.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, manager.ErrBusy),
		errors.Is(err, registration.ErrAlreadyRegistered),
		errors.Is(err, registration.ErrNotRegistered):
		return http.StatusConflict
	case errors.Is(err, software.ErrUnknownProduct), errors.Is(err, network.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, manager.ErrInvalidSettings),
		errors.Is(err, registration.ErrNoProduct),
		errors.Is(err, software.ErrNoProposal):
		return http.StatusUnprocessableEntity
	case errors.Is(err, network.ErrDisabled):
		return http.StatusServiceUnavailable
	case errors.As(err, &serverErr):
		return http.StatusBadGateway
	case errors.As(err, &backendErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) types.ErrorResponse {
	resp := types.ErrorResponse{Error: err.Error()}
	var backendErr *manager.BackendError
	if errors.As(err, &backendErr) {
		resp.Phase = backendErr.Phase.String()
		resp.Subsystem = backendErr.Subsystem
	}
	return resp
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error(err, "request failed", "method", r.Method, "path", r.URL.Path)
	} else {
		s.log.V(1).Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "error", err.Error())
	}
	writeJSON(w, code, errorResponse(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}
