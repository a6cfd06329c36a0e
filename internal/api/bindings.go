package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/glovelink/glove-core/internal/binding"
)

// bindRequest is the request body for POST /bindings and POST /bindings/unbind.
// The device is addressed by its hardware identifier.
type bindRequest struct {
	DeviceID string `json:"device_id"`
	UserID   string `json:"user_id"`
}

// handleBind claims a device for a user. Users bind gloves to themselves;
// admins can bind on behalf of anyone.
func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.UserID == "" {
		writeBadRequest(w, "device_id and user_id are required")
		return
	}
	if !canAccessUser(claimsFromContext(r.Context()), req.UserID) {
		writeForbidden(w, "cannot bind a device for another user")
		return
	}

	bound, err := s.bindings.Bind(r.Context(), req.DeviceID, req.UserID)
	if err != nil {
		writeBindingError(w, err)
		return
	}

	s.hub.Broadcast("binding_changed", bound)
	writeJSON(w, http.StatusCreated, bound)
}

// handleUnbind releases a user's hold on a device. The binding row stays
// as history.
func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.UserID == "" {
		writeBadRequest(w, "device_id and user_id are required")
		return
	}
	if !canAccessUser(claimsFromContext(r.Context()), req.UserID) {
		writeForbidden(w, "cannot unbind a device for another user")
		return
	}

	if err := s.bindings.Unbind(r.Context(), req.DeviceID, req.UserID); err != nil {
		writeBindingError(w, err)
		return
	}

	s.hub.Broadcast("binding_changed", map[string]any{
		"device_id": req.DeviceID,
		"user_id":   req.UserID,
		"is_active": false,
	})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDeviceOwner returns the user currently holding a device.
func (s *Server) handleGetDeviceOwner(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")

	userID, err := s.bindings.ResolveOwner(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, binding.ErrDeviceUnbound) {
			writeNotFound(w, "device has no active binding")
			return
		}
		writeInternalError(w, "failed to resolve device owner")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"device_id": deviceID,
		"user_id":   userID,
	})
}

// handleListDeviceBindings returns every binding episode a device has seen,
// newest first. Admin only.
func (s *Server) handleListDeviceBindings(w http.ResponseWriter, r *http.Request) {
	history, err := s.bindings.ListHistoryForDevice(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		if errors.Is(err, binding.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to list binding history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bindings": history, "count": len(history)})
}

// handleListUserBindings returns the devices a user currently holds.
func (s *Server) handleListUserBindings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if !canAccessUser(claimsFromContext(r.Context()), userID) {
		writeForbidden(w, "cannot list another user's bindings")
		return
	}

	active, err := s.bindings.ListActiveForUser(r.Context(), userID)
	if err != nil {
		writeInternalError(w, "failed to list bindings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bindings": active, "count": len(active)})
}

// writeBindingError maps binding lifecycle errors onto HTTP responses.
func writeBindingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, binding.ErrDeviceNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, binding.ErrUserNotFound):
		writeNotFound(w, "user not found")
	case errors.Is(err, binding.ErrBindingNotFound):
		writeNotFound(w, "no binding exists for this pair")
	case errors.Is(err, binding.ErrAlreadyBound):
		writeConflict(w, "user already holds this device")
	case errors.Is(err, binding.ErrDeviceBound):
		writeConflict(w, "device is bound to another user")
	case errors.Is(err, binding.ErrBindingInactive):
		writeConflict(w, "binding is already inactive")
	default:
		writeInternalError(w, "binding operation failed")
	}
}
