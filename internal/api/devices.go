package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/glovelink/glove-core/internal/device"
)

// createDeviceRequest is the request body for POST /devices.
type createDeviceRequest struct {
	DeviceID        string  `json:"device_id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	HardwareVersion string  `json:"hardware_version"`
	FirmwareVersion string  `json:"firmware_version"`
	MACAddress      *string `json:"mac_address"`
	Location        string  `json:"location"`
	Description     string  `json:"description"`
}

// updateDeviceRequest is the request body for PATCH /devices/{id}.
// Omitted fields are left unchanged. The hardware identifier is immutable.
type updateDeviceRequest struct {
	Name            *string `json:"name"`
	HardwareVersion *string `json:"hardware_version"`
	FirmwareVersion *string `json:"firmware_version"`
	Location        *string `json:"location"`
	Description     *string `json:"description"`
}

// handleListDevices returns registered gloves, optionally filtered by status.
//
// Query parameters:
//   - status: filter by status (online, offline, maintenance)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	status := device.Status(r.URL.Query().Get("status"))
	if status != "" && !device.IsValidStatus(status) {
		writeBadRequest(w, "invalid status filter")
		return
	}

	devices, err := s.devices.List(r.Context(), status)
	if err != nil {
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device. The path parameter accepts the
// internal id (dev-xxxxxxxx); hardware identifiers resolve through
// /devices/by-hardware/{deviceID}.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleGetDeviceByHardwareID resolves a device by the identifier the glove
// reports on its telemetry.
func (s *Server) handleGetDeviceByHardwareID(w http.ResponseWriter, r *http.Request) {
	dev, err := s.devices.GetByDeviceID(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleCreateDevice registers a new glove. Admin only.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Type == "" {
		req.Type = device.TypeDataGlove
	}

	now := time.Now().UTC()
	dev := &device.Device{
		ID:              "dev-" + uuid.NewString()[:8],
		DeviceID:        req.DeviceID,
		Name:            req.Name,
		Type:            req.Type,
		HardwareVersion: req.HardwareVersion,
		FirmwareVersion: req.FirmwareVersion,
		MACAddress:      req.MACAddress,
		Status:          device.StatusOffline,
		Location:        req.Location,
		Description:     req.Description,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.devices.Register(r.Context(), dev); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeConflict(w, "device already registered")
		case errors.Is(err, device.ErrInvalidDevice), errors.Is(err, device.ErrInvalidName):
			writeBadRequest(w, err.Error())
		default:
			s.logger.Error("device create failed", "error", err)
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleUpdateDevice applies partial updates to a device record. Admin only.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	dev, err := s.devices.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}

	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.HardwareVersion != nil {
		dev.HardwareVersion = *req.HardwareVersion
	}
	if req.FirmwareVersion != nil {
		dev.FirmwareVersion = *req.FirmwareVersion
	}
	if req.Location != nil {
		dev.Location = *req.Location
	}
	if req.Description != nil {
		dev.Description = *req.Description
	}
	dev.UpdatedAt = time.Now().UTC()

	if err := s.devices.Update(r.Context(), dev); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidDevice), errors.Is(err, device.ErrInvalidName):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to update device")
		}
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device from the registry. Admin only.
// A device with an active binding cannot be deleted; unbind first.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	if err := s.devices.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceNotFound):
			writeNotFound(w, "device not found")
		case errors.Is(err, device.ErrDeviceBound):
			writeConflict(w, "device has an active binding")
		default:
			writeInternalError(w, "failed to delete device")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceStats returns fleet status counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.devices.GetStats(r.Context())
	if err != nil {
		writeInternalError(w, "failed to get device stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
