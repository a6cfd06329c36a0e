package device

import (
	"context"
	"fmt"
	"time"

	"github.com/glovelink/glove-core/internal/infrastructure/logging"
)

// BindingChecker reports whether a device currently has an active binding.
// Implemented by the binding manager; an interface here avoids a package cycle.
type BindingChecker interface {
	HasActiveBindingForDevice(ctx context.Context, deviceRowID string) (bool, error)
}

// StatusMirror receives device status transitions for export to the
// time-series store. Satisfied by telemetry.InfluxMirror.
type StatusMirror interface {
	MirrorDeviceStatus(deviceID, status string)
}

// Service coordinates device registry operations that need more than
// plain persistence: registration defaults, heartbeat handling, and the
// delete guard against actively bound gloves.
type Service struct {
	repo     Repository
	bindings BindingChecker
	mirror   StatusMirror
	logger   *logging.Logger
}

// NewService creates a device service.
func NewService(repo Repository, bindings BindingChecker, logger *logging.Logger) *Service {
	return &Service{
		repo:     repo,
		bindings: bindings,
		logger:   logger.With("component", "device"),
	}
}

// SetStatusMirror attaches an optional mirror for status transitions.
// Called once during startup when the time-series export is enabled.
func (s *Service) SetStatusMirror(mirror StatusMirror) {
	s.mirror = mirror
}

// Register adds a new glove to the registry.
func (s *Service) Register(ctx context.Context, d *Device) error {
	if err := s.repo.Create(ctx, d); err != nil {
		return err
	}
	s.logger.Info("device registered", "id", d.ID, "device_id", d.DeviceID, "name", d.Name)
	return nil
}

// Get retrieves a device by internal ID.
func (s *Service) Get(ctx context.Context, id string) (*Device, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByDeviceID retrieves a device by hardware identifier.
func (s *Service) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	return s.repo.GetByDeviceID(ctx, deviceID)
}

// List retrieves all devices, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Device, error) {
	if status == "" {
		return s.repo.List(ctx)
	}
	if !IsValidStatus(status) {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListByStatus(ctx, status)
}

// Update modifies a device's mutable fields.
func (s *Service) Update(ctx context.Context, d *Device) error {
	return s.repo.Update(ctx, d)
}

// Delete removes a device from the registry.
//
// A device with an active binding cannot be deleted: the binding must be
// released first so the historical record stays attached to a real device.
// Returns ErrDeviceBound in that case.
func (s *Service) Delete(ctx context.Context, id string) error {
	// Confirm the device exists before consulting bindings so callers
	// get ErrDeviceNotFound rather than a misleading bound check.
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}

	bound, err := s.bindings.HasActiveBindingForDevice(ctx, id)
	if err != nil {
		return fmt.Errorf("checking active bindings: %w", err)
	}
	if bound {
		return ErrDeviceBound
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("device deleted", "id", id)
	return nil
}

// RecordHeartbeat marks a device online and stamps its last heartbeat.
// Telemetry ingest calls this for every message a glove sends.
func (s *Service) RecordHeartbeat(ctx context.Context, deviceID string, at time.Time) error {
	return s.repo.TouchHeartbeat(ctx, deviceID, at)
}

// ReportStatus applies a gateway-reported connectivity status change.
func (s *Service) ReportStatus(ctx context.Context, deviceID string, status Status) error {
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}
	if err := s.repo.UpdateStatus(ctx, deviceID, status); err != nil {
		return err
	}
	if s.mirror != nil {
		s.mirror.MirrorDeviceStatus(deviceID, string(status))
	}
	s.logger.Info("device status reported", "device_id", deviceID, "status", status)
	return nil
}

// Stats summarises the registry for dashboards.
type Stats struct {
	Total       int `json:"total"`
	Online      int `json:"online"`
	Offline     int `json:"offline"`
	Maintenance int `json:"maintenance"`
}

// GetStats returns device counts grouped by status.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Online:      counts[StatusOnline],
		Offline:     counts[StatusOffline],
		Maintenance: counts[StatusMaintenance],
	}
	stats.Total = stats.Online + stats.Offline + stats.Maintenance
	return stats, nil
}
