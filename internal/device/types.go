package device

import "time"

// Status represents the reported connectivity state of a glove.
type Status string

const (
	// StatusOnline means the device has recently sent telemetry or a
	// status heartbeat.
	StatusOnline Status = "online"

	// StatusOffline means the device has not been heard from, or its
	// gateway reported a disconnect.
	StatusOffline Status = "offline"

	// StatusMaintenance means the device is deliberately out of service
	// (repair, recalibration). It still exists and can be queried.
	StatusMaintenance Status = "maintenance"
)

// ValidStatuses is the set of recognised device statuses.
var ValidStatuses = []Status{StatusOnline, StatusOffline, StatusMaintenance}

// IsValidStatus returns true if the status is recognised.
func IsValidStatus(s Status) bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// TypeDataGlove is the only device type currently supported.
const TypeDataGlove = "data_glove"

// Device represents a registered data glove.
//
// ID is the internal primary key (dev-xxxxxxxx). DeviceID is the stable
// hardware identifier the glove reports on every message; telemetry is
// addressed by DeviceID, never by the internal ID.
type Device struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	Name            string     `json:"name"`
	Type            string     `json:"type"`
	HardwareVersion string     `json:"hardware_version,omitempty"`
	FirmwareVersion string     `json:"firmware_version,omitempty"`
	MACAddress      *string    `json:"mac_address,omitempty"`
	Status          Status     `json:"status"`
	Location        string     `json:"location,omitempty"`
	Description     string     `json:"description,omitempty"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// maxNameLength is the maximum allowed device name length.
const maxNameLength = 128

// Validate checks the device fields for basic consistency.
func (d *Device) Validate() error {
	if d.DeviceID == "" {
		return ErrInvalidDevice
	}
	if d.Name == "" || len(d.Name) > maxNameLength {
		return ErrInvalidName
	}
	if d.Status != "" && !IsValidStatus(d.Status) {
		return ErrInvalidStatus
	}
	return nil
}
