package binding

import "time"

// Binding represents one episode of exclusive device ownership.
//
// DeviceRowID references the device registry's internal primary key, not
// the hardware identifier. A (user, device) pair keeps a single row for
// its whole bind/unbind/rebind history: unbind deactivates the row, a
// later rebind reactivates it in place. Rows are never deleted.
type Binding struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DeviceRowID string     `json:"device_row_id"`
	BindTime    time.Time  `json:"bind_time"`
	UnbindTime  *time.Time `json:"unbind_time,omitempty"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ActiveBinding is a binding joined with the device it covers, used for
// "which gloves does this user hold" views.
type ActiveBinding struct {
	Binding
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}
