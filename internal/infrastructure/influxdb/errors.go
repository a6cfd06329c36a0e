package influxdb

import "errors"

// Sentinel errors for the mirror client, matched with errors.Is.
var (
	// ErrNotConnected means the client has no live server connection.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed initial connect or ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed marks a rejected write. Batched write errors
	// surface asynchronously through the SetOnError callback instead.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled means mirroring is switched off in configuration.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
