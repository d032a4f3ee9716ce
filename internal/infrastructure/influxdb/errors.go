package influxdb

import "errors"

// Telemetry errors. Writes never return them directly: lock_state,
// lock_command and lock_acquisition points are queued, and a rejected
// batch reaches the SetOnError callback wrapped in ErrWriteFailed.
var (
	// ErrDisabled is returned by Connect when telemetry is switched off.
	ErrDisabled = errors.New("influxdb: lock telemetry disabled")

	// ErrConnectionFailed wraps the startup ping failure.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrServerUnhealthy is returned by HealthCheck when the server does
	// not answer the ping.
	ErrServerUnhealthy = errors.New("influxdb: server unhealthy")

	ErrWriteFailed = errors.New("influxdb: telemetry write failed")
)
