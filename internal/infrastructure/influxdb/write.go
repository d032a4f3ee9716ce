package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the lock bridge.
const (
	MeasurementLockState       = "lock_state"
	MeasurementLockCommand     = "lock_command"
	MeasurementLockAcquisition = "lock_acquisition"
)

// WriteLockState records the observed state of a lock.
//
//	lock_state,device_id=lock-front-door,lock_id=front-door,bolt=locked locked=true
func (c *Client) WriteLockState(deviceID, lockID string, locked bool, bolt string) {
	c.WritePoint(MeasurementLockState,
		map[string]string{
			"device_id": deviceID,
			"lock_id":   lockID,
			"bolt":      bolt,
		},
		map[string]any{"locked": locked},
	)
}

// WriteCommandResult records one lock, unlock or refresh attempt and how
// long it took end to end.
func (c *Client) WriteCommandResult(deviceID, command string, success bool, took time.Duration) {
	c.WritePoint(MeasurementLockCommand,
		map[string]string{
			"device_id": deviceID,
			"command":   command,
		},
		map[string]any{
			"success":     success,
			"duration_ms": took.Milliseconds(),
		},
	)
}

// WriteAcquisition records how many lookup attempts startup needed.
func (c *Client) WriteAcquisition(lockID string, attempts int, success bool) {
	c.WritePoint(MeasurementLockAcquisition,
		map[string]string{"lock_id": lockID},
		map[string]any{
			"attempts": attempts,
			"success":  success,
		},
	)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp. Dropped
// silently while disconnected.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
