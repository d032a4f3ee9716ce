package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourceCommand = "command"
	StateHistorySourcePoll    = "poll"
	StateHistorySourceStartup = "startup"
)

// StateHistoryEntry is a single recorded lock state change.
//
// Each entry stores a full snapshot of the device state at the time the
// change was observed, so the local audit trail survives when the
// time-series database is unavailable.
type StateHistoryEntry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	State     State     `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
type StateHistoryRepository interface {
	// RecordStateChange records a device state change. An empty source is
	// stored as StateHistorySourcePoll.
	RecordStateChange(ctx context.Context, deviceID string, state State, source string) error

	// GetHistory returns up to limit entries for the device, newest first.
	// Implementations clamp limit to their own bounds.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
