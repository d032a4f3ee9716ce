package smartlock

import (
	"time"

	"github.com/nerrad567/gray-logic-lockbridge/internal/device"
)

// Protocol is the protocol segment of every bridge topic.
const Protocol = string(device.ProtocolSmartLock)

// Commands accepted over MQTT and the API.
const (
	CommandLock    = "lock"
	CommandUnlock  = "unlock"
	CommandRefresh = "refresh"
)

// CommandMessage is sent from the host to execute a lock command.
// Topic: graylogic/command/smartlock/{device_id}
type CommandMessage struct {
	// ID correlates the command with its acknowledgements.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// DeviceID falls back to the last topic segment when empty.
	DeviceID string `json:"device_id"`

	// Command is lock, unlock or refresh.
	Command string `json:"command"`

	// Source is where the command originated, e.g. "api" or "automation".
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted means the command was received and is being executed.
	AckAccepted AckStatus = "accepted"

	// AckCompleted means the lock service confirmed the command.
	AckCompleted AckStatus = "completed"

	// AckFailed means the command could not be executed.
	AckFailed AckStatus = "failed"
)

// Error codes for failed acknowledgements.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidCommand    = "INVALID_COMMAND"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"

	// ErrCodeSessionError means the command ran but the vendor session
	// could not be closed. The published state reflects the command.
	ErrCodeSessionError = "SESSION_ERROR"
)

// AckMessage is sent from the bridge to acknowledge a command.
// Topic: graylogic/ack/smartlock/{device_id}
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Protocol  string    `json:"protocol"`
	Address   string    `json:"address,omitempty"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage carries the current state of one lock.
// Topic: graylogic/state/smartlock/{device_id}
// QoS: 1, Retained: Yes
type StateMessage struct {
	DeviceID  string         `json:"device_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
	Protocol  string         `json:"protocol"`

	// Address is the vendor lock ID.
	Address string `json:"address"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the bridge's operational status.
// Topic: graylogic/health/smartlock
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge         string            `json:"bridge"`
	Timestamp      time.Time         `json:"timestamp"`
	Status         HealthStatus      `json:"status"`
	Version        string            `json:"version"`
	UptimeSeconds  int64             `json:"uptime_seconds"`
	DevicesManaged int               `json:"devices_managed"`
	Statistics     *BridgeStatistics `json:"statistics,omitempty"`
	Reason         string            `json:"reason,omitempty"`
}

// BridgeStatistics contains operational counters.
type BridgeStatistics struct {
	CommandsTotal  uint64 `json:"commands_total"`
	CommandsFailed uint64 `json:"commands_failed"`
	PollsTotal     uint64 `json:"polls_total"`
	PollsFailed    uint64 `json:"polls_failed"`
}

// NewAckMessage creates an acknowledgement for cmd.
func NewAckMessage(cmd CommandMessage, status AckStatus, address string) AckMessage {
	return AckMessage{
		CommandID: cmd.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  cmd.DeviceID,
		Status:    status,
		Protocol:  Protocol,
		Address:   address,
	}
}

// NewAckError creates a failed acknowledgement for cmd.
func NewAckError(cmd CommandMessage, address, code, message string) AckMessage {
	ack := NewAckMessage(cmd, AckFailed, address)
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// NewStateMessage creates a state message from a lock status.
func NewStateMessage(s LockStatus) StateMessage {
	return StateMessage{
		DeviceID:  s.DeviceID,
		Timestamp: time.Now().UTC(),
		State:     s.DeviceState(),
		Protocol:  Protocol,
		Address:   s.LockID,
	}
}
