package device

import "time"

// Device is a registered lock as seen by the host.
// This matches the devices table in migrations/20260301_100000_devices.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Classification
	Type   DeviceType `json:"type"`
	Domain Domain     `json:"domain"`

	// Protocol information
	Protocol Protocol `json:"protocol"`
	Address  Address  `json:"address"`

	Capabilities []Capability `json:"capabilities"`

	// Current state
	State          State      `json:"state"`
	StateUpdatedAt *time.Time `json:"state_updated_at,omitempty"`

	// Health monitoring
	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	// Metadata
	Manufacturer *string `json:"manufacturer,omitempty"`
	Model        *string `json:"model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of d. Maps and slices are cloned so
// the registry cache cannot be mutated through a returned device.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d
	cpy.Address = deepCopyMap(d.Address)
	cpy.State = deepCopyMap(d.State)
	if d.Capabilities != nil {
		cpy.Capabilities = make([]Capability, len(d.Capabilities))
		copy(cpy.Capabilities, d.Capabilities)
	}
	return &cpy
}

// HasCapability reports whether d lists c.
func (d *Device) HasCapability(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}

// Address holds protocol-specific address information as a JSON map.
//
// Smart lock: {"lock_id": "abc123", "backend": "cloud"}
type Address map[string]any

// State holds the current device state as a JSON map.
//
// Smart lock: {"locked": true, "bolt": "locked"}
type State map[string]any

// Domain represents the functional area a device belongs to.
type Domain string

// Domain constants.
const (
	DomainSecurity Domain = "security"
	DomainAccess   Domain = "access"
)

// AllDomains returns all valid domain values.
func AllDomains() []Domain {
	return []Domain{DomainSecurity, DomainAccess}
}

// Protocol represents the communication protocol for a device.
type Protocol string

// Protocol constants.
const (
	ProtocolSmartLock Protocol = "smartlock"
	ProtocolMQTT      Protocol = "mqtt"
	ProtocolHTTP      Protocol = "http"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolSmartLock, ProtocolMQTT, ProtocolHTTP}
}

// DeviceType represents the specific kind of device.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// Device types.
const (
	DeviceTypeDoorLock   DeviceType = "door_lock"
	DeviceTypeDoorSensor DeviceType = "door_sensor"
	DeviceTypeKeypad     DeviceType = "keypad"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{DeviceTypeDoorLock, DeviceTypeDoorSensor, DeviceTypeKeypad}
}

// Capability represents what a device can do.
type Capability string

// Capabilities.
const (
	CapLockUnlock    Capability = "lock_unlock"
	CapContactState  Capability = "contact_state"
	CapBatteryStatus Capability = "battery_status"
)

// AllCapabilities returns all valid capability values.
func AllCapabilities() []Capability {
	return []Capability{CapLockUnlock, CapContactState, CapBatteryStatus}
}

// HealthStatus represents the device health state.
type HealthStatus string

// HealthStatus constants.
const (
	HealthStatusOnline   HealthStatus = "online"
	HealthStatusOffline  HealthStatus = "offline"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusUnknown  HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{
		HealthStatusOnline, HealthStatusOffline, HealthStatusDegraded, HealthStatusUnknown,
	}
}
