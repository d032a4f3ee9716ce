package device

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDevice(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Device)
		wantErr error
	}{
		{"valid", func(*Device) {}, nil},
		{"missing id", func(d *Device) { d.ID = "" }, ErrInvalidDevice},
		{"missing name", func(d *Device) { d.Name = "  " }, ErrInvalidName},
		{"long name", func(d *Device) { d.Name = strings.Repeat("a", maxNameLength+1) }, ErrInvalidName},
		{"bad slug", func(d *Device) { d.Slug = "Front Door" }, ErrInvalidSlug},
		{"bad type", func(d *Device) { d.Type = "light_dimmer" }, ErrInvalidDeviceType},
		{"bad domain", func(d *Device) { d.Domain = "lighting" }, ErrInvalidDomain},
		{"bad protocol", func(d *Device) { d.Protocol = "knx" }, ErrInvalidProtocol},
		{"bad capability", func(d *Device) { d.Capabilities = []Capability{"dim"} }, ErrInvalidCapability},
		{"bad health", func(d *Device) { d.HealthStatus = "sleepy" }, ErrInvalidDevice},
		{"empty health allowed", func(d *Device) { d.HealthStatus = "" }, nil},
		{"too many state keys", func(d *Device) {
			d.State = State{}
			for i := 0; i <= maxStateKeys; i++ {
				d.State[strings.Repeat("k", i+1)] = i
			}
		}, ErrInvalidDevice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testLock("lock-a", "Front Door")
			tt.modify(d)
			err := ValidateDevice(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateDevice(nil); !errors.Is(err, ErrInvalidDevice) {
		t.Errorf("ValidateDevice(nil) error = %v", err)
	}
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Front Door", "front-door"},
		{"  Back   Door  ", "back-door"},
		{"Garage_Side-Gate", "garage-side-gate"},
		{"Shed #2!", "shed-2"},
		{strings.Repeat("ab ", 30), "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlug(tt.name)
			if got != tt.want {
				t.Errorf("GenerateSlug(%q) = %q, want %q", tt.name, got, tt.want)
			}
			if got != "" {
				if err := ValidateSlug(got); err != nil {
					t.Errorf("generated slug %q is invalid: %v", got, err)
				}
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == "" || a == b {
		t.Errorf("GenerateID() = %q, %q; want unique non-empty", a, b)
	}
}
