package device

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	maxSlugLength = 50
	maxStateKeys  = 32
)

var slugRegex = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ValidateDevice returns the first validation failure found in d.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}
	if d.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDevice)
	}
	if err := ValidateName(d.Name); err != nil {
		return err
	}
	if d.Slug != "" {
		if err := ValidateSlug(d.Slug); err != nil {
			return err
		}
	}
	if !slices.Contains(AllDeviceTypes(), d.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}
	if !slices.Contains(AllDomains(), d.Domain) {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, d.Domain)
	}
	if !slices.Contains(AllProtocols(), d.Protocol) {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, d.Protocol)
	}
	for _, c := range d.Capabilities {
		if !slices.Contains(AllCapabilities(), c) {
			return fmt.Errorf("%w: %q", ErrInvalidCapability, c)
		}
	}
	if d.HealthStatus != "" && !slices.Contains(AllHealthStatuses(), d.HealthStatus) {
		return fmt.Errorf("%w: health status %q", ErrInvalidDevice, d.HealthStatus)
	}
	if len(d.State) > maxStateKeys {
		return fmt.Errorf("%w: state has %d keys (max %d)", ErrInvalidDevice, len(d.State), maxStateKeys)
	}
	return nil
}

// ValidateName checks a device name is present and not too long.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateSlug checks a slug is lowercase alphanumeric with single hyphens.
func ValidateSlug(slug string) error {
	if len(slug) > maxSlugLength {
		return fmt.Errorf("%w: slug exceeds %d characters", ErrInvalidSlug, maxSlugLength)
	}
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	return nil
}

// GenerateSlug creates a URL-safe slug from a name.
func GenerateSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == ' ' || r == '_' || r == '-':
			b.WriteRune('-')
		}
	}
	slug := b.String()

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
