package gatt

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUID identifies a service, characteristic or descriptor. Short SIG forms
// are expanded onto the Bluetooth base UUID, so "2a37", "0x2A37" and
// "00002a37-0000-1000-8000-00805f9b34fb" all parse to the same value.
type UUID uuid.UUID

// baseSuffix is the tail of the Bluetooth base UUID
const baseSuffix = "-0000-1000-8000-00805f9b34fb"

// Nil is the zero UUID
var Nil UUID

// ParseUUID parses a 16-bit, 32-bit or 128-bit UUID, with or without dashes.
func ParseUUID(s string) (UUID, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	raw = strings.TrimPrefix(raw, "0x")

	switch len(raw) {
	case 4:
		raw = "0000" + raw + baseSuffix
	case 8:
		raw = raw + baseSuffix
	}

	u, err := uuid.Parse(raw)
	if err != nil {
		return Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return UUID(u), nil
}

// MustParseUUID is like ParseUUID but panics on error. For package-level constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// String returns the canonical lowercase dashed form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Short returns the 16-bit SIG form ("2a37") when u sits on the Bluetooth
// base UUID, and the full form otherwise.
func (u UUID) Short() string {
	s := u.String()
	if strings.HasPrefix(s, "0000") && strings.HasSuffix(s, baseSuffix) {
		return s[4:8]
	}
	return s
}

// MarshalText implements encoding.TextMarshaler
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Standard descriptor and characteristic identifiers
var (
	ClientCharacteristicConfig = MustParseUUID("2902")

	SystemID          = MustParseUUID("2a23")
	ModelNumber       = MustParseUUID("2a24")
	SerialNumber      = MustParseUUID("2a25")
	FirmwareRevision  = MustParseUUID("2a26")
	HardwareRevision  = MustParseUUID("2a27")
	SoftwareRevision  = MustParseUUID("2a28")
	ManufacturerName  = MustParseUUID("2a29")
	CertificationData = MustParseUUID("2a2a")
)

// Client characteristic configuration values
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)
