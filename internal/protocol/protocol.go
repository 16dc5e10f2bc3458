// Package protocol defines the per-device-type capability used by a session to
// turn raw characteristic values into frames and semantic commands into writes.
//
// Implementations live in sub-packages (heartrate, multispread) and are selected
// once, by type string, through the devicefactory package.
package protocol

import (
	"github.com/srg/blesense/internal/gatt"
)

// Frame data types
const (
	DataTypeSensors         = "sensors"
	DataTypeCommandResponse = "commandResponse"
	DataTypeDeviceInfo      = "deviceInfo"
)

// Frame is one logically complete reading or command response.
type Frame struct {
	DataType string
	Values   map[string]any
}

// Command is a semantic request such as doorOpening=120 or driveWheel=engage.
type Command struct {
	Name string
	Arg  string
}

func (c Command) String() string {
	return c.Name + "=" + c.Arg
}

// DeviceProtocol decodes notifications and encodes commands for one device type.
//
// A DeviceProtocol instance holds accumulation state for a single peripheral and
// must not be shared. It is driven from one goroutine only.
type DeviceProtocol interface {
	// Type is the inferred device type string, e.g. "heart-rate".
	Type() string

	// ServiceType names the protocol in outward data events, e.g. "heartRate".
	ServiceType() string

	// DefaultName is used when the peripheral advertises no name.
	DefaultName() string

	// Service is the primary GATT service of the device.
	Service() gatt.UUID

	// Setup returns the operations to enqueue once services are discovered.
	Setup() []gatt.Operation

	// Decode folds a characteristic value into the protocol state. It returns
	// a frame when one is complete, nil when the value was only accumulated.
	Decode(char gatt.UUID, data []byte) (*Frame, error)

	// Encode maps a command onto the write that carries it.
	Encode(cmd Command) (gatt.Operation, error)

	// Reset drops any partially accumulated state.
	Reset()
}

// CloneValues returns a shallow copy of values, so an emitted frame is not
// aliased by later accumulation.
func CloneValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}
