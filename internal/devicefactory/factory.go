// Package devicefactory selects the device protocol for a peripheral and
// creates the transport and scanner the CLI drives it with.
package devicefactory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/protocol/heartrate"
	"github.com/srg/blesense/internal/protocol/multispread"
	"github.com/srg/blesense/internal/transport"
	"github.com/srg/blesense/internal/transport/goble"
)

// Device types recognised by InferType that have no protocol implementation
const (
	TypeSensorTag    = "sensor-tag"
	TypeTaskitSerial = "taskit-serial"
)

var (
	// ErrUnsupportedType is returned for device types without a protocol
	ErrUnsupportedType = errors.New("unsupported device type")

	taskitSerialService = gatt.MustParseUUID("912FFFF0-3D4B-11E3-A760-0002A5D5C51B")
	sensorTagNames      = []string{"SensorTag", "TI BLE Sensor Tag"}
)

type registration struct {
	service gatt.UUID
	create  func() protocol.DeviceProtocol
}

var registry = map[string]registration{
	heartrate.Type: {
		service: heartrate.ServiceUUID,
		create:  func() protocol.DeviceProtocol { return heartrate.New() },
	},
	multispread.Type: {
		service: multispread.ServiceUUID,
		create:  func() protocol.DeviceProtocol { return multispread.New() },
	},
}

// NewProtocol creates a fresh protocol instance for deviceType.
func NewProtocol(deviceType string) (protocol.DeviceProtocol, error) {
	reg, ok := registry[deviceType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, deviceType)
	}
	return reg.create(), nil
}

// SupportedTypes lists the device types NewProtocol accepts, sorted.
func SupportedTypes() []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// InferType guesses the device type of an advertising peripheral. Advertised
// services are checked first, then the local name. It returns "" when
// nothing matches.
func InferType(name string, services []gatt.UUID) string {
	for _, svc := range services {
		switch svc {
		case heartrate.ServiceUUID:
			return heartrate.Type
		case multispread.ServiceUUID:
			return multispread.Type
		case taskitSerialService:
			return TypeTaskitSerial
		}
	}

	for _, n := range sensorTagNames {
		if strings.EqualFold(n, name) {
			return TypeSensorTag
		}
	}
	return ""
}

// DisplayName returns name, or the protocol's default name when the
// peripheral did not advertise one.
func DisplayName(name string, p protocol.DeviceProtocol) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	if p == nil {
		return ""
	}
	return p.DefaultName()
}

// TransportFactory creates the transport used for a session.
// This is a variable so that it can be overridden in tests.
var TransportFactory = func(connectTimeout time.Duration, logger *logrus.Logger) transport.Transport {
	return goble.New(connectTimeout, logger)
}

// ScannerFactory creates the scanner used for discovery.
// This is a variable so that it can be overridden in tests.
var ScannerFactory = func(logger *logrus.Logger) (transport.Scanner, error) {
	return goble.NewScanner(logger)
}
