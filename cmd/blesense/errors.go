package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blesense/internal/config"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/transport"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the peripheral disconnected while a command
	// was still waiting on it.
	ErrConnectionLost = errors.New("connection lost")

	// ErrDeviceTypeRequired is returned when neither --type nor the config
	// names a device type.
	ErrDeviceTypeRequired = errors.New("device type required")
)

// FormatUserError turns internal errors into messages for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case transport.IsConnectionState(err, transport.BluetoothOff):
		return "Bluetooth is turned off, enable it and try again"
	case errors.Is(err, transport.ErrTransportUnavailable):
		return "no Bluetooth adapter available on this host"
	case transport.IsConnectionState(err, transport.NotConnected):
		return "device is not connected"
	case errors.Is(err, ErrConnectionLost):
		return "connection to the device was lost"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the device"
	case errors.Is(err, ErrDeviceTypeRequired), errors.Is(err, devicefactory.ErrUnsupportedType):
		return fmt.Sprintf("%v (supported: %s)", err, strings.Join(devicefactory.SupportedTypes(), ", "))
	case errors.Is(err, protocol.ErrInvalidArgument):
		return fmt.Sprintf("invalid command: %v", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return fmt.Sprintf("bad configuration: %v", err)
	default:
		return err.Error()
	}
}
