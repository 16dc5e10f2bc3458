package transport

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/gatt"
)

// ConnectionState is the specific kind of connection failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

var (
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrOperationFailed      = errors.New("operation failed")
)

// NotFoundError reports a characteristic that was not discovered on the peripheral
type NotFoundError struct {
	Characteristic gatt.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("characteristic %q not found", e.Characteristic.Short())
}

// OperationError describes a completion reported with a non-success status.
type OperationError struct {
	Kind           gatt.Kind
	Characteristic gatt.UUID
	Status         gatt.Status
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s %s failed with status 0x%X", e.Kind, e.Characteristic.Short(), int(e.Status))
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
