// Package transport describes the GATT transport a session drives: an
// asynchronous issue/complete API for one peripheral, with results delivered
// through Callbacks.
package transport

import (
	"context"
	"fmt"

	"github.com/srg/blesense/internal/gatt"
)

// State is the connection state of a peripheral.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Completion statuses reported alongside gatt.StatusSuccess
const (
	StatusFailure      gatt.Status = 0x101
	StatusNotConnected gatt.Status = 0x102
)

// Callbacks receives transport events. Implementations must tolerate being
// called from any goroutine.
type Callbacks interface {
	OnConnectionStateChanged(state State)
	OnServicesDiscovered(status gatt.Status)
	OnCharacteristicRead(char gatt.UUID, data []byte, status gatt.Status)
	OnCharacteristicWrite(char gatt.UUID, status gatt.Status)
	OnCharacteristicChanged(char gatt.UUID, data []byte)
	OnDescriptorWrite(char gatt.UUID, status gatt.Status)
}

// Transport issues GATT operations against a single peripheral.
//
// Every Issue call returns as soon as the operation is started; its result
// arrives later through the matching callback. A non-nil error means the
// operation was refused and no callback will follow. Callers must not issue a
// second operation before the first one completes, and characteristics are
// only known once DiscoverServices has reported success.
//
// A nil error from Disconnect promises one OnConnectionStateChanged(Disconnected)
// confirmation, delivered before any state change of a later Connect. An error
// (ErrNotConnected when there is no link) means no confirmation follows.
type Transport interface {
	SetCallbacks(cb Callbacks)
	Connect(ctx context.Context, address string) error
	Disconnect() error
	DiscoverServices() error
	IssueRead(char gatt.UUID) error
	IssueWrite(char gatt.UUID, data []byte) error
	IssueDescriptorWrite(char gatt.UUID, value []byte) error
}

// Advertisement is a peripheral seen while scanning.
type Advertisement struct {
	Name        string
	Address     string
	RSSI        int
	Connectable bool
	Services    []gatt.UUID
}

// Scanner discovers advertising peripherals until ctx is done.
type Scanner interface {
	Scan(ctx context.Context, handler func(Advertisement)) error
}
