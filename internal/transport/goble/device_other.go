//go:build !darwin && !linux

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/transport"
)

func newDefaultDevice() (ble.Device, error) {
	return nil, fmt.Errorf("%w: no BLE host support on %s", transport.ErrTransportUnavailable, runtime.GOOS)
}
