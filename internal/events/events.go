// Package events defines the outward events a session emits and the sinks
// that deliver them. Event names and payload keys are a wire contract with the
// consuming bridge layer and must not change.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names
const (
	NameScanning   = "bluetooth-le:scanning"
	NameConnection = "bluetooth-le:connection"
	NameStatus     = "bluetooth-le:status"
	NameData       = "bluetooth-le:data"
)

// Scanning actions
const (
	ActionDiscoveryStarted = "discovery-started"
	ActionDeviceDetected   = "device-detected"
	ActionDiscoveryStopped = "discovery-stopped"
)

// Connection statuses
const (
	Connecting    = "connecting"
	Connected     = "connected"
	Disconnecting = "disconnecting"
	Disconnected  = "disconnected"
)

// Status codes
const (
	StatusReady           = "ready"
	StatusOff             = "off"
	StatusUnauthorised    = "unauthorised"
	StatusUnsupported     = "unsupported"
	StatusOperationFailed = "operation-failed"
)

const deviceInfoType = "deviceInfo"

var statusLabels = map[string]string{
	StatusReady:        "Bluetooth is powered on and ready",
	StatusOff:          "Bluetooth is powered off",
	StatusUnauthorised: "Bluetooth is unauthorized",
	StatusUnsupported:  "Bluetooth in unsupported state",
}

// Now is the clock used for event timestamps (can be overridden in tests)
var Now = time.Now

// Event is a named payload. It marshals as {"data": payload}.
type Event struct {
	Name    string
	Payload map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"data": e.Payload})
}

func (e Event) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf("%s <unmarshalable: %v>", e.Name, err)
	}
	return e.Name + " " + string(b)
}

func timestamp() int64 {
	return Now().UnixMilli()
}

// ScanStarted is sent when discovery begins.
func ScanStarted() Event {
	return Event{Name: NameScanning, Payload: map[string]any{"action": ActionDiscoveryStarted}}
}

// ScanStopped is sent when discovery ends.
func ScanStopped() Event {
	return Event{Name: NameScanning, Payload: map[string]any{"action": ActionDiscoveryStopped}}
}

// DeviceDetected reports an advertising peripheral of a known type.
func DeviceDetected(name, address, deviceType string, rssi int) Event {
	return Event{Name: NameScanning, Payload: map[string]any{
		"action":    ActionDeviceDetected,
		"timestamp": timestamp(),
		"name":      name,
		"address":   address,
		"rssi":      rssi,
		"type":      deviceType,
	}}
}

// Connection reports a connection lifecycle change.
func Connection(address, status string) Event {
	return Event{Name: NameConnection, Payload: map[string]any{
		"timestamp": timestamp(),
		"address":   address,
		"status":    status,
	}}
}

// Status reports an adapter status with its standard label.
func Status(code string) Event {
	return StatusWithLabel(code, StatusLabel(code))
}

// StatusWithLabel reports a status with a caller supplied label.
func StatusWithLabel(code, label string) Event {
	return Event{Name: NameStatus, Payload: map[string]any{
		"timestamp": timestamp(),
		"status":    code,
		"label":     label,
	}}
}

// StatusLabel returns the human readable label for an adapter status code.
func StatusLabel(code string) string {
	if label, ok := statusLabels[code]; ok {
		return label
	}
	return "Mysterious status"
}

// DeviceInfo carries the device information record accumulated so far.
func DeviceInfo(address string, values any) Event {
	return Event{Name: NameData, Payload: map[string]any{
		"timestamp": timestamp(),
		"address":   address,
		"service":   deviceInfoType,
		"type":      deviceInfoType,
		"values":    values,
	}}
}

// Data carries one decoded frame.
func Data(name, serviceType, dataType, address string, values map[string]any) Event {
	return Event{Name: NameData, Payload: map[string]any{
		"timestamp": timestamp(),
		"name":      name,
		"address":   address,
		"service":   serviceType,
		"type":      dataType,
		"values":    values,
	}}
}
