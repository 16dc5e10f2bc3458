package protocol

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blesense/internal/codec"
	"github.com/srg/blesense/internal/gatt"
)

type deviceInfoField struct {
	char gatt.UUID
	key  string
	hex  bool
}

// deviceInfoFields is the read order used after service discovery.
var deviceInfoFields = []deviceInfoField{
	{gatt.SystemID, "systemId", true},
	{gatt.ModelNumber, "modelNumber", false},
	{gatt.SerialNumber, "serialNumber", false},
	{gatt.FirmwareRevision, "firmwareRev", false},
	{gatt.HardwareRevision, "hardwareRev", false},
	{gatt.SoftwareRevision, "softwareRev", false},
	{gatt.ManufacturerName, "manufacturerName", false},
	{gatt.CertificationData, "certData", false},
}

// DeviceInfoReads returns one read per standard device information characteristic.
func DeviceInfoReads() []gatt.Operation {
	ops := make([]gatt.Operation, 0, len(deviceInfoFields))
	for _, f := range deviceInfoFields {
		ops = append(ops, gatt.NewRead(f.char))
	}
	return ops
}

// IsDeviceInfo reports whether char is one of the device information characteristics.
func IsDeviceInfo(char gatt.UUID) bool {
	_, ok := lookupDeviceInfo(char)
	return ok
}

func lookupDeviceInfo(char gatt.UUID) (deviceInfoField, bool) {
	for _, f := range deviceInfoFields {
		if f.char == char {
			return f, true
		}
	}
	return deviceInfoField{}, false
}

// DeviceInfo accumulates device information fields in arrival order.
type DeviceInfo struct {
	fields *orderedmap.OrderedMap[string, string]
}

func NewDeviceInfo() *DeviceInfo {
	return &DeviceInfo{fields: orderedmap.New[string, string]()}
}

// Apply decodes a device information value into the record. The system id is
// rendered as hex, everything else as text.
func (d *DeviceInfo) Apply(char gatt.UUID, data []byte) error {
	f, ok := lookupDeviceInfo(char)
	if !ok {
		return &UnknownCharacteristicError{Protocol: DataTypeDeviceInfo, Characteristic: char}
	}

	if f.hex {
		d.fields.Set(f.key, codec.HexString(data))
	} else {
		d.fields.Set(f.key, codec.Text(data))
	}
	return nil
}

// Get returns a field value by key.
func (d *DeviceInfo) Get(key string) (string, bool) {
	return d.fields.Get(key)
}

func (d *DeviceInfo) Len() int {
	return d.fields.Len()
}

func (d *DeviceInfo) Reset() {
	d.fields = orderedmap.New[string, string]()
}

// Snapshot copies the record so it can be emitted while accumulation continues.
func (d *DeviceInfo) Snapshot() *DeviceInfo {
	out := NewDeviceInfo()
	for pair := d.fields.Oldest(); pair != nil; pair = pair.Next() {
		out.fields.Set(pair.Key, pair.Value)
	}
	return out
}

// MarshalJSON keeps arrival order.
func (d *DeviceInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.fields)
}
