// Package heartrate implements the Bluetooth SIG heart rate profile.
package heartrate

import (
	"encoding/binary"

	"github.com/srg/blesense/internal/codec"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
)

const (
	Type        = "heart-rate"
	ServiceType = "heartRate"
	DefaultName = "Heart Rate"
)

var (
	ServiceUUID            = gatt.MustParseUUID("180d")
	BPMUUID                = gatt.MustParseUUID("2a37")
	BodySensorLocationUUID = gatt.MustParseUUID("2a38")
)

const flagUint16 = 0x01

var sensorLocations = map[int]string{
	0: "other",
	1: "chest",
	2: "wrist",
	3: "finger",
	4: "hand",
	5: "ear lobe",
	6: "foot",
}

// Protocol keeps the last heart rate and sensor location so every emitted
// frame carries both.
type Protocol struct {
	values map[string]any
}

var _ protocol.DeviceProtocol = (*Protocol)(nil)

func New() *Protocol {
	return &Protocol{values: make(map[string]any)}
}

func (p *Protocol) Type() string        { return Type }
func (p *Protocol) ServiceType() string { return ServiceType }
func (p *Protocol) DefaultName() string { return DefaultName }
func (p *Protocol) Service() gatt.UUID  { return ServiceUUID }

// Setup enables BPM notifications and reads the body sensor location.
func (p *Protocol) Setup() []gatt.Operation {
	return []gatt.Operation{
		gatt.EnableNotifications(BPMUUID),
		gatt.NewRead(BodySensorLocationUUID),
	}
}

func (p *Protocol) Decode(char gatt.UUID, data []byte) (*protocol.Frame, error) {
	switch char {
	case BPMUUID:
		bpm, err := decodeBPM(data)
		if err != nil {
			return nil, err
		}
		p.values["heartRate"] = bpm

	case BodySensorLocationUUID:
		loc, err := codec.U8(data, 0)
		if err != nil {
			return nil, err
		}
		p.values["sensorLocation"] = SensorLocation(loc)

	default:
		return nil, &protocol.UnknownCharacteristicError{Protocol: Type, Characteristic: char}
	}

	return &protocol.Frame{
		DataType: protocol.DataTypeSensors,
		Values:   protocol.CloneValues(p.values),
	}, nil
}

// Encode rejects everything; the profile has no commands.
func (p *Protocol) Encode(cmd protocol.Command) (gatt.Operation, error) {
	return gatt.Operation{}, &protocol.UnknownCommandError{Protocol: Type, Command: cmd}
}

func (p *Protocol) Reset() {
	p.values = make(map[string]any)
}

// SensorLocation names a body sensor location code.
func SensorLocation(code int) string {
	if name, ok := sensorLocations[code]; ok {
		return name
	}
	return "unknown"
}

func decodeBPM(data []byte) (int, error) {
	flags, err := codec.U8(data, 0)
	if err != nil {
		return 0, err
	}
	if flags&flagUint16 != 0 {
		return codec.Uint16At(data, 1, binary.LittleEndian)
	}
	return codec.U8(data, 1)
}
