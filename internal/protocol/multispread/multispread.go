// Package multispread implements the multispread controller protocol: an
// accumulated sensor frame built from three notifying characteristics, a
// command request/response pair and a door opening target.
package multispread

import (
	"encoding/binary"
	"fmt"

	"github.com/srg/blesense/internal/codec"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
)

// seen bits of the sensor accumulator
const (
	flagNone    = 0x00
	flagSpinner = 0x01
	flagDoor    = 0x02
	flagLoad    = 0x04
	flagAll     = flagSpinner | flagDoor | flagLoad
)

// Protocol accumulates speed, door and load cell readings into one frame.
// A frame is emitted once all three have been seen, or early when a reading
// repeats before the set is complete.
type Protocol struct {
	values map[string]any
	seen   int
}

var _ protocol.DeviceProtocol = (*Protocol)(nil)

func New() *Protocol {
	return &Protocol{values: make(map[string]any)}
}

func (p *Protocol) Type() string        { return Type }
func (p *Protocol) ServiceType() string { return ServiceType }
func (p *Protocol) DefaultName() string { return DefaultName }
func (p *Protocol) Service() gatt.UUID  { return ServiceUUID }

// Setup enables notifications on the three sensors and the command response.
func (p *Protocol) Setup() []gatt.Operation {
	return []gatt.Operation{
		gatt.EnableNotifications(SpeedUUID),
		gatt.EnableNotifications(DoorOpeningUUID),
		gatt.EnableNotifications(LoadCellUUID),
		gatt.EnableNotifications(CommandResponseUUID),
	}
}

func (p *Protocol) Decode(char gatt.UUID, data []byte) (*protocol.Frame, error) {
	if char == CommandResponseUUID {
		return decodeResponse(data)
	}

	flag := flagFor(char)
	if flag == flagNone {
		return nil, &protocol.UnknownCharacteristicError{Protocol: Type, Characteristic: char}
	}

	fields, err := decodeSensor(flag, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", char.Short(), err)
	}

	var frame *protocol.Frame

	// a repeated reading closes the current frame before it is folded in
	if p.seen&flag != 0 {
		frame = p.emit()
	}

	for k, v := range fields {
		p.values[k] = v
	}
	p.seen |= flag

	if p.seen&flagAll == flagAll {
		frame = p.emit()
	}

	return frame, nil
}

func (p *Protocol) Reset() {
	p.values = make(map[string]any)
	p.seen = flagNone
}

func (p *Protocol) emit() *protocol.Frame {
	frame := &protocol.Frame{
		DataType: protocol.DataTypeSensors,
		Values:   p.values,
	}
	p.Reset()
	return frame
}

func flagFor(char gatt.UUID) int {
	switch char {
	case SpeedUUID:
		return flagSpinner
	case DoorOpeningUUID:
		return flagDoor
	case LoadCellUUID:
		return flagLoad
	default:
		return flagNone
	}
}

// Multi-byte sensor fields arrive most significant byte first; the helpers
// take their least significant byte first, hence the reversed arguments.
func decodeSensor(flag int, d []byte) (map[string]any, error) {
	switch flag {
	case flagSpinner:
		if err := codec.Require(d, 0, 2); err != nil {
			return nil, err
		}
		fields := map[string]any{KeySpinnerSpeed: codec.U16LE(d[1], d[0])}
		if len(d) > 2 {
			if err := codec.Require(d, 2, 2); err != nil {
				return nil, err
			}
			fields[KeyBeltSpeed] = codec.U16LE(d[3], d[2])
		}
		return fields, nil

	case flagDoor:
		if err := codec.Require(d, 0, 2); err != nil {
			return nil, err
		}
		return map[string]any{KeyDoorOpening: codec.U16LE(d[1], d[0])}, nil

	default:
		return decodeLoadCells(d)
	}
}

func decodeLoadCells(d []byte) (map[string]any, error) {
	if len(d) < 5 {
		// single cell, most significant byte first
		total, err := codec.Uint32At(d, 0, binary.BigEndian)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			KeyLoadCell:     int32(total),
			KeyRawLoadCells: map[string]int32{},
		}, nil
	}

	n := int(d[0])
	if err := codec.Require(d, 1, 4*n); err != nil {
		return nil, err
	}

	cells := make(map[string]int32, n)
	var total int32
	for i := 0; i < n; i++ {
		idx := 4*i + 1
		word := codec.U32LE(d[idx+3], d[idx+2], d[idx+1], d[idx])
		value := codec.Unpack24(word)
		cells[fmt.Sprintf("port%d", word>>24)] = value
		if value != codec.NoReading {
			total += value
		}
	}

	return map[string]any{
		KeyLoadCell:     total,
		KeyRawLoadCells: cells,
	}, nil
}
