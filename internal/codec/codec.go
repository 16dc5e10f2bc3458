// Package codec holds the stateless byte helpers shared by the device protocols.
//
// Every helper treats its input bytes as unsigned. Slice accessors fail with
// ErrMalformedPayload instead of reading past the end of a short payload.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a payload is shorter than a field requires.
var ErrMalformedPayload = errors.New("malformed payload")

// NoReading is the 32-bit value a packed 24-bit minimum (0x800000) unpacks to.
// Load cells report it for ports without a reading.
const NoReading int32 = -0x80000000

// MalformedPayloadError describes a short payload
type MalformedPayloadError struct {
	Offset int // first byte of the field
	Need   int // field width in bytes
	Have   int // payload length
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("%s: need %d byte(s) at offset %d, have %d", ErrMalformedPayload, e.Need, e.Offset, e.Have)
}

// Is allows errors.Is(err, ErrMalformedPayload)
func (e *MalformedPayloadError) Is(target error) bool {
	return target == ErrMalformedPayload
}

// Require checks that data holds width bytes starting at offset.
func Require(data []byte, offset, width int) error {
	if offset < 0 || width < 0 || len(data) < offset+width {
		return &MalformedPayloadError{Offset: offset, Need: width, Have: len(data)}
	}
	return nil
}

// U16LE combines two bytes, b0 being the least significant.
func U16LE(b0, b1 byte) int {
	return int(b0) + int(b1)<<8
}

// U32LE combines four bytes, b0 being the least significant.
func U32LE(b0, b1, b2, b3 byte) uint32 {
	return uint32(b0) + uint32(b1)<<8 + uint32(b2)<<16 + uint32(b3)<<24
}

// U8 returns data[offset] as an unsigned value.
func U8(data []byte, offset int) (int, error) {
	if err := Require(data, offset, 1); err != nil {
		return 0, err
	}
	return int(data[offset]), nil
}

// Uint16At reads a 16-bit field at offset using the given byte order.
func Uint16At(data []byte, offset int, order binary.ByteOrder) (int, error) {
	if err := Require(data, offset, 2); err != nil {
		return 0, err
	}
	return int(order.Uint16(data[offset:])), nil
}

// Uint32At reads a 32-bit field at offset using the given byte order.
func Uint32At(data []byte, offset int, order binary.ByteOrder) (uint32, error) {
	if err := Require(data, offset, 4); err != nil {
		return 0, err
	}
	return order.Uint32(data[offset:]), nil
}

// Unpack24 sign-extends the 24-bit two's-complement value held in the low
// three bytes of packed. The minimum value 0x800000 is not extended to
// 0xFF800000; it maps to NoReading (0x80000000).
func Unpack24(packed uint32) int32 {
	value := packed & 0x00FFFFFF

	if value&0x00800000 != 0 {
		if value == 0x00800000 {
			return NoReading
		}
		return int32(value | 0xFF800000)
	}

	return int32(value)
}

// PutU16BE encodes the low 16 bits of v high byte first.
func PutU16BE(v int) []byte {
	return []byte{byte((v & 0xFF00) >> 8), byte(v & 0xFF)}
}

// HexString renders each byte as two uppercase hex digits, no separators.
func HexString(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data) * 2)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// Text returns the payload as a string.
func Text(data []byte) string {
	return string(data)
}
