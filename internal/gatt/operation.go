package gatt

import "fmt"

// Kind is the class of a pending GATT operation. The declaration order is
// the dispatch priority.
type Kind int

const (
	DescriptorWrite Kind = iota
	CharacteristicRead
	CharacteristicWrite

	numKinds = iota
)

func (k Kind) String() string {
	switch k {
	case DescriptorWrite:
		return "descriptor-write"
	case CharacteristicRead:
		return "read"
	case CharacteristicWrite:
		return "write"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is the completion status reported by the transport.
type Status int

// StatusSuccess is the only status that carries usable data
const StatusSuccess Status = 0

// Operation is a GATT request waiting to be issued or completed.
// Operations are values; the payload is copied on construction.
type Operation struct {
	Kind           Kind
	Characteristic UUID
	Payload        []byte
}

// NewRead creates a characteristic read.
func NewRead(char UUID) Operation {
	return Operation{Kind: CharacteristicRead, Characteristic: char}
}

// NewWrite creates a characteristic write carrying a copy of data.
func NewWrite(char UUID, data []byte) Operation {
	return Operation{Kind: CharacteristicWrite, Characteristic: char, Payload: clone(data)}
}

// NewDescriptorWrite creates a client characteristic configuration write for char.
func NewDescriptorWrite(char UUID, value []byte) Operation {
	return Operation{Kind: DescriptorWrite, Characteristic: char, Payload: clone(value)}
}

// EnableNotifications is shorthand for a descriptor write of EnableNotificationValue.
func EnableNotifications(char UUID) Operation {
	return NewDescriptorWrite(char, EnableNotificationValue)
}

func (o Operation) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.Characteristic.Short())
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
