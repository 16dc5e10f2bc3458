package protocol

import (
	"errors"
	"fmt"

	"github.com/srg/blesense/internal/gatt"
)

var (
	ErrUnknownCommand        = errors.New("unknown command")
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUnknownCharacteristic = errors.New("unknown characteristic")
	ErrServiceMismatch       = errors.New("service mismatch")
)

// UnknownCommandError reports a command the protocol does not implement.
type UnknownCommandError struct {
	Protocol string
	Command  Command
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("%s: unknown command %q", e.Protocol, e.Command.String())
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownCommand
}

// UnknownCharacteristicError reports a value for a characteristic the protocol does not decode.
type UnknownCharacteristicError struct {
	Protocol       string
	Characteristic gatt.UUID
}

func (e *UnknownCharacteristicError) Error() string {
	return fmt.Sprintf("%s: no decoder for characteristic %s", e.Protocol, e.Characteristic.Short())
}

func (e *UnknownCharacteristicError) Is(target error) bool {
	return target == ErrUnknownCharacteristic
}
