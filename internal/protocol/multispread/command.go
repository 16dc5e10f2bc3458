package multispread

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/srg/blesense/internal/codec"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
)

type action struct {
	name    string
	payload [2]byte
}

var commandActions = map[string][]action{
	CommandDoorCalibration: {
		{ActionStart, [2]byte{ContextCalibrate, CalibrateStart}},
		{ActionCancel, [2]byte{ContextCalibrate, CalibrateCancel}},
	},
	CommandDriveWheel: {
		{ActionEngage, [2]byte{ContextDriveWheel, DriveWheelEngage}},
		{ActionDisengage, [2]byte{ContextDriveWheel, DriveWheelDisengage}},
		{ActionStatus, [2]byte{ContextDriveWheel, DriveWheelStatus}},
	},
	CommandDiagnostics: {
		{ActionEnableDriveWheel, [2]byte{ContextDWDiagnostics, DiagnosticsEnable}},
		{ActionDisableDriveWheel, [2]byte{ContextDWDiagnostics, DiagnosticsDisable}},
		{ActionEnableDoor, [2]byte{ContextDoorDiagnostics, DiagnosticsEnable}},
		{ActionDisableDoor, [2]byte{ContextDoorDiagnostics, DiagnosticsDisable}},
	},
}

// Encode maps a command onto a characteristic write. Names match exactly,
// actions case-insensitively.
func (p *Protocol) Encode(cmd protocol.Command) (gatt.Operation, error) {
	if cmd.Name == CommandDoorOpening {
		return encodeDoorOpening(cmd.Arg)
	}

	actions, ok := commandActions[cmd.Name]
	if !ok {
		return gatt.Operation{}, &protocol.UnknownCommandError{Protocol: Type, Command: cmd}
	}

	arg := strings.TrimSpace(cmd.Arg)
	for _, a := range actions {
		if strings.EqualFold(a.name, arg) {
			return gatt.NewWrite(CommandRequestUUID, a.payload[:]), nil
		}
	}
	return gatt.Operation{}, &protocol.UnknownCommandError{Protocol: Type, Command: cmd}
}

func encodeDoorOpening(arg string) (gatt.Operation, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return gatt.Operation{}, fmt.Errorf("%w: door opening %q is not a number", protocol.ErrInvalidArgument, arg)
	}
	if n < 0 || n > 0xFFFF {
		return gatt.Operation{}, fmt.Errorf("%w: door opening %d out of range", protocol.ErrInvalidArgument, n)
	}
	return gatt.NewWrite(DoorTargetUUID, codec.PutU16BE(n)), nil
}
