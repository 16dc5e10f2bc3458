package multispread

import (
	"github.com/srg/blesense/internal/codec"
	"github.com/srg/blesense/internal/protocol"
)

// decodeResponse decodes a command response. A context with an unexpected
// length, or an unknown context, yields no frame and no error.
func decodeResponse(d []byte) (*protocol.Frame, error) {
	if err := codec.Require(d, 0, 1); err != nil {
		return nil, err
	}

	var values map[string]any
	switch d[0] {
	case ContextCalibrate:
		if len(d) == 2 {
			values = map[string]any{
				"context": "door-calibration-status",
				"status":  CalibrationStatus(d[1]),
			}
		}

	case ContextDriveWheel:
		if len(d) == 2 {
			values = map[string]any{
				"context": "drive-wheel-status",
				"status":  DriveWheelState(d[1]),
			}
		}

	case ContextDoorDiagnostics:
		if len(d) == 7 {
			values = map[string]any{
				"context": "door-diagnostics",
				"current": codec.U16LE(d[2], d[1]),
				"status":  DiagnosticStatus(codec.U32LE(d[6], d[5], d[4], d[3])),
			}
		}

	case ContextDWDiagnostics:
		if len(d) == 7 {
			values = map[string]any{
				"context": "drive-wheel-diagnostics",
				"battery": codec.U16LE(d[2], d[1]),
				"status":  DiagnosticStatus(codec.U32LE(d[6], d[5], d[4], d[3])),
			}
		}
	}

	if values == nil {
		return nil, nil
	}
	return &protocol.Frame{DataType: protocol.DataTypeCommandResponse, Values: values}, nil
}

// CalibrationStatus names a door calibration response code.
func CalibrationStatus(code byte) string {
	switch code {
	case CalibrationCompleted:
		return "completed"
	case CalibrationTimeout:
		return "timeout"
	case CalibrationCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DriveWheelState names a drive wheel response code.
func DriveWheelState(code byte) string {
	switch code {
	case DriveWheelEngaged:
		return "engaged"
	case DriveWheelDisengaged:
		return "disengaged"
	case DriveWheelEngaging:
		return "engaging"
	case DriveWheelDisengaging:
		return "disengaging"
	case DriveWheelTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// DiagnosticStatus unpacks the seven diagnostic status bits.
func DiagnosticStatus(status uint32) map[string]bool {
	bits := make(map[string]bool, len(diagnosticBits))
	for i, name := range diagnosticBits {
		bits[name] = status&(1<<i) != 0
	}
	return bits
}
