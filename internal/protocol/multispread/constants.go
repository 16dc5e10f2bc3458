package multispread

import "github.com/srg/blesense/internal/gatt"

const (
	Type        = "mm-controller"
	ServiceType = "spreader"
	DefaultName = "Multispread"
)

var (
	ServiceUUID         = gatt.MustParseUUID("1810343d-6040-4ac2-baa7-faa02b316363")
	SpeedUUID           = gatt.MustParseUUID("219b6ba9-d0b1-489c-92dd-d139fefdb5b6")
	DoorOpeningUUID     = gatt.MustParseUUID("4dbe6ddb-a7ba-4979-a623-f2372c102624")
	LoadCellUUID        = gatt.MustParseUUID("ba5761a5-abfb-42fb-8f9a-a67f663c7684")
	DoorTargetUUID      = gatt.MustParseUUID("9863df31-3379-48d4-981c-4b008ded639d")
	CommandRequestUUID  = gatt.MustParseUUID("e29e238a-c4c1-4160-8dbd-c22437081105")
	CommandResponseUUID = gatt.MustParseUUID("aeb1c336-63d8-45e4-89dc-d17172c89036")
)

// Frame value keys
const (
	KeySpinnerSpeed = "spinnerSpeed"
	KeyBeltSpeed    = "beltSpeed"
	KeyDoorOpening  = "doorOpening"
	KeyLoadCell     = "loadCell"
	KeyRawLoadCells = "rawLoadCells"
)

// Command contexts, the first byte of every command request and response
const (
	ContextCalibrate       byte = 0x01
	ContextDriveWheel      byte = 0x02
	ContextDoorDiagnostics byte = 0x03
	ContextDWDiagnostics   byte = 0x04
)

// Calibration
const (
	CalibrateStart  byte = 0x01
	CalibrateCancel byte = 0x02

	CalibrationCompleted byte = 0x01
	CalibrationTimeout   byte = 0x02
	CalibrationCancelled byte = 0x03
)

// Drive wheel
const (
	DriveWheelEngage    byte = 0x01
	DriveWheelDisengage byte = 0x02
	DriveWheelStatus    byte = 0x03

	DriveWheelEngaged     byte = 0x01
	DriveWheelDisengaged  byte = 0x02
	DriveWheelEngaging    byte = 0x03
	DriveWheelDisengaging byte = 0x04
	DriveWheelTimeout     byte = 0x05
)

// Diagnostics
const (
	DiagnosticsEnable  byte = 0x01
	DiagnosticsDisable byte = 0x00
)

// Command names and actions accepted by Encode
const (
	CommandDoorOpening     = "doorOpening"
	CommandDoorCalibration = "doorCalibration"
	CommandDriveWheel      = "driveWheel"
	CommandDiagnostics     = "diagnostics"

	ActionStart     = "start"
	ActionCancel    = "cancel"
	ActionEngage    = "engage"
	ActionDisengage = "disengage"
	ActionStatus    = "status"

	ActionEnableDriveWheel  = "enable-drive-wheel"
	ActionDisableDriveWheel = "disable-drive-wheel"
	ActionEnableDoor        = "enable-door"
	ActionDisableDoor       = "disable-door"
)

// diagnosticBits lists status bit names by bit position.
var diagnosticBits = [...]string{
	"lowBattery",
	"offTarget",
	"timeout",
	"extending",
	"retracting",
	"extended",
	"retracted",
}
