//go:build test

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/protocol/heartrate"
	"github.com/srg/blesense/internal/protocol/multispread"
	"github.com/srg/blesense/internal/testutils"
	"github.com/srg/blesense/internal/transport"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

// machineHarness runs a Machine over a FakeTransport and collects its events
type machineHarness struct {
	suite.Suite
	helper *testutils.TestHelper
	fake   *testutils.FakeTransport
	sink   *events.ChannelSink
	m      *Machine
	cancel context.CancelFunc
	runErr chan error
}

func (s *machineHarness) start(proto protocol.DeviceProtocol) {
	s.helper = testutils.NewTestHelper(s.T())
	s.fake = testutils.NewFakeTransport()
	s.sink = events.NewChannelSink(256)
	s.m = New(s.fake, proto, s.sink, WithLogger(s.helper.Logger), WithInboxSize(16))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.runErr = make(chan error, 1)
	go func() { s.runErr <- s.m.Run(ctx) }()
}

type MachineSuite struct {
	machineHarness
}

func (s *MachineSuite) SetupTest() {
	s.start(heartrate.New())
}

func (s *machineHarness) TearDownTest() {
	s.cancel()
	select {
	case <-s.m.Done():
	case <-time.After(2 * time.Second):
		s.Fail("machine did not stop")
	}
}

// sync waits until every message posted so far has been processed
func (s *machineHarness) sync() {
	s.T().Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Require().NoError(s.m.call(ctx, func() error { return nil }))
}

func (s *machineHarness) drain() []events.Event {
	s.sync()
	var out []events.Event
	for {
		ev, ok := s.sink.TryReceive()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func (s *machineHarness) connectionStatuses(evs []events.Event) []string {
	var out []string
	for _, ev := range evs {
		if ev.Name == events.NameConnection {
			out = append(out, ev.Payload["status"].(string))
		}
	}
	return out
}

func (s *machineHarness) connect() {
	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.m.OnConnectionStateChanged(transport.Connected)
	s.sync()
	s.Require().Equal(transport.Connected, s.m.State())
}

func (s *machineHarness) connectAndDiscover() {
	s.connect()
	s.m.OnServicesDiscovered(gatt.StatusSuccess)
	s.sync()
}

// lastIssued returns the most recent Issue* call
func (s *machineHarness) lastIssued() testutils.Call {
	issued := s.fake.Issued()
	s.Require().NotEmpty(issued)
	return issued[len(issued)-1]
}

// completeInFlight acknowledges the in-flight operation with success
func (s *machineHarness) completeInFlight(data []byte) testutils.Call {
	c := s.lastIssued()
	switch c.Method {
	case testutils.MethodDescriptorWrite:
		s.m.OnDescriptorWrite(c.Char, gatt.StatusSuccess)
	case testutils.MethodRead:
		s.m.OnCharacteristicRead(c.Char, data, gatt.StatusSuccess)
	case testutils.MethodWrite:
		s.m.OnCharacteristicWrite(c.Char, gatt.StatusSuccess)
	}
	s.sync()
	return c
}

func (s *MachineSuite) TestConnectDiscoverReadsDeviceInfo() {
	// GOAL: Verify the full connect lifecycle ends with device info reads
	//
	// TEST SCENARIO: connect → Connecting → transport connected → Connected → discovery →
	// BPM notifications enabled → location read → 8 device info reads

	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.Equal(transport.Connecting, s.m.State(), "connect MUST move to Connecting")
	s.Equal(testAddress, s.m.Address())
	s.Require().Len(s.fake.CallsOf(testutils.MethodConnect), 1)
	s.Equal(testAddress, s.fake.CallsOf(testutils.MethodConnect)[0].Address)

	s.m.OnConnectionStateChanged(transport.Connected)
	s.sync()
	s.Equal(transport.Connected, s.m.State())
	s.Len(s.fake.CallsOf(testutils.MethodDiscoverServices), 1, "connected MUST trigger discovery")

	s.m.OnServicesDiscovered(gatt.StatusSuccess)
	s.sync()

	first := s.completeInFlight(nil)
	s.Equal(testutils.MethodDescriptorWrite, first.Method)
	s.Equal(heartrate.BPMUUID, first.Char)
	s.Equal(gatt.EnableNotificationValue, first.Data)

	location := s.completeInFlight([]byte{0x01})
	s.Equal(testutils.MethodRead, location.Method)
	s.Equal(heartrate.BodySensorLocationUUID, location.Char)

	var infoChars []gatt.UUID
	for i := 0; i < 8; i++ {
		c := s.completeInFlight([]byte("x"))
		s.Require().Equal(testutils.MethodRead, c.Method)
		infoChars = append(infoChars, c.Char)
	}
	var expected []gatt.UUID
	for _, op := range protocol.DeviceInfoReads() {
		expected = append(expected, op.Characteristic)
	}
	s.Equal(expected, infoChars, "device info MUST be read in the fixed order")

	evs := s.drain()
	s.Equal([]string{events.Connecting, events.Connected}, s.connectionStatuses(evs))

	var data, info int
	for _, ev := range evs {
		if ev.Name != events.NameData {
			continue
		}
		if ev.Payload["type"] == "deviceInfo" {
			info++
			continue
		}
		data++
		s.Equal(heartrate.ServiceType, ev.Payload["service"])
		s.Equal(heartrate.DefaultName, ev.Payload["name"])
		s.Equal(map[string]any{"sensorLocation": "chest"}, ev.Payload["values"])
	}
	s.Equal(1, data)
	s.Equal(8, info, "device info MUST be re-emitted on every arrival")
}

func (s *MachineSuite) TestDeviceInfoRecordGrows() {
	s.connectAndDiscover()
	s.completeInFlight(nil)
	s.completeInFlight([]byte{0x02})
	s.drain()

	s.completeInFlight([]byte{0x01, 0xAB})
	s.completeInFlight([]byte("HRM-1"))

	evs := s.drain()
	s.Require().Len(evs, 2)

	ja := testutils.NewJSONAsserter(s.T()).WithOptions(testutils.WithIgnoredFields("timestamp"))
	ja.AssertEvent(evs[0], events.NameData, `{"data": {"address": "AA:BB:CC:DD:EE:FF",
		"service": "deviceInfo", "type": "deviceInfo", "values": {"systemId": "01AB"}}}`)
	ja.AssertEvent(evs[1], events.NameData, `{"data": {"address": "AA:BB:CC:DD:EE:FF",
		"service": "deviceInfo", "type": "deviceInfo", "values": {"systemId": "01AB", "modelNumber": "HRM-1"}}}`)
}

func (s *MachineSuite) TestDisconnectIsEagerAndFlushesQueue() {
	// GOAL: Verify disconnect transitions immediately and discards queued operations
	//
	// TEST SCENARIO: connected with queued reads → Disconnect → Disconnected at once →
	// queue empty → transport confirmation produces no second event

	s.connectAndDiscover()
	s.drain()

	s.Require().NoError(s.m.Disconnect(context.Background()))
	s.Equal(transport.Disconnected, s.m.State(), "disconnect MUST NOT wait for the transport")
	s.Len(s.fake.CallsOf(testutils.MethodDisconnect), 1)

	var pending int
	s.Require().NoError(s.m.call(context.Background(), func() error {
		pending = s.m.queue.Len()
		return nil
	}))
	s.Zero(pending, "queue MUST be flushed on disconnect")

	s.m.OnConnectionStateChanged(transport.Disconnected)
	evs := s.drain()
	s.Equal([]string{events.Disconnecting, events.Disconnected}, s.connectionStatuses(evs),
		"exactly one disconnected event MUST be emitted")

	issued := len(s.fake.Issued())
	s.m.OnDescriptorWrite(heartrate.BPMUUID, gatt.StatusSuccess)
	s.sync()
	s.Len(s.fake.Issued(), issued, "late completions MUST NOT dispatch flushed operations")
}

func (s *MachineSuite) TestDisconnectIgnoredUnlessConnected() {
	s.Require().NoError(s.m.Disconnect(context.Background()))
	s.Empty(s.fake.CallsOf(testutils.MethodDisconnect))

	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.Require().NoError(s.m.Disconnect(context.Background()))
	s.Empty(s.fake.CallsOf(testutils.MethodDisconnect), "disconnect while connecting MUST be ignored")
	s.Equal(transport.Connecting, s.m.State())
}

func (s *MachineSuite) TestLinkLoss() {
	// GOAL: Verify a transport-side disconnect clears state and is reported once
	//
	// TEST SCENARIO: connected → transport disconnected twice → one event → commands refused

	s.connectAndDiscover()
	s.drain()

	s.m.OnConnectionStateChanged(transport.Disconnected)
	s.m.OnConnectionStateChanged(transport.Disconnected)
	evs := s.drain()

	s.Equal([]string{events.Disconnected}, s.connectionStatuses(evs))
	s.Equal(transport.Disconnected, s.m.State())
	s.ErrorIs(s.m.RequestDeviceInfo(context.Background()), transport.ErrNotConnected)
}

func (s *MachineSuite) TestReconnectOnExistingSession() {
	// GOAL: Verify connect re-issues on the existing handle and is a no-op once connected
	//
	// TEST SCENARIO: connect → dial fails → connect same address → second transport connect →
	// connected → connect again → no third transport connect

	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.m.OnConnectionStateChanged(transport.Disconnected)
	s.sync()
	s.Equal(transport.Disconnected, s.m.State())

	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.Len(s.fake.CallsOf(testutils.MethodConnect), 2, "reconnect MUST re-issue transport connect")

	s.m.OnConnectionStateChanged(transport.Connected)
	s.sync()
	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.Len(s.fake.CallsOf(testutils.MethodConnect), 2, "connect while connected MUST be a no-op")

	evs := s.drain()
	s.Equal([]string{events.Connecting, events.Disconnected, events.Connecting, events.Connected},
		s.connectionStatuses(evs))
}

func (s *MachineSuite) TestConnectToAnotherAddressClosesCurrent() {
	s.connect()
	s.drain()

	s.Require().NoError(s.m.Connect(context.Background(), "11:22:33:44:55:66"))

	s.Len(s.fake.CallsOf(testutils.MethodDisconnect), 1)
	s.Equal("11:22:33:44:55:66", s.m.Address())
	s.Equal(transport.Connecting, s.m.State())

	evs := s.drain()
	s.Equal([]string{events.Disconnecting, events.Disconnected, events.Connecting}, s.connectionStatuses(evs))
	s.Equal(testAddress, evs[0].Payload["address"])
	s.Equal("11:22:33:44:55:66", evs[2].Payload["address"])
}

func (s *MachineSuite) TestSwitchSwallowsPreviousConfirmation() {
	// GOAL: Verify the confirmation of a closed session does not end the next attempt
	//
	// TEST SCENARIO: connected → connect another address → old link confirms → still Connecting,
	// no extra events

	s.connect()
	s.Require().NoError(s.m.Connect(context.Background(), "11:22:33:44:55:66"))
	s.drain()

	s.m.OnConnectionStateChanged(transport.Disconnected)
	s.Empty(s.connectionStatuses(s.drain()), "confirmation of the closed session MUST be swallowed")
	s.Equal(transport.Connecting, s.m.State())
}

func (s *MachineSuite) TestUnconfirmedDisconnectDoesNotHideLinkLoss() {
	// GOAL: Verify a disconnect the transport never confirms cannot swallow a later link loss
	//
	// TEST SCENARIO: connected → Disconnect (no confirmation) → reconnect → link loss →
	// Disconnected with one disconnected event

	s.connectAndDiscover()
	s.Require().NoError(s.m.Disconnect(context.Background()))
	s.connectAndDiscover()
	s.drain()

	s.m.OnConnectionStateChanged(transport.Disconnected)
	evs := s.drain()

	s.Equal(transport.Disconnected, s.m.State(), "link loss MUST be processed")
	s.Equal([]string{events.Disconnected}, s.connectionStatuses(evs))
}

func (s *MachineSuite) TestRefusedDisconnectExpectsNoConfirmation() {
	// GOAL: Verify a disconnect the transport refuses leaves no confirmation pending
	//
	// TEST SCENARIO: connected → Disconnect refused with ErrNotConnected → connect again →
	// dial fails → disconnected is reported

	s.fake.FailDisconnect(transport.ErrNotConnected)
	s.connect()
	s.Require().NoError(s.m.Disconnect(context.Background()))
	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.drain()

	s.m.OnConnectionStateChanged(transport.Disconnected)
	evs := s.drain()

	s.Equal(transport.Disconnected, s.m.State())
	s.Equal([]string{events.Disconnected}, s.connectionStatuses(evs), "failed dial MUST be reported")
}

func (s *MachineSuite) TestConnectRefusedByTransport() {
	refused := errors.New("adapter busy")
	s.fake.FailConnect(refused)

	err := s.m.Connect(context.Background(), testAddress)
	s.ErrorIs(err, refused)
	s.Equal(transport.Disconnected, s.m.State())
	s.Equal([]string{events.Connecting, events.Disconnected}, s.connectionStatuses(s.drain()))
}

func (s *MachineSuite) TestFailedOperationAdvancesQueue() {
	// GOAL: Verify a failed completion emits a status event and the queue moves on
	//
	// TEST SCENARIO: descriptor write fails → operation-failed status → location read dispatched

	s.connectAndDiscover()
	s.drain()

	s.m.OnDescriptorWrite(heartrate.BPMUUID, transport.StatusFailure)
	s.sync()

	next := s.lastIssued()
	s.Equal(testutils.MethodRead, next.Method, "queue MUST advance after a failure")
	s.Equal(heartrate.BodySensorLocationUUID, next.Char)

	evs := s.drain()
	s.Require().Len(evs, 1)
	s.Equal(events.NameStatus, evs[0].Name)
	s.Equal(events.StatusOperationFailed, evs[0].Payload["status"])
	s.Contains(evs[0].Payload["label"], "descriptor-write 2a37")

	s.m.OnCharacteristicRead(heartrate.BodySensorLocationUUID, []byte{0x01}, transport.StatusNotConnected)
	evs = s.drain()
	s.Require().Len(evs, 1, "failed read MUST NOT produce a data event")
	s.Equal(events.NameStatus, evs[0].Name)
}

func (s *MachineSuite) TestUnexpectedCompletionIsDropped() {
	s.connectAndDiscover()
	s.drain()
	issued := len(s.fake.Issued())

	s.m.OnCharacteristicWrite(heartrate.BPMUUID, gatt.StatusSuccess)
	s.sync()

	s.Len(s.fake.Issued(), issued, "mismatched completion MUST NOT advance the queue")
	s.Empty(s.drain())
}

func (s *MachineSuite) TestRefusedDispatchSkipsOperation() {
	s.fake.Refuse(heartrate.BPMUUID)
	s.connectAndDiscover()

	issued := s.fake.Issued()
	s.Require().Len(issued, 2)
	s.Equal(heartrate.BPMUUID, issued[0].Char)
	s.Equal(heartrate.BodySensorLocationUUID, issued[1].Char, "refused operation MUST NOT stall the queue")
}

func (s *MachineSuite) TestHeartRateNotifications() {
	s.connectAndDiscover()
	s.drain()

	s.m.OnCharacteristicChanged(heartrate.BPMUUID, []byte{0x00, 72})
	s.m.OnCharacteristicChanged(heartrate.BPMUUID, []byte{0x01, 0x2C, 0x01})
	s.m.OnCharacteristicChanged(gatt.MustParseUUID("2a99"), []byte{0x01})
	evs := s.drain()

	s.Require().Len(evs, 2, "unknown characteristics MUST NOT emit")
	s.Equal(map[string]any{"heartRate": 72}, evs[0].Payload["values"])
	s.Equal(map[string]any{"heartRate": 300}, evs[1].Payload["values"])
	s.Equal(protocol.DataTypeSensors, evs[1].Payload["type"])
}

func (s *MachineSuite) TestNotificationOutsideConnectionIsDropped() {
	s.m.OnCharacteristicChanged(heartrate.BPMUUID, []byte{0x00, 72})
	s.Empty(s.drain())
}

func (s *MachineSuite) TestHeartRateRejectsCommands() {
	s.connectAndDiscover()
	issued := len(s.fake.Issued())

	s.NoError(s.m.Send(context.Background(), protocol.Command{Name: "doorOpening", Arg: "1"}),
		"unknown commands MUST be ignored")
	s.Len(s.fake.Issued(), issued)
}

func (s *MachineSuite) TestSendRequiresConnection() {
	err := s.m.Send(context.Background(), protocol.Command{Name: "driveWheel", Arg: "engage"})
	s.ErrorIs(err, transport.ErrNotConnected)
}

func (s *MachineSuite) TestRequestDeviceInfoRereads() {
	s.connectAndDiscover()
	s.completeInFlight(nil)
	s.completeInFlight([]byte{0x01})
	for i := 0; i < 8; i++ {
		s.completeInFlight([]byte("v"))
	}
	reads := len(s.fake.CallsOf(testutils.MethodRead))

	s.Require().NoError(s.m.RequestDeviceInfo(context.Background()))
	s.Len(s.fake.CallsOf(testutils.MethodRead), reads+1, "first re-read MUST be dispatched at once")
	s.Equal(gatt.SystemID, s.lastIssued().Char)
}

func (s *MachineSuite) TestStopTearsDownConnection() {
	s.connect()
	s.drain()

	s.cancel()
	s.Require().NoError(<-s.runErr)

	s.Len(s.fake.CallsOf(testutils.MethodDisconnect), 1, "stopping MUST disconnect the transport")
	s.ErrorIs(s.m.Connect(context.Background(), testAddress), ErrStopped)

	var statuses []string
	for {
		ev, ok := s.sink.TryReceive()
		if !ok {
			break
		}
		statuses = append(statuses, ev.Payload["status"].(string))
	}
	s.Equal([]string{events.Disconnecting, events.Disconnected}, statuses)
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

type MultispreadMachineSuite struct {
	machineHarness
}

func (s *MultispreadMachineSuite) SetupTest() {
	s.start(multispread.New())
}

func (s *MultispreadMachineSuite) TestDispatchPriority() {
	// GOAL: Verify class priority holds across setup and application commands
	//
	// TEST SCENARIO: discovery queues 4 descriptor writes and 8 reads → a write is sent while
	// the first descriptor write is in flight → dispatch order is all descriptor writes, then
	// reads, then the write

	s.connectAndDiscover()
	s.Require().NoError(s.m.Send(context.Background(), protocol.Command{Name: multispread.CommandDoorOpening, Arg: "300"}))

	var methods []string
	for i := 0; i < 13; i++ {
		methods = append(methods, s.completeInFlight([]byte("v")).Method)
	}

	var expected []string
	for i := 0; i < 4; i++ {
		expected = append(expected, testutils.MethodDescriptorWrite)
	}
	for i := 0; i < 8; i++ {
		expected = append(expected, testutils.MethodRead)
	}
	expected = append(expected, testutils.MethodWrite)
	s.Equal(expected, methods)

	write := s.fake.CallsOf(testutils.MethodWrite)[0]
	s.Equal(multispread.DoorTargetUUID, write.Char)
	s.Equal([]byte{0x01, 0x2C}, write.Data)
}

func (s *MultispreadMachineSuite) TestCommandsHeldUntilDiscovery() {
	// GOAL: Verify commands sent between connected and service discovery are not lost
	//
	// TEST SCENARIO: Connected, discovery pending → send driveWheel=engage → nothing issued →
	// discovery succeeds → setup and device info first, then the command write

	s.connect()
	s.Require().NoError(s.m.Send(context.Background(), protocol.Command{Name: multispread.CommandDriveWheel, Arg: multispread.ActionEngage}))
	s.Require().NoError(s.m.RequestDeviceInfo(context.Background()))
	s.Empty(s.fake.Issued(), "nothing MUST reach the transport before discovery")

	s.m.OnServicesDiscovered(gatt.StatusSuccess)
	s.sync()

	var last testutils.Call
	for i := 0; i < 13; i++ {
		last = s.completeInFlight([]byte("v"))
	}
	s.Equal(testutils.MethodWrite, last.Method, "held command MUST follow the setup operations")
	s.Equal(multispread.CommandRequestUUID, last.Char)
	s.Equal([]byte{multispread.ContextDriveWheel, multispread.DriveWheelEngage}, last.Data)
	s.Len(s.fake.CallsOf(testutils.MethodRead), 8, "device info MUST be read once")
}

func (s *MultispreadMachineSuite) TestHeldCommandsDroppedOnLinkLoss() {
	s.connect()
	s.Require().NoError(s.m.Send(context.Background(), protocol.Command{Name: multispread.CommandDriveWheel, Arg: multispread.ActionEngage}))

	s.m.OnConnectionStateChanged(transport.Disconnected)
	s.connectAndDiscover()
	for i := 0; i < 12; i++ {
		s.completeInFlight([]byte("v"))
	}
	s.Empty(s.fake.CallsOf(testutils.MethodWrite), "commands held for a lost link MUST be discarded")
}

func (s *MultispreadMachineSuite) TestSetupEnablesNotifications() {
	s.connectAndDiscover()

	var chars []gatt.UUID
	for i := 0; i < 4; i++ {
		chars = append(chars, s.completeInFlight(nil).Char)
	}
	s.Equal([]gatt.UUID{
		multispread.SpeedUUID,
		multispread.DoorOpeningUUID,
		multispread.LoadCellUUID,
		multispread.CommandResponseUUID,
	}, chars)
}

func (s *MultispreadMachineSuite) TestSensorFrameAssembly() {
	// GOAL: Verify notifications from three characteristics emit one combined frame
	//
	// TEST SCENARIO: door → load cell → speed → single data event with all fields

	s.connectAndDiscover()
	s.drain()

	s.m.OnCharacteristicChanged(multispread.DoorOpeningUUID, []byte{0x00, 0x78})
	s.m.OnCharacteristicChanged(multispread.LoadCellUUID, []byte{0x00, 0x00, 0x01, 0xF4})
	s.Empty(s.drain(), "partial frames MUST NOT be emitted")

	s.m.OnCharacteristicChanged(multispread.SpeedUUID, []byte{0x01, 0x2C})
	evs := s.drain()

	s.Require().Len(evs, 1)
	s.Equal(multispread.ServiceType, evs[0].Payload["service"])
	s.Equal(multispread.DefaultName, evs[0].Payload["name"])
	s.Equal(map[string]any{
		"doorOpening":  120,
		"loadCell":     int32(500),
		"rawLoadCells": map[string]int32{},
		"spinnerSpeed": 300,
	}, evs[0].Payload["values"])
}

func (s *MultispreadMachineSuite) TestCommandResponseEvent() {
	s.connectAndDiscover()
	s.drain()

	s.m.OnCharacteristicChanged(multispread.CommandResponseUUID, []byte{0x02, 0x05})
	s.m.OnCharacteristicChanged(multispread.CommandResponseUUID, []byte{0x01, 0x01, 0x00})
	evs := s.drain()

	s.Require().Len(evs, 1, "length mismatch MUST emit nothing")
	s.Equal(protocol.DataTypeCommandResponse, evs[0].Payload["type"])
	s.Equal(map[string]any{"context": "drive-wheel-status", "status": "timeout"}, evs[0].Payload["values"])
}

func (s *MultispreadMachineSuite) TestDisconnectResetsAccumulator() {
	s.connectAndDiscover()
	s.m.OnCharacteristicChanged(multispread.DoorOpeningUUID, []byte{0x00, 0x78})
	s.m.OnCharacteristicChanged(multispread.LoadCellUUID, []byte{0x00, 0x00, 0x01, 0xF4})
	s.sync()

	s.m.OnConnectionStateChanged(transport.Disconnected)
	s.Require().NoError(s.m.Connect(context.Background(), testAddress))
	s.m.OnConnectionStateChanged(transport.Connected)
	s.sync()
	s.drain()

	s.m.OnCharacteristicChanged(multispread.SpeedUUID, []byte{0x01, 0x2C})
	s.Empty(s.drain(), "readings from a previous connection MUST NOT complete a frame")
}

func (s *MultispreadMachineSuite) TestUpdate() {
	// GOAL: Verify the service-keyed update map turns into queued writes
	//
	// TEST SCENARIO: mismatched service rejected → unknown keys ignored → bad door value reported

	s.connectAndDiscover()
	for i := 0; i < 12; i++ {
		s.completeInFlight([]byte("v"))
	}
	writes := len(s.fake.CallsOf(testutils.MethodWrite))

	err := s.m.Update(context.Background(), map[string]any{"service": "heartRate", "driveWheel": "engage"})
	s.ErrorIs(err, protocol.ErrServiceMismatch)

	err = s.m.Update(context.Background(), map[string]any{
		"service":    "spreader",
		"driveWheel": "engage",
		"volume":     11,
	})
	s.Require().NoError(err)
	s.Require().Len(s.fake.CallsOf(testutils.MethodWrite), writes+1)
	s.Equal([]byte{0x02, 0x01}, s.lastIssued().Data)

	err = s.m.Update(context.Background(), map[string]any{"service": "spreader", "doorOpening": "wide"})
	s.ErrorIs(err, protocol.ErrInvalidArgument)
}

func TestMultispreadMachineSuite(t *testing.T) {
	suite.Run(t, new(MultispreadMachineSuite))
}

func TestNilTransport(t *testing.T) {
	sink := events.NewChannelSink(4)
	m := New(nil, heartrate.New(), sink, WithLogger(testutils.QuietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	ev, ok := sink.Receive()
	if !ok || ev.Name != events.NameStatus || ev.Payload["status"] != events.StatusUnsupported {
		t.Fatalf("expected unsupported status event, got %v", ev)
	}
	if err := m.Connect(context.Background(), testAddress); !errors.Is(err, transport.ErrTransportUnavailable) {
		t.Fatalf("connect without transport MUST fail with ErrTransportUnavailable, got %v", err)
	}
	if m.State() != transport.Disconnected {
		t.Fatalf("state MUST stay disconnected, got %s", m.State())
	}

	cancel()
	<-done
}
