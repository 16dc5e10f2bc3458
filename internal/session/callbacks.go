package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/transport"
)

// Transport callbacks block until the inbox accepts them; they are dropped
// only once the machine has stopped.

func (m *Machine) OnConnectionStateChanged(state transport.State) {
	m.deliver(func() { m.handleStateChanged(state) })
}

func (m *Machine) OnServicesDiscovered(status gatt.Status) {
	m.deliver(func() { m.handleServicesDiscovered(status) })
}

func (m *Machine) OnCharacteristicRead(char gatt.UUID, data []byte, status gatt.Status) {
	m.deliver(func() { m.handleCompletion(gatt.CharacteristicRead, char, data, status) })
}

func (m *Machine) OnCharacteristicWrite(char gatt.UUID, status gatt.Status) {
	m.deliver(func() { m.handleCompletion(gatt.CharacteristicWrite, char, nil, status) })
}

func (m *Machine) OnDescriptorWrite(char gatt.UUID, status gatt.Status) {
	m.deliver(func() { m.handleCompletion(gatt.DescriptorWrite, char, nil, status) })
}

func (m *Machine) OnCharacteristicChanged(char gatt.UUID, data []byte) {
	m.deliver(func() {
		if m.State() != transport.Connected {
			m.log().WithField("char_uuid", char.Short()).Debug("Dropping notification outside a connection")
			return
		}
		m.route(char, data)
	})
}

func (m *Machine) deliver(fn func()) {
	if err := m.post(context.Background(), fn); err != nil {
		m.logger.WithField("error", err).Debug("Dropping transport callback")
	}
}

// handleCompletion retires the in-flight operation and routes its result.
// A failed completion still advances the queue.
func (m *Machine) handleCompletion(kind gatt.Kind, char gatt.UUID, data []byte, status gatt.Status) {
	op, err := m.queue.Complete(kind)
	if err != nil {
		m.log().WithFields(logrus.Fields{
			"char_uuid": char.Short(),
			"error":     err,
		}).Warn("Dropping completion")
		return
	}
	if op.Characteristic != char {
		m.log().WithFields(logrus.Fields{
			"expected": op.Characteristic.Short(),
			"got":      char.Short(),
			"op":       kind.String(),
		}).Warn("Completion characteristic does not match in-flight operation")
	}

	if status != gatt.StatusSuccess {
		opErr := &transport.OperationError{Kind: kind, Characteristic: op.Characteristic, Status: status}
		m.log().WithField("error", opErr).Warn("GATT operation failed")
		m.emitOperationFailed(opErr)
		return
	}

	switch kind {
	case gatt.CharacteristicRead:
		m.route(op.Characteristic, data)
	case gatt.CharacteristicWrite:
		// the written value is decoded like a read of the characteristic
		m.route(op.Characteristic, op.Payload)
	case gatt.DescriptorWrite:
		m.log().WithField("char_uuid", op.Characteristic.Short()).Debug("Notifications configured")
	}
}

// route decodes a characteristic value and emits the resulting event
func (m *Machine) route(char gatt.UUID, data []byte) {
	if protocol.IsDeviceInfo(char) {
		if err := m.info.Apply(char, data); err != nil {
			m.log().WithField("error", err).Warn("Failed to apply device info")
			return
		}
		m.sink.Emit(events.DeviceInfo(m.Address(), m.info.Snapshot()))
		return
	}

	frame, err := m.proto.Decode(char, data)
	if err != nil {
		entry := m.log().WithFields(logrus.Fields{
			"char_uuid": char.Short(),
			"error":     err,
		})
		if errors.Is(err, protocol.ErrUnknownCharacteristic) {
			entry.Debug("No decoder for characteristic")
		} else {
			entry.Warn("Failed to decode characteristic value")
		}
		return
	}
	if frame == nil {
		return
	}

	m.sink.Emit(events.Data(m.name, m.proto.ServiceType(), frame.DataType, m.Address(), frame.Values))
}
