package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/transport"
)

func (m *Machine) handleConnect(address string) error {
	address = strings.TrimSpace(address)

	if m.hasHandle && strings.EqualFold(address, m.Address()) {
		if m.State() == transport.Connected {
			m.log().Debug("Already connected, ignoring connect")
			return nil
		}
		m.log().Info("Re-issuing connect on existing session")
		return m.startConnect()
	}

	if m.hasHandle {
		m.log().WithField("next_address", address).Info("Switching peripheral, closing current session")
		m.teardown()
	}

	m.session = ulid.Make()
	m.hasHandle = true
	m.address.Store(&address)
	m.info.Reset()
	m.proto.Reset()

	m.log().Info("Opening session")
	return m.startConnect()
}

func (m *Machine) startConnect() error {
	m.disconnectedSent = false
	m.ready = false
	m.setState(transport.Connecting)
	m.emitConnection(events.Connecting)

	if err := m.transport.Connect(m.ctx, m.Address()); err != nil {
		m.log().WithField("error", err).Error("Transport refused connect")
		m.hasHandle = false
		m.markDisconnected()
		return err
	}
	return nil
}

// handleDisconnect drops the connection eagerly. The transport confirmation
// that follows is swallowed.
func (m *Machine) handleDisconnect() {
	if m.State() != transport.Connected {
		m.log().WithField("state", m.State().String()).Debug("Disconnect ignored, not connected")
		return
	}
	m.teardown()
}

// teardown disconnects the transport and releases the handle
func (m *Machine) teardown() {
	m.emitConnection(events.Disconnecting)
	m.disconnectTransport()
	m.markDisconnected()
	m.hasHandle = false
}

// disconnectTransport asks the transport to drop the link and remembers
// which session expects the confirmation. A refused disconnect is never
// confirmed.
func (m *Machine) disconnectTransport() {
	err := m.transport.Disconnect()
	switch {
	case err == nil:
		m.awaitingConfirm = true
		m.confirmFor = m.session
	case errors.Is(err, transport.ErrNotConnected):
		m.log().Debug("Transport had no link to disconnect")
		m.awaitingConfirm = false
	default:
		m.log().WithField("error", err).Warn("Transport disconnect failed")
		m.awaitingConfirm = false
	}
}

// markDisconnected discards queued work and emits the disconnected event
// once per connection attempt
func (m *Machine) markDisconnected() {
	if n := m.queue.Flush(); n > 0 {
		m.log().WithField("dropped", n).Debug("Discarded queued operations")
	}
	m.proto.Reset()
	m.ready = false
	if n := len(m.held); n > 0 {
		m.log().WithField("dropped", n).Debug("Discarded held commands")
		m.held = nil
	}
	m.setState(transport.Disconnected)

	if !m.disconnectedSent {
		m.disconnectedSent = true
		m.emitConnection(events.Disconnected)
	}
}

func (m *Machine) shutdown() {
	if !m.hasHandle {
		return
	}
	if m.State() == transport.Disconnected {
		// link already gone, nothing left to close
		m.hasHandle = false
		return
	}
	m.log().Info("Session stopping, closing connection")
	m.teardown()
}

func (m *Machine) handleStateChanged(state transport.State) {
	switch state {
	case transport.Connected:
		if !m.hasHandle {
			m.log().Warn("Transport connected without an open session, disconnecting")
			m.disconnectTransport()
			return
		}
		if m.awaitingConfirm {
			// confirmations precede the next Connected, so none is still owed
			m.log().WithField("disconnected_session", m.confirmFor.String()).Debug("Disconnect was never confirmed")
			m.awaitingConfirm = false
		}
		if m.State() == transport.Connected {
			return
		}
		m.setState(transport.Connected)
		m.log().Info("Peripheral connected, discovering services")
		m.emitConnection(events.Connected)

		if err := m.transport.DiscoverServices(); err != nil {
			m.log().WithField("error", err).Error("Service discovery refused")
			m.emitOperationFailed(err)
		}

	case transport.Disconnected:
		if m.awaitingConfirm {
			m.awaitingConfirm = false
			m.log().WithField("disconnected_session", m.confirmFor.String()).Debug("Transport confirmed disconnect")
			return
		}
		if m.State() == transport.Disconnected && m.disconnectedSent {
			return
		}
		m.log().Info("Peripheral disconnected")
		m.markDisconnected()

	case transport.Connecting:
		m.setState(transport.Connecting)
	}
}

func (m *Machine) handleServicesDiscovered(status gatt.Status) {
	if m.State() != transport.Connected {
		m.log().Debug("Ignoring service discovery outside a connection")
		return
	}
	if status != gatt.StatusSuccess {
		err := fmt.Errorf("service discovery failed with status 0x%X: %w", int(status), transport.ErrOperationFailed)
		m.log().WithField("error", err).Error("Service discovery failed")
		m.emitOperationFailed(err)
		if n := len(m.held); n > 0 {
			m.log().WithField("dropped", n).Warn("Discarded commands held for discovery")
			m.held = nil
		}
		return
	}

	setup := m.proto.Setup()
	m.log().WithFields(logrus.Fields{
		"setup_ops":   len(setup),
		"device_type": m.proto.Type(),
	}).Debug("Services discovered, enabling notifications and reading device info")
	m.enqueueAll(setup)
	m.enqueueAll(protocol.DeviceInfoReads())

	m.ready = true
	held := m.held
	m.held = nil
	m.enqueueAll(held)
}
