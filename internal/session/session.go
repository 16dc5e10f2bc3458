// Package session drives one BLE peripheral: it owns the connection
// lifecycle, the GATT request queue and the device protocol, and turns
// transport completions into outward events.
//
// Every input, whether an application call or a transport callback, is a
// message on a bounded inbox drained by Run. The queue, the protocol
// accumulators and the lifecycle state are only touched from that goroutine,
// so completions are processed strictly in arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/transport"
)

// DefaultInboxSize is used when no inbox size is configured
const DefaultInboxSize = 64

// ErrStopped is returned by calls made after Run has returned
var ErrStopped = errors.New("session stopped")

// Option configures a Machine
type Option func(*Machine)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *logrus.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithInboxSize sets the inbox capacity. Non-positive values are ignored.
func WithInboxSize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.inboxSize = n
		}
	}
}

// WithName sets the display name used in data events. The protocol's
// default name is used when empty.
func WithName(name string) Option {
	return func(m *Machine) {
		if name != "" {
			m.name = name
		}
	}
}

// Machine is the connection state machine for a single peripheral.
type Machine struct {
	transport transport.Transport
	proto     protocol.DeviceProtocol
	sink      events.Sink
	logger    *logrus.Logger
	name      string
	inboxSize int

	inbox chan func()
	done  chan struct{}

	state   atomic.Int32
	address atomic.Pointer[string]

	// owned by the Run goroutine
	ctx              context.Context
	queue            *gatt.Queue
	info             *protocol.DeviceInfo
	session          ulid.ULID
	hasHandle        bool
	disconnectedSent bool

	// the transport owes a confirmation for the eager disconnect of confirmFor
	awaitingConfirm bool
	confirmFor      ulid.ULID

	// set once services are discovered; application operations wait in held until then
	ready bool
	held  []gatt.Operation
}

var _ transport.Callbacks = (*Machine)(nil)

// New creates a machine for proto over t. A nil transport yields a machine
// whose operations are no-ops; Run reports it with an "unsupported" status
// event. A nil sink discards events.
func New(t transport.Transport, proto protocol.DeviceProtocol, sink events.Sink, opts ...Option) *Machine {
	if proto == nil {
		panic("session: nil device protocol")
	}
	if sink == nil {
		sink = events.Discard
	}

	m := &Machine{
		transport: t,
		proto:     proto,
		sink:      sink,
		logger:    logrus.New(),
		name:      proto.DefaultName(),
		inboxSize: DefaultInboxSize,
		done:      make(chan struct{}),
		info:      protocol.NewDeviceInfo(),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.inbox = make(chan func(), m.inboxSize)
	m.queue = gatt.NewQueue(m.dispatch, m.logger)
	empty := ""
	m.address.Store(&empty)

	if t != nil {
		t.SetCallbacks(m)
	}
	return m
}

// State returns the current connection state. Safe for concurrent use.
func (m *Machine) State() transport.State {
	return transport.State(m.state.Load())
}

// Address returns the address of the current or last peripheral.
func (m *Machine) Address() string {
	return *m.address.Load()
}

// Name returns the display name used in data events.
func (m *Machine) Name() string {
	return m.name
}

// Done is closed once Run has returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Run processes the inbox until ctx is done. Any open connection is torn
// down before Run returns.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)

	if m.transport == nil {
		m.logger.Warn("No BLE transport available, session is inert")
		m.sink.Emit(events.Status(events.StatusUnsupported))
		<-ctx.Done()
		return nil
	}

	m.ctx = ctx
	m.logger.WithField("device_type", m.proto.Type()).Debug("Session started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case msg := <-m.inbox:
			msg()
		}
	}
}

// Connect starts a connection to address. While a connection to the same
// address exists and is not yet up, the transport connect is re-issued on
// the existing session; once Connected it is a no-op.
func (m *Machine) Connect(ctx context.Context, address string) error {
	return m.call(ctx, func() error { return m.handleConnect(address) })
}

// Disconnect tears the connection down without waiting for the transport to
// confirm. It has no effect unless the machine is Connected.
func (m *Machine) Disconnect(ctx context.Context) error {
	return m.call(ctx, func() error {
		m.handleDisconnect()
		return nil
	})
}

// Send encodes and queues commands. Commands the protocol does not know are
// ignored; malformed arguments are reported and nothing is written for them.
// Commands sent before service discovery completes are held and queued
// behind the setup operations.
func (m *Machine) Send(ctx context.Context, cmds ...protocol.Command) error {
	return m.call(ctx, func() error { return m.handleSend(cmds) })
}

// Update applies a key/value command map addressed to a service type. The
// map must carry the protocol's service type under "service".
func (m *Machine) Update(ctx context.Context, values map[string]any) error {
	if m.transport == nil {
		return transport.ErrTransportUnavailable
	}
	cmds, err := protocol.ParseUpdate(m.proto.ServiceType(), values)
	if err != nil {
		return err
	}
	return m.Send(ctx, cmds...)
}

// RequestDeviceInfo queues the device information reads again. The record
// is rebuilt from scratch and re-emitted as fields arrive.
func (m *Machine) RequestDeviceInfo(ctx context.Context) error {
	return m.call(ctx, func() error {
		if m.State() != transport.Connected {
			return transport.ErrNotConnected
		}
		m.info.Reset()
		if !m.ready {
			// discovery queues the reads
			return nil
		}
		m.enqueueAll(protocol.DeviceInfoReads())
		return nil
	})
}

// post hands fn to the Run goroutine
func (m *Machine) post(ctx context.Context, fn func()) error {
	select {
	case m.inbox <- fn:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs fn on the Run goroutine and waits for its result
func (m *Machine) call(ctx context.Context, fn func() error) error {
	if m.transport == nil {
		m.logger.Debug("Ignoring call, no BLE transport available")
		return transport.ErrTransportUnavailable
	}

	reply := make(chan error, 1)
	if err := m.post(ctx, func() { reply <- fn() }); err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) setState(s transport.State) {
	prev := transport.State(m.state.Swap(int32(s)))
	if prev != s {
		m.log().WithFields(logrus.Fields{
			"from": prev.String(),
			"to":   s.String(),
		}).Debug("Connection state changed")
	}
}

func (m *Machine) log() *logrus.Entry {
	fields := logrus.Fields{"address": m.Address()}
	if m.hasHandle {
		fields["session"] = m.session.String()
	}
	return m.logger.WithFields(fields)
}

func (m *Machine) emitConnection(status string) {
	m.sink.Emit(events.Connection(m.Address(), status))
}

func (m *Machine) emitOperationFailed(err error) {
	m.sink.Emit(events.StatusWithLabel(events.StatusOperationFailed, err.Error()))
}

func (m *Machine) handleSend(cmds []protocol.Command) error {
	if m.State() != transport.Connected {
		return transport.ErrNotConnected
	}

	var errs []error
	for _, cmd := range cmds {
		op, err := m.proto.Encode(cmd)
		switch {
		case errors.Is(err, protocol.ErrUnknownCommand):
			m.log().WithField("command", cmd.String()).Debug("Ignoring unknown command")
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", cmd, err))
		case !m.ready:
			m.held = append(m.held, op)
		default:
			m.queue.Enqueue(op)
		}
	}
	if len(m.held) > 0 && !m.ready {
		m.log().WithField("held", len(m.held)).Debug("Holding commands until services are discovered")
	}
	return errors.Join(errs...)
}

func (m *Machine) enqueueAll(ops []gatt.Operation) {
	for _, op := range ops {
		m.queue.Enqueue(op)
	}
}

// dispatch issues op on the transport; called by the queue
func (m *Machine) dispatch(op gatt.Operation) error {
	switch op.Kind {
	case gatt.DescriptorWrite:
		return m.transport.IssueDescriptorWrite(op.Characteristic, op.Payload)
	case gatt.CharacteristicRead:
		return m.transport.IssueRead(op.Characteristic)
	case gatt.CharacteristicWrite:
		return m.transport.IssueWrite(op.Characteristic, op.Payload)
	default:
		return fmt.Errorf("unsupported operation kind %s", op.Kind)
	}
}
