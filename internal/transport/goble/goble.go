// Package goble implements transport.Transport on top of github.com/go-ble/ble.
//
// go-ble exposes a blocking client API; this adapter runs every operation in
// its own named goroutine and reports the result through transport.Callbacks,
// which gives the session the asynchronous issue/complete model it expects.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/transport"
)

// DefaultConnectTimeout bounds the dial when no timeout is configured
const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates the host BLE device (can be overridden in tests)
var DeviceFactory = newDefaultDevice

// Dial connects to a peripheral and returns its GATT client (can be overridden in tests)
var Dial = func(ctx context.Context, address string) (Client, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	ble.SetDefaultDevice(dev)

	cln, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, NormalizeError(err)
	}
	return cln, nil
}

// Client is the subset of ble.Client the adapter uses
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// disconnectNotifier is implemented by clients that report link loss
type disconnectNotifier interface {
	Disconnected() <-chan struct{}
}

// Transport drives one peripheral through go-ble.
type Transport struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu      sync.Mutex
	cb      transport.Callbacks
	client  Client
	address string
	chars   map[gatt.UUID]*ble.Characteristic
	ctx     context.Context
	cancel  context.CancelFunc
	dialing bool

	// closed once the last Disconnect has reported its confirmation
	disconnecting chan struct{}
}

var _ transport.Transport = (*Transport)(nil)

// New creates an idle transport. A zero connectTimeout uses DefaultConnectTimeout.
func New(connectTimeout time.Duration, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Transport{
		logger:         logger,
		connectTimeout: connectTimeout,
		chars:          make(map[gatt.UUID]*ble.Characteristic),
	}
}

func (t *Transport) SetCallbacks(cb transport.Callbacks) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cb = cb
}

// Connect dials the peripheral in the background and reports Connected or
// Disconnected through the callbacks.
func (t *Transport) Connect(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}

	t.mu.Lock()
	if t.dialing {
		t.mu.Unlock()
		return fmt.Errorf("%w: dial to %s already in progress", transport.ErrAlreadyConnected, address)
	}
	if t.client != nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", transport.ErrAlreadyConnected, t.address)
	}
	t.dialing = true
	t.address = address
	pending := t.disconnecting
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": t.connectTimeout,
	}).Info("Connecting to BLE device...")

	groutine.Go(ctx, "goble-dial", func(ctx context.Context) {
		// the previous link's confirmation goes out before this dial reports
		if pending != nil {
			select {
			case <-pending:
			case <-ctx.Done():
			}
		}

		dialCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
		defer cancel()

		cln, err := Dial(dialCtx, address)

		t.mu.Lock()
		t.dialing = false
		if err != nil {
			t.mu.Unlock()
			t.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Error("Failed to dial BLE device")
			t.callbacks().OnConnectionStateChanged(transport.Disconnected)
			return
		}
		t.client = cln
		t.ctx, t.cancel = context.WithCancel(context.Background())
		monitorCtx := t.ctx
		t.mu.Unlock()

		t.monitor(monitorCtx, cln)
		t.logger.WithField("address", address).Info("BLE device connected")
		t.callbacks().OnConnectionStateChanged(transport.Connected)
	})
	return nil
}

// monitor reports link loss for clients that expose it
func (t *Transport) monitor(ctx context.Context, cln Client) {
	notifier, ok := cln.(disconnectNotifier)
	if !ok {
		t.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(ctx, "goble-connection-monitor", func(ctx context.Context) {
		select {
		case <-notifier.Disconnected():
			t.logger.Warn("BLE stack reported disconnection")
			t.release(cln)
			t.callbacks().OnConnectionStateChanged(transport.Disconnected)
		case <-ctx.Done():
		}
	})
}

// Disconnect cancels the connection. The Disconnected callback follows once
// the link is down.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	cln := t.client
	t.mu.Unlock()

	if cln == nil {
		t.logger.Debug("Disconnect called but already disconnected")
		return transport.ErrNotConnected
	}

	t.logger.WithField("address", t.address).Info("Disconnecting BLE device...")
	t.release(cln)

	done := make(chan struct{})
	t.mu.Lock()
	t.disconnecting = done
	t.mu.Unlock()

	groutine.Go(context.Background(), "goble-disconnect", func(ctx context.Context) {
		defer close(done)
		if err := NormalizeError(cln.CancelConnection()); err != nil {
			t.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		}
		t.callbacks().OnConnectionStateChanged(transport.Disconnected)
	})
	return nil
}

// release forgets cln if it is still the current client
func (t *Transport) release(cln Client) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != cln {
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.client = nil
	t.cancel = nil
	t.chars = make(map[gatt.UUID]*ble.Characteristic)
}

// DiscoverServices walks the GATT profile and indexes its characteristics.
func (t *Transport) DiscoverServices() error {
	cln, ctx, err := t.connected()
	if err != nil {
		return err
	}

	groutine.Go(ctx, "goble-discover", func(ctx context.Context) {
		profile, err := cln.DiscoverProfile(true)
		if err != nil {
			t.logger.WithField("error", NormalizeError(err)).Error("Failed to discover profile")
			t.callbacks().OnServicesDiscovered(transport.StatusFailure)
			return
		}

		chars := make(map[gatt.UUID]*ble.Characteristic)
		for _, svc := range profile.Services {
			for _, c := range svc.Characteristics {
				id, err := FromBLE(c.UUID)
				if err != nil {
					t.logger.WithField("char_uuid", c.UUID.String()).Warn("Skipping characteristic with unparsable UUID")
					continue
				}
				chars[id] = c
			}
		}

		t.mu.Lock()
		if t.client == cln {
			t.chars = chars
		}
		t.mu.Unlock()

		t.logger.WithFields(logrus.Fields{
			"services":        len(profile.Services),
			"characteristics": len(chars),
		}).Debug("Profile discovered successfully")
		t.callbacks().OnServicesDiscovered(gatt.StatusSuccess)
	})
	return nil
}

func (t *Transport) IssueRead(char gatt.UUID) error {
	cln, c, ctx, err := t.lookup(char)
	if err != nil {
		return err
	}

	groutine.Go(ctx, "goble-read", func(ctx context.Context) {
		data, err := cln.ReadCharacteristic(c)
		status := t.status(gatt.CharacteristicRead, char, err)
		t.callbacks().OnCharacteristicRead(char, data, status)
	})
	return nil
}

func (t *Transport) IssueWrite(char gatt.UUID, data []byte) error {
	cln, c, ctx, err := t.lookup(char)
	if err != nil {
		return err
	}

	noRsp := c.Property&ble.CharWrite == 0 && c.Property&ble.CharWriteNR != 0
	payload := append([]byte(nil), data...)

	groutine.Go(ctx, "goble-write", func(ctx context.Context) {
		err := cln.WriteCharacteristic(c, payload, noRsp)
		status := t.status(gatt.CharacteristicWrite, char, err)
		t.callbacks().OnCharacteristicWrite(char, status)
	})
	return nil
}

// IssueDescriptorWrite writes the client characteristic configuration of
// char. go-ble owns the CCCD, so the value is mapped onto Subscribe or
// Unsubscribe: bit 0 enables notifications, bit 1 indications, zero disables.
func (t *Transport) IssueDescriptorWrite(char gatt.UUID, value []byte) error {
	cln, c, ctx, err := t.lookup(char)
	if err != nil {
		return err
	}

	var cfg byte
	if len(value) > 0 {
		cfg = value[0]
	}
	indicate := cfg&0x02 != 0 || (cfg&0x01 != 0 && c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0)

	t.logger.WithFields(logrus.Fields{
		"characteristic": char.Short(),
		"descriptor":     gatt.ClientCharacteristicConfig.Short(),
		"value":          cfg,
		"indicate":       indicate,
	}).Debug("Writing client characteristic configuration")

	groutine.Go(ctx, "goble-descriptor-write", func(ctx context.Context) {
		var err error
		if cfg&0x03 == 0 {
			err = cln.Unsubscribe(c, indicate)
		} else {
			err = cln.Subscribe(c, indicate, func(data []byte) {
				t.callbacks().OnCharacteristicChanged(char, append([]byte(nil), data...))
			})
		}
		status := t.status(gatt.DescriptorWrite, char, err)
		t.callbacks().OnDescriptorWrite(char, status)
	})
	return nil
}

func (t *Transport) status(kind gatt.Kind, char gatt.UUID, err error) gatt.Status {
	if err == nil {
		return gatt.StatusSuccess
	}

	err = NormalizeError(err)
	t.logger.WithFields(logrus.Fields{
		"op":        kind.String(),
		"char_uuid": char.Short(),
		"error":     err,
	}).Warn("GATT operation failed")

	if transport.IsConnectionState(err, transport.NotConnected) {
		return transport.StatusNotConnected
	}
	return transport.StatusFailure
}

func (t *Transport) connected() (Client, context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, nil, transport.ErrNotConnected
	}
	return t.client, t.ctx, nil
}

func (t *Transport) lookup(char gatt.UUID) (Client, *ble.Characteristic, context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, nil, nil, transport.ErrNotConnected
	}
	c, ok := t.chars[char]
	if !ok {
		return nil, nil, nil, &transport.NotFoundError{Characteristic: char}
	}
	return t.client, c, t.ctx, nil
}

func (t *Transport) callbacks() transport.Callbacks {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb == nil {
		return nopCallbacks{}
	}
	return t.cb
}

// FromBLE converts a go-ble UUID, short or long, into a gatt.UUID.
func FromBLE(u ble.UUID) (gatt.UUID, error) {
	return gatt.ParseUUID(u.String())
}

type nopCallbacks struct{}

func (nopCallbacks) OnConnectionStateChanged(transport.State) {}
func (nopCallbacks) OnServicesDiscovered(gatt.Status) {}
func (nopCallbacks) OnCharacteristicRead(gatt.UUID, []byte, gatt.Status) {}
func (nopCallbacks) OnCharacteristicWrite(gatt.UUID, gatt.Status) {}
func (nopCallbacks) OnCharacteristicChanged(gatt.UUID, []byte) {}
func (nopCallbacks) OnDescriptorWrite(gatt.UUID, gatt.Status) {}
