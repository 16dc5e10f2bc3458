//go:build test

package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/transport"
)

// PeripheralSimulator is a transport that behaves like a cooperative
// peripheral: every operation completes asynchronously with success, reads
// return the configured values (or fail when none is set) and notifications
// configured with WithNotification are sent once the characteristic is
// subscribed. Like go-ble, it refuses operations on characteristics until
// service discovery has completed.
type PeripheralSimulator struct {
	mu            sync.Mutex
	cb            transport.Callbacks
	values        map[gatt.UUID][]byte
	notifications map[gatt.UUID][][]byte
	subscribed    map[gatt.UUID]bool
	writes        []Call
	connected     bool
	discovered    bool
	discoveryWait time.Duration
	dialErr       error
}

var _ transport.Transport = (*PeripheralSimulator)(nil)

func NewPeripheralSimulator() *PeripheralSimulator {
	return &PeripheralSimulator{
		values:        make(map[gatt.UUID][]byte),
		notifications: make(map[gatt.UUID][][]byte),
		subscribed:    make(map[gatt.UUID]bool),
	}
}

// WithValue sets the value returned by reads of char.
func (p *PeripheralSimulator) WithValue(char gatt.UUID, data []byte) *PeripheralSimulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[char] = append([]byte(nil), data...)
	return p
}

// WithNotification queues data to be notified once char is subscribed.
func (p *PeripheralSimulator) WithNotification(char gatt.UUID, data ...[]byte) *PeripheralSimulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications[char] = append(p.notifications[char], data...)
	return p
}

// WithDiscoveryDelay makes service discovery take d.
func (p *PeripheralSimulator) WithDiscoveryDelay(d time.Duration) *PeripheralSimulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryWait = d
	return p
}

// WithDialError makes the connection attempt fail asynchronously.
func (p *PeripheralSimulator) WithDialError(err error) *PeripheralSimulator {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialErr = err
	return p
}

// Writes returns the characteristic writes received so far.
func (p *PeripheralSimulator) Writes() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.writes...)
}

// Subscribed reports whether notifications are enabled on char.
func (p *PeripheralSimulator) Subscribed(char gatt.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribed[char]
}

// Drop simulates a link loss.
func (p *PeripheralSimulator) Drop() {
	p.mu.Lock()
	p.connected = false
	p.discovered = false
	p.mu.Unlock()
	p.async(func(cb transport.Callbacks) { cb.OnConnectionStateChanged(transport.Disconnected) })
}

func (p *PeripheralSimulator) SetCallbacks(cb transport.Callbacks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
}

func (p *PeripheralSimulator) Connect(_ context.Context, _ string) error {
	p.mu.Lock()
	dialErr := p.dialErr
	p.connected = dialErr == nil
	p.discovered = false
	p.mu.Unlock()

	state := transport.Connected
	if dialErr != nil {
		state = transport.Disconnected
	}
	p.async(func(cb transport.Callbacks) { cb.OnConnectionStateChanged(state) })
	return nil
}

func (p *PeripheralSimulator) Disconnect() error {
	p.mu.Lock()
	p.connected = false
	p.discovered = false
	p.subscribed = make(map[gatt.UUID]bool)
	p.mu.Unlock()
	p.async(func(cb transport.Callbacks) { cb.OnConnectionStateChanged(transport.Disconnected) })
	return nil
}

func (p *PeripheralSimulator) DiscoverServices() error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	wait := p.discoveryWait
	p.mu.Unlock()

	p.async(func(cb transport.Callbacks) {
		time.Sleep(wait)
		p.mu.Lock()
		p.discovered = p.connected
		p.mu.Unlock()
		cb.OnServicesDiscovered(gatt.StatusSuccess)
	})
	return nil
}

func (p *PeripheralSimulator) IssueRead(char gatt.UUID) error {
	if err := p.requireDiscovered(char); err != nil {
		return err
	}
	p.mu.Lock()
	data, ok := p.values[char]
	p.mu.Unlock()

	status := gatt.StatusSuccess
	if !ok {
		status = transport.StatusFailure
	}
	p.async(func(cb transport.Callbacks) { cb.OnCharacteristicRead(char, data, status) })
	return nil
}

func (p *PeripheralSimulator) IssueWrite(char gatt.UUID, data []byte) error {
	if err := p.requireDiscovered(char); err != nil {
		return err
	}
	p.mu.Lock()
	p.writes = append(p.writes, Call{Method: MethodWrite, Char: char, Data: append([]byte(nil), data...)})
	p.mu.Unlock()

	p.async(func(cb transport.Callbacks) { cb.OnCharacteristicWrite(char, gatt.StatusSuccess) })
	return nil
}

func (p *PeripheralSimulator) IssueDescriptorWrite(char gatt.UUID, value []byte) error {
	if err := p.requireDiscovered(char); err != nil {
		return err
	}
	enable := len(value) > 0 && value[0]&0x03 != 0

	p.mu.Lock()
	p.subscribed[char] = enable
	var pending [][]byte
	if enable {
		pending = p.notifications[char]
		delete(p.notifications, char)
	}
	p.mu.Unlock()

	p.async(func(cb transport.Callbacks) {
		cb.OnDescriptorWrite(char, gatt.StatusSuccess)
		for _, data := range pending {
			cb.OnCharacteristicChanged(char, data)
		}
	})
	return nil
}

func (p *PeripheralSimulator) requireConnected() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return transport.ErrNotConnected
	}
	return nil
}

func (p *PeripheralSimulator) requireDiscovered(char gatt.UUID) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.discovered {
		return &transport.NotFoundError{Characteristic: char}
	}
	return nil
}

// async runs fn on its own goroutine, as a real BLE stack would
func (p *PeripheralSimulator) async(fn func(cb transport.Callbacks)) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	if cb == nil {
		return
	}
	go fn(cb)
}

// ReplayScanner reports a fixed set of advertisements and then scans until
// ctx is done, or fails with Err right after replaying.
type ReplayScanner struct {
	Advertisements []transport.Advertisement
	Err            error
}

var _ transport.Scanner = (*ReplayScanner)(nil)

func (r *ReplayScanner) Scan(ctx context.Context, handler func(transport.Advertisement)) error {
	for _, adv := range r.Advertisements {
		handler(adv)
	}
	if r.Err != nil {
		return r.Err
	}
	<-ctx.Done()
	return ctx.Err()
}
