package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/srg/blesense/internal/gatt"
	"github.com/srg/blesense/internal/transport"
)

// Transport method names recorded by FakeTransport and CallbackRecorder
const (
	MethodConnect              = "Connect"
	MethodDisconnect           = "Disconnect"
	MethodDiscoverServices     = "DiscoverServices"
	MethodRead                 = "IssueRead"
	MethodWrite                = "IssueWrite"
	MethodDescriptorWrite      = "IssueDescriptorWrite"
	MethodStateChanged         = "OnConnectionStateChanged"
	MethodServicesDiscovered   = "OnServicesDiscovered"
	MethodCharacteristicRead   = "OnCharacteristicRead"
	MethodCharacteristicWrite  = "OnCharacteristicWrite"
	MethodCharacteristicChange = "OnCharacteristicChanged"
	MethodDescriptorWritten    = "OnDescriptorWrite"
)

// ErrRefused is returned by FakeTransport for refused characteristics
var ErrRefused = errors.New("refused by fake transport")

// Call is one recorded transport method call or callback.
type Call struct {
	Method  string
	Address string
	Char    gatt.UUID
	Data    []byte
	Status  gatt.Status
	State   transport.State
}

// FakeTransport records every call and never completes anything on its own;
// tests drive completions, including disconnect confirmations, through
// Callbacks().
type FakeTransport struct {
	mu            sync.Mutex
	cb            transport.Callbacks
	calls         []Call
	refused       map[gatt.UUID]bool
	connectErr    error
	disconnectErr error
}

var _ transport.Transport = (*FakeTransport)(nil)

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{refused: make(map[gatt.UUID]bool)}
}

// Refuse makes every Issue call for char fail synchronously.
func (f *FakeTransport) Refuse(char gatt.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refused[char] = true
}

// FailConnect makes Connect return err.
func (f *FakeTransport) FailConnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

// FailDisconnect makes Disconnect return err.
func (f *FakeTransport) FailDisconnect(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnectErr = err
}

func (f *FakeTransport) Callbacks() transport.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

// Calls returns a snapshot of the recorded calls.
func (f *FakeTransport) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one method.
func (f *FakeTransport) CallsOf(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Issued returns the Issue* calls in order.
func (f *FakeTransport) Issued() []Call {
	var out []Call
	for _, c := range f.Calls() {
		switch c.Method {
		case MethodRead, MethodWrite, MethodDescriptorWrite:
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeTransport) SetCallbacks(cb transport.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *FakeTransport) Connect(_ context.Context, address string) error {
	f.record(Call{Method: MethodConnect, Address: address})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *FakeTransport) Disconnect() error {
	f.record(Call{Method: MethodDisconnect})
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnectErr
}

func (f *FakeTransport) DiscoverServices() error {
	f.record(Call{Method: MethodDiscoverServices})
	return nil
}

func (f *FakeTransport) IssueRead(char gatt.UUID) error {
	return f.issue(Call{Method: MethodRead, Char: char})
}

func (f *FakeTransport) IssueWrite(char gatt.UUID, data []byte) error {
	return f.issue(Call{Method: MethodWrite, Char: char, Data: append([]byte(nil), data...)})
}

func (f *FakeTransport) IssueDescriptorWrite(char gatt.UUID, value []byte) error {
	return f.issue(Call{Method: MethodDescriptorWrite, Char: char, Data: append([]byte(nil), value...)})
}

func (f *FakeTransport) issue(c Call) error {
	f.record(c)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refused[c.Char] {
		return ErrRefused
	}
	return nil
}

func (f *FakeTransport) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// CallbackRecorder implements transport.Callbacks by recording every call
// into a buffered channel.
type CallbackRecorder struct {
	C chan Call
}

var _ transport.Callbacks = (*CallbackRecorder)(nil)

func NewCallbackRecorder() *CallbackRecorder {
	return &CallbackRecorder{C: make(chan Call, 64)}
}

func (r *CallbackRecorder) OnConnectionStateChanged(state transport.State) {
	r.C <- Call{Method: MethodStateChanged, State: state}
}

func (r *CallbackRecorder) OnServicesDiscovered(status gatt.Status) {
	r.C <- Call{Method: MethodServicesDiscovered, Status: status}
}

func (r *CallbackRecorder) OnCharacteristicRead(char gatt.UUID, data []byte, status gatt.Status) {
	r.C <- Call{Method: MethodCharacteristicRead, Char: char, Data: data, Status: status}
}

func (r *CallbackRecorder) OnCharacteristicWrite(char gatt.UUID, status gatt.Status) {
	r.C <- Call{Method: MethodCharacteristicWrite, Char: char, Status: status}
}

func (r *CallbackRecorder) OnCharacteristicChanged(char gatt.UUID, data []byte) {
	r.C <- Call{Method: MethodCharacteristicChange, Char: char, Data: data}
}

func (r *CallbackRecorder) OnDescriptorWrite(char gatt.UUID, status gatt.Status) {
	r.C <- Call{Method: MethodDescriptorWritten, Char: char, Status: status}
}
