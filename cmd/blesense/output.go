package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/srg/blesense/internal/events"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

// eventPrinter writes events as JSON lines to out and a colored status line
// for lifecycle events to status. It also tracks the connection so commands
// can wait on it.
type eventPrinter struct {
	out    io.Writer
	status io.Writer

	mu         sync.Mutex
	connected  chan struct{}
	lost       chan struct{}
	wasUp      bool
	infoFields int
	infoCh     chan struct{}
}

func newEventPrinter(out, status io.Writer) *eventPrinter {
	return &eventPrinter{
		out:       out,
		status:    status,
		connected: make(chan struct{}),
		lost:      make(chan struct{}),
		infoCh:    make(chan struct{}, 1),
	}
}

// Emit implements events.Sink.
func (p *eventPrinter) Emit(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line, err := json.Marshal(map[string]any{"event": ev.Name, "data": ev.Payload})
	if err != nil {
		errColor.Fprintf(p.status, "cannot encode %s: %v\n", ev.Name, err)
		return
	}
	fmt.Fprintln(p.out, string(line))

	switch ev.Name {
	case events.NameConnection:
		p.onConnection(ev)
	case events.NameStatus:
		warnColor.Fprintf(p.status, "status: %v (%v)\n", ev.Payload["status"], ev.Payload["label"])
	case events.NameData:
		if ev.Payload["type"] == "deviceInfo" {
			p.infoFields++
			select {
			case p.infoCh <- struct{}{}:
			default:
			}
		}
	}
}

func (p *eventPrinter) onConnection(ev events.Event) {
	status, _ := ev.Payload["status"].(string)
	address := ev.Payload["address"]

	switch status {
	case events.Connected:
		okColor.Fprintf(p.status, "connected to %v\n", address)
		if !p.wasUp {
			p.wasUp = true
			close(p.connected)
		}
	case events.Disconnected:
		errColor.Fprintf(p.status, "disconnected from %v\n", address)
		select {
		case <-p.lost:
		default:
			close(p.lost)
		}
	default:
		infoColor.Fprintf(p.status, "%s %v\n", status, address)
	}
}

// Connected is closed on the first connected event.
func (p *eventPrinter) Connected() <-chan struct{} { return p.connected }

// Lost is closed on the first disconnected event.
func (p *eventPrinter) Lost() <-chan struct{} { return p.lost }

// InfoArrived signals each device info update.
func (p *eventPrinter) InfoArrived() <-chan struct{} { return p.infoCh }

// InfoFields returns how many device info updates have arrived.
func (p *eventPrinter) InfoFields() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.infoFields
}
