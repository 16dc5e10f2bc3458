package events

import (
	"sync"
	"sync/atomic"
)

// Sink receives events in emission order.
type Sink interface {
	Emit(ev Event)
}

// FuncSink adapts a function to Sink.
type FuncSink func(ev Event)

func (f FuncSink) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = FuncSink(func(Event) {})

// ChannelSink is a bounded FIFO of events with overwrite-oldest semantics:
// Emit never blocks, and when the buffer is full the oldest event is dropped.
// Connection lifecycle events are kept in preference to everything else, so
// consumers waiting on connected or disconnected never miss them.
type ChannelSink struct {
	ch      chan Event
	mu      sync.Mutex // serializes producers so drop-then-send stays atomic
	closed  bool
	metrics Metrics
}

// Metrics counts sink traffic. Fields are updated atomically.
type Metrics struct {
	Written     int64
	Overwritten int64
	Received    int64
}

// NewChannelSink creates a sink holding up to capacity undelivered events.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		panic("events: capacity must be > 0")
	}
	return &ChannelSink{ch: make(chan Event, capacity)}
}

// Emit queues ev, discarding the oldest queued event if the buffer is full.
// A full buffer of connection events drops ev itself unless it is one too.
// Events emitted after Close are dropped.
func (s *ChannelSink) Emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
	default:
		if !s.evict(ev) {
			return
		}
		s.ch <- ev
	}
	atomic.AddInt64(&s.metrics.Written, 1)
}

// evict makes room for ev by dropping the oldest queued event that is not a
// connection event. When only connection events are queued, a connection ev
// displaces the oldest of them and any other ev is dropped instead; evict
// then reports false. Must be called with s.mu held.
func (s *ChannelSink) evict(ev Event) bool {
	var queued []Event
	for drained := false; !drained; {
		select {
		case q := <-s.ch:
			queued = append(queued, q)
		default:
			drained = true
		}
	}
	if len(queued) == 0 {
		// the reader emptied the buffer meanwhile
		return true
	}
	atomic.AddInt64(&s.metrics.Overwritten, 1)

	victim := -1
	for i, q := range queued {
		if q.Name != NameConnection {
			victim = i
			break
		}
	}
	if victim < 0 && ev.Name == NameConnection {
		victim = 0
	}

	for i, q := range queued {
		if i != victim {
			s.ch <- q
		}
	}
	return victim >= 0
}

// C returns the receive side. Reads through C are not counted as Received.
func (s *ChannelSink) C() <-chan Event {
	return s.ch
}

// Receive blocks until an event is available; ok is false once the sink is
// closed and drained.
func (s *ChannelSink) Receive() (ev Event, ok bool) {
	ev, ok = <-s.ch
	if ok {
		atomic.AddInt64(&s.metrics.Received, 1)
	}
	return
}

// TryReceive returns immediately when nothing is queued.
func (s *ChannelSink) TryReceive() (ev Event, ok bool) {
	select {
	case ev, ok = <-s.ch:
		if ok {
			atomic.AddInt64(&s.metrics.Received, 1)
		}
		return
	default:
		return Event{}, false
	}
}

func (s *ChannelSink) Len() int { return len(s.ch) }
func (s *ChannelSink) Cap() int { return cap(s.ch) }

// Close ends the stream; readers drain what is left and then see ok == false.
func (s *ChannelSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// GetMetrics returns a snapshot of the counters.
func (s *ChannelSink) GetMetrics() Metrics {
	return Metrics{
		Written:     atomic.LoadInt64(&s.metrics.Written),
		Overwritten: atomic.LoadInt64(&s.metrics.Overwritten),
		Received:    atomic.LoadInt64(&s.metrics.Received),
	}
}
