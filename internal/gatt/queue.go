package gatt

import (
	"errors"
	"fmt"

	list "github.com/bahlo/generic-list-go"
	"github.com/sirupsen/logrus"
)

// ErrUnexpectedCompletion is returned by Queue.Complete when nothing of the
// reported kind is in flight.
var ErrUnexpectedCompletion = errors.New("unexpected completion")

// DispatchFunc issues an operation on the transport. A non-nil error means the
// transport refused it synchronously and no completion will follow.
type DispatchFunc func(op Operation) error

// Queue serializes GATT operations against one peripheral: at most one
// operation is in flight, and the next one is chosen by kind priority
// (descriptor writes, then reads, then writes), FIFO within a kind.
//
// Queue is not safe for concurrent use; it is owned by the session goroutine.
type Queue struct {
	pending  [numKinds]*list.List[Operation]
	inFlight *Operation
	dispatch DispatchFunc
	logger   *logrus.Logger
}

// NewQueue creates an empty queue that issues operations through dispatch.
func NewQueue(dispatch DispatchFunc, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	q := &Queue{dispatch: dispatch, logger: logger}
	for i := range q.pending {
		q.pending[i] = list.New[Operation]()
	}
	return q
}

// Enqueue appends op to its class and dispatches when the queue is idle.
func (q *Queue) Enqueue(op Operation) {
	if op.Kind < 0 || int(op.Kind) >= numKinds {
		q.logger.WithField("kind", int(op.Kind)).Warn("Dropping operation of unknown kind")
		return
	}
	q.pending[op.Kind].PushBack(op)
	q.logger.WithFields(logrus.Fields{
		"op":      op.String(),
		"pending": q.Len(),
	}).Debug("Operation queued")

	if q.inFlight == nil {
		q.dispatchNext()
	}
}

// Complete retires the in-flight operation, which must be of the given kind,
// and dispatches the next one. The retired operation is returned.
func (q *Queue) Complete(kind Kind) (Operation, error) {
	if q.inFlight == nil {
		return Operation{}, fmt.Errorf("%w: %s with nothing in flight", ErrUnexpectedCompletion, kind)
	}
	if q.inFlight.Kind != kind {
		return Operation{}, fmt.Errorf("%w: %s while %s is in flight", ErrUnexpectedCompletion, kind, q.inFlight.Kind)
	}

	done := *q.inFlight
	q.inFlight = nil
	q.dispatchNext()
	return done, nil
}

// Flush discards every pending and in-flight operation and returns how many
// were dropped.
func (q *Queue) Flush() int {
	n := q.Len()
	for _, l := range q.pending {
		l.Init()
	}
	q.inFlight = nil
	if n > 0 {
		q.logger.WithField("dropped", n).Debug("Request queue flushed")
	}
	return n
}

// Len reports pending plus in-flight operations.
func (q *Queue) Len() int {
	n := 0
	for _, l := range q.pending {
		n += l.Len()
	}
	if q.inFlight != nil {
		n++
	}
	return n
}

// InFlight returns the operation awaiting completion, if any.
func (q *Queue) InFlight() (Operation, bool) {
	if q.inFlight == nil {
		return Operation{}, false
	}
	return *q.inFlight, true
}

func (q *Queue) dispatchNext() {
	for {
		op, ok := q.popNext()
		if !ok {
			return
		}

		q.inFlight = &op
		err := q.dispatch(op)
		if err == nil {
			q.logger.WithField("op", op.String()).Debug("Operation dispatched")
			return
		}

		// refused: no completion will arrive, move on
		q.inFlight = nil
		q.logger.WithFields(logrus.Fields{
			"op":    op.String(),
			"error": err,
		}).Warn("Transport refused operation, dropping it")
	}
}

func (q *Queue) popNext() (Operation, bool) {
	for _, l := range q.pending {
		if front := l.Front(); front != nil {
			return l.Remove(front), true
		}
	}
	return Operation{}, false
}
