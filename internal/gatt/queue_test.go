package gatt

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	charA = MustParseUUID("2a37")
	charB = MustParseUUID("2a38")
	charC = MustParseUUID("e29e238a-c4c1-4160-8dbd-c22437081105")
)

type dispatchRecorder struct {
	issued []Operation
	refuse map[UUID]bool
}

func (r *dispatchRecorder) dispatch(op Operation) error {
	r.issued = append(r.issued, op)
	if r.refuse[op.Characteristic] {
		return errors.New("refused")
	}
	return nil
}

func newTestQueue() (*Queue, *dispatchRecorder) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	rec := &dispatchRecorder{refuse: map[UUID]bool{}}
	return NewQueue(rec.dispatch, logger), rec
}

func TestQueue_DispatchesImmediatelyWhenIdle(t *testing.T) {
	q, rec := newTestQueue()

	q.Enqueue(NewRead(charA))

	require.Len(t, rec.issued, 1)
	assert.Equal(t, NewRead(charA), rec.issued[0])
	op, ok := q.InFlight()
	assert.True(t, ok)
	assert.Equal(t, CharacteristicRead, op.Kind)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_AtMostOneInFlight(t *testing.T) {
	q, rec := newTestQueue()

	q.Enqueue(NewRead(charA))
	q.Enqueue(NewRead(charB))
	q.Enqueue(NewWrite(charC, []byte{0x01}))

	assert.Len(t, rec.issued, 1, "only the first operation may be issued before a completion")
	assert.Equal(t, 3, q.Len())
}

func TestQueue_PriorityOrder(t *testing.T) {
	q, rec := newTestQueue()

	// the first enqueue is issued at once, so block the queue with it
	q.Enqueue(NewRead(charA))
	q.Enqueue(NewWrite(charC, []byte{0x02, 0x01}))
	q.Enqueue(EnableNotifications(charB))
	q.Enqueue(NewRead(charB))

	_, err := q.Complete(CharacteristicRead)
	require.NoError(t, err)
	_, err = q.Complete(DescriptorWrite)
	require.NoError(t, err)
	_, err = q.Complete(CharacteristicRead)
	require.NoError(t, err)
	_, err = q.Complete(CharacteristicWrite)
	require.NoError(t, err)

	kinds := make([]Kind, 0, len(rec.issued))
	for _, op := range rec.issued {
		kinds = append(kinds, op.Kind)
	}
	assert.Equal(t, []Kind{CharacteristicRead, DescriptorWrite, CharacteristicRead, CharacteristicWrite}, kinds)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_FIFOWithinKind(t *testing.T) {
	q, rec := newTestQueue()

	q.Enqueue(NewWrite(charA, []byte{1}))
	q.Enqueue(NewWrite(charB, []byte{2}))
	q.Enqueue(NewWrite(charC, []byte{3}))

	for range 3 {
		_, err := q.Complete(CharacteristicWrite)
		require.NoError(t, err)
	}

	require.Len(t, rec.issued, 3)
	assert.Equal(t, []byte{1}, rec.issued[0].Payload)
	assert.Equal(t, []byte{2}, rec.issued[1].Payload)
	assert.Equal(t, []byte{3}, rec.issued[2].Payload)
}

func TestQueue_CompleteReturnsRetiredOperation(t *testing.T) {
	q, _ := newTestQueue()

	q.Enqueue(NewWrite(charC, []byte{0x02, 0x03}))
	op, err := q.Complete(CharacteristicWrite)

	require.NoError(t, err)
	assert.Equal(t, charC, op.Characteristic)
	assert.Equal(t, []byte{0x02, 0x03}, op.Payload)
	_, ok := q.InFlight()
	assert.False(t, ok)
}

func TestQueue_UnexpectedCompletion(t *testing.T) {
	q, _ := newTestQueue()

	_, err := q.Complete(CharacteristicRead)
	assert.ErrorIs(t, err, ErrUnexpectedCompletion, "completion on an idle queue must be rejected")

	q.Enqueue(NewRead(charA))
	_, err = q.Complete(CharacteristicWrite)
	assert.ErrorIs(t, err, ErrUnexpectedCompletion, "completion of the wrong kind must be rejected")

	op, ok := q.InFlight()
	assert.True(t, ok, "a rejected completion must leave the in-flight operation untouched")
	assert.Equal(t, charA, op.Characteristic)
}

func TestQueue_RefusedDispatchMovesOn(t *testing.T) {
	q, rec := newTestQueue()
	rec.refuse[charA] = true

	q.Enqueue(NewRead(charA))
	_, ok := q.InFlight()
	assert.False(t, ok, "a refused operation must not stay in flight")

	q.Enqueue(NewRead(charB))
	op, ok := q.InFlight()
	require.True(t, ok)
	assert.Equal(t, charB, op.Characteristic)
}

func TestQueue_RefusedDispatchSkipsToNextPending(t *testing.T) {
	q, rec := newTestQueue()

	q.Enqueue(NewRead(charC))
	rec.refuse[charA] = true
	q.Enqueue(NewRead(charA))
	q.Enqueue(NewRead(charB))

	_, err := q.Complete(CharacteristicRead)
	require.NoError(t, err)

	op, ok := q.InFlight()
	require.True(t, ok)
	assert.Equal(t, charB, op.Characteristic)
	assert.Len(t, rec.issued, 3)
}

func TestQueue_Flush(t *testing.T) {
	q, rec := newTestQueue()

	q.Enqueue(NewRead(charA))
	q.Enqueue(NewRead(charB))
	q.Enqueue(NewWrite(charC, nil))

	assert.Equal(t, 3, q.Flush())
	assert.Equal(t, 0, q.Len())
	_, ok := q.InFlight()
	assert.False(t, ok)

	q.Enqueue(NewRead(charB))
	assert.Len(t, rec.issued, 2, "a flushed queue must dispatch again immediately")
}

func TestOperation_PayloadIsCopied(t *testing.T) {
	data := []byte{0x01, 0x02}
	op := NewWrite(charC, data)
	data[0] = 0xFF

	assert.Equal(t, []byte{0x01, 0x02}, op.Payload)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "descriptor-write", DescriptorWrite.String())
	assert.Equal(t, "read", CharacteristicRead.String())
	assert.Equal(t, "write", CharacteristicWrite.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}
