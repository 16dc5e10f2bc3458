package groutine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_NamesContext(t *testing.T) {
	got := make(chan string, 1)
	Go(nil, "session-inbox", func(ctx context.Context) { //nolint:staticcheck
		got <- GetName(ctx)
	})

	select {
	case name := <-got:
		assert.Equal(t, "session-inbox", name)
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestGo_InheritsParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	Go(parent, "waiter", func(ctx context.Context) {
		<-ctx.Done()
		close(done)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("child context was not cancelled with its parent")
	}
}

func TestGo_RecoversPanic(t *testing.T) {
	type report struct {
		name string
		val  any
	}
	reports := make(chan report, 1)

	prev := PanicHandler
	PanicHandler = func(name string, recovered any) { reports <- report{name, recovered} }
	t.Cleanup(func() { PanicHandler = prev })

	Go(context.Background(), "boom", func(context.Context) { panic("bad frame") })

	select {
	case r := <-reports:
		require.Equal(t, "boom", r.name)
		assert.Equal(t, "bad frame", r.val)
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestGetName_Empty(t *testing.T) {
	assert.Empty(t, GetName(context.Background()))
	assert.Empty(t, GetName(nil)) //nolint:staticcheck
}
