// Package groutine starts named goroutines. The name is attached as a pprof
// label and carried in the context so logs and profiles can tell workers apart.
package groutine

import (
	"context"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// PanicHandler is called with the goroutine name and recovered value when a
// goroutine started by Go panics. It can be overridden in tests.
var PanicHandler = func(name string, recovered any) {
	logrus.WithFields(logrus.Fields{
		"goroutine": name,
		"panic":     recovered,
	}).Error("Goroutine panicked")
}

// Go starts fn in a goroutine labelled with name. If parentCtx is nil,
// context.Background() is used. A panic in fn is recovered and reported to
// PanicHandler so one failing worker cannot take the process down.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				PanicHandler(name, r)
			}
		}()
		fn(context.WithValue(ctx, goroutineNameKey, name))
	})
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
