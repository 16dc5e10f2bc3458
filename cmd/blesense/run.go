package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/config"
	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/groutine"
	"github.com/srg/blesense/internal/session"
)

// sessionFunc runs once the peripheral is connected
type sessionFunc func(ctx context.Context, m *session.Machine, printer *eventPrinter) error

// runSession connects to address, runs fn and tears the connection down.
// Events are delivered through a bounded channel sink and printed by a
// dedicated goroutine so a slow terminal never blocks the session.
func runSession(cmd *cobra.Command, address string, fn sessionFunc) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	if cfg.DeviceType == "" {
		return fmt.Errorf("%w: use --type or device_type in the config", ErrDeviceTypeRequired)
	}
	proto, err := devicefactory.NewProtocol(cfg.DeviceType)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := newEventPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
	sink := events.NewChannelSink(cfg.EventBuffer)
	printed := make(chan struct{})
	groutine.Go(ctx, "event-printer", func(context.Context) {
		defer close(printed)
		for ev := range sink.C() {
			printer.Emit(ev)
		}
	})

	tr := devicefactory.TransportFactory(cfg.ConnectTimeout, logger)
	m := session.New(tr, proto, sink,
		session.WithLogger(logger),
		session.WithInboxSize(cfg.InboxSize),
	)

	runCtx, cancelRun := context.WithCancel(context.Background())
	groutine.Go(runCtx, "session", func(ctx context.Context) {
		if err := m.Run(ctx); err != nil {
			logger.WithError(err).Error("Session stopped with error")
		}
	})

	defer func() {
		cancelRun()
		<-m.Done()
		sink.Close()
		<-printed
		if overwritten := sink.GetMetrics().Overwritten; overwritten > 0 {
			logger.WithField("dropped", overwritten).Warn("Events dropped by a slow consumer")
		}
	}()

	logger.WithFields(logrus.Fields{
		"address":     address,
		"device_type": proto.Type(),
	}).Info("Connecting...")

	if err := m.Connect(ctx, address); err != nil {
		return err
	}
	if err := waitConnected(ctx, cfg, printer); err != nil {
		return err
	}
	return fn(ctx, m, printer)
}

// waitConnected blocks until the peripheral is up, the link drops or the
// connect timeout passes.
func waitConnected(ctx context.Context, cfg *config.Config, printer *eventPrinter) error {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	select {
	case <-printer.Connected():
		return nil
	case <-printer.Lost():
		return ErrConnectionLost
	case <-ctx.Done():
		return ctx.Err()
	}
}
