package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <address>",
	Short: "Stream decoded readings from a device",
	Long: `Connect to a device, enable its notifications and print every decoded
reading, command response and device information update as a JSON line.

Runs until interrupted (Ctrl+C), the connection drops or --duration elapses.`,
	Example: `  blesense monitor --type heart-rate AA:BB:CC:DD:EE:FF
  blesense monitor -t mm-controller -d 30s 11:22:33:44:55:66`,
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var monitorDuration time.Duration

func init() {
	monitorCmd.Flags().DurationVarP(&monitorDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	return runSession(cmd, args[0], func(ctx context.Context, m *session.Machine, printer *eventPrinter) error {
		return waitSession(ctx, monitorDuration, printer)
	})
}

// waitSession blocks until ctx is done, d elapses (when positive) or the
// connection is lost.
func waitSession(ctx context.Context, d time.Duration, printer *eventPrinter) error {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	select {
	case <-printer.Lost():
		return ErrConnectionLost
	case <-ctx.Done():
		// interrupt or duration reached, both are a normal end
		return nil
	}
}
