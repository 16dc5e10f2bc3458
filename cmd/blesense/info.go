package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/session"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Read the device information record",
	Long: `Connect to a device and print the standard device information record
(system id, model, serial number, revisions, manufacturer, certification data)
as it is read, then disconnect.`,
	Example: `  blesense info -t heart-rate AA:BB:CC:DD:EE:FF`,
	Args:    cobra.ExactArgs(1),
	RunE:    runInfo,
}

var infoTimeout time.Duration

func init() {
	infoCmd.Flags().DurationVar(&infoTimeout, "timeout", 15*time.Second, "How long to wait for all fields")
}

func runInfo(cmd *cobra.Command, args []string) error {
	return runSession(cmd, args[0], func(ctx context.Context, m *session.Machine, printer *eventPrinter) error {
		return waitDeviceInfo(ctx, infoTimeout, printer)
	})
}

// waitDeviceInfo waits until every device info field has been reported
func waitDeviceInfo(ctx context.Context, timeout time.Duration, printer *eventPrinter) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	want := len(protocol.DeviceInfoReads())
	for printer.InfoFields() < want {
		select {
		case <-printer.InfoArrived():
		case <-printer.Lost():
			return ErrConnectionLost
		case <-ctx.Done():
			// devices may not implement every field; a partial record is fine
			if printer.InfoFields() > 0 {
				return nil
			}
			return ctx.Err()
		}
	}
	return nil
}
