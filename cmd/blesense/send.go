package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/protocol"
	"github.com/srg/blesense/internal/session"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <address> <name=value>...",
	Short: "Send commands to a device",
	Long: `Connect to a device and send one or more commands, then keep printing
events for --wait so command responses are seen.

Commands the device type does not know are ignored.

Multispread commands:
  doorOpening=<0..65535>
  doorCalibration=start|cancel
  driveWheel=engage|disengage|status
  diagnostics=enable-drive-wheel|disable-drive-wheel|enable-door|disable-door`,
	Example: `  blesense send -t mm-controller 11:22:33:44:55:66 doorOpening=120
  blesense send -t mm-controller 11:22:33:44:55:66 driveWheel=engage diagnostics=enable-door`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSend,
}

var sendWait time.Duration

func init() {
	sendCmd.Flags().DurationVarP(&sendWait, "wait", "w", 3*time.Second, "How long to keep listening after sending")
}

func runSend(cmd *cobra.Command, args []string) error {
	cmds, err := parseCommands(args[1:])
	if err != nil {
		return err
	}

	return runSession(cmd, args[0], func(ctx context.Context, m *session.Machine, printer *eventPrinter) error {
		if err := m.Send(ctx, cmds...); err != nil {
			return fmt.Errorf("failed to send commands: %w", err)
		}
		return waitSession(ctx, sendWait, printer)
	})
}

// parseCommands parses name=value arguments
func parseCommands(args []string) ([]protocol.Command, error) {
	cmds := make([]protocol.Command, 0, len(args))
	for _, arg := range args {
		cmd, err := protocol.ParseCommand(arg)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
