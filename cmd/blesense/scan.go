package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for supported BLE devices",
	Long: `Scan for heart rate monitors and multispread controllers in the vicinity.

Every advertisement of a supported device is printed as a JSON scanning event;
a summary table follows when the scan ends.`,
	RunE: runScan,
}

var (
	scanDuration  time.Duration
	scanAllowList []string
	scanBlockList []string
	scanTable     bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 0 for indefinite)")
	scanCmd.Flags().StringSliceVar(&scanAllowList, "allow", nil, "Only show devices with these addresses")
	scanCmd.Flags().StringSliceVar(&scanBlockList, "block", nil, "Hide devices with these addresses")
	scanCmd.Flags().BoolVar(&scanTable, "table", true, "Print a summary table when the scan ends")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	opts := scanner.DefaultOptions()
	opts.Duration = cfg.ScanTimeout
	if cmd.Flags().Changed("duration") {
		opts.Duration = scanDuration
	}
	opts.AllowList = scanAllowList
	opts.BlockList = scanBlockList
	if cfg.DeviceType != "" {
		if _, err := devicefactory.NewProtocol(cfg.DeviceType); err != nil {
			return err
		}
		opts.Types = []string{cfg.DeviceType}
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	printer := newEventPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	source, err := devicefactory.ScannerFactory(logger)
	printer.Emit(scanner.StatusEvent(err))
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := scanner.New(source, printer, logger).Scan(ctx, opts)
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if scanTable {
		displayDevicesTable(cmd.ErrOrStderr(), devices)
	}
	return nil
}

func displayDevicesTable(out io.Writer, devices map[string]scanner.Device) {
	if len(devices) == 0 {
		warnColor.Fprintln(out, "No supported devices found")
		return
	}

	list := make([]scanner.Device, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	// strongest signal first
	sort.Slice(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].Address < list[j].Address
	})

	okColor.Fprintf(out, "Found %d device(s):\n", len(list))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tNAME\tTYPE\tRSSI\tLAST SEEN")
	for _, d := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.Address, d.Name, d.Type, d.RSSI, d.LastSeen.Format(time.TimeOnly))
	}
	w.Flush()
}
