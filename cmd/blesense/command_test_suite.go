//go:build test

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/testutils"
	"github.com/srg/blesense/internal/transport"
)

// Test device addresses for consistent peripheral identification
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// printedEvent is one JSON line written by the event printer
type printedEvent struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// CommandTestSuite swaps the BLE stack for a simulated peripheral and keeps
// the package level flag state isolated between tests.
// All cmd/blesense test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Peripheral *testutils.PeripheralSimulator
	Scanner    *testutils.ReplayScanner

	originalTransportFactory func(time.Duration, *logrus.Logger) transport.Transport
	originalScannerFactory   func(*logrus.Logger) (transport.Scanner, error)
	originalFlags            struct {
		monitorDuration time.Duration
		sendWait        time.Duration
		infoTimeout     time.Duration
		scanDuration    time.Duration
		scanAllowList   []string
		scanBlockList   []string
		scanTable       bool
	}
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalTransportFactory = devicefactory.TransportFactory
	s.originalScannerFactory = devicefactory.ScannerFactory

	s.originalFlags.monitorDuration = monitorDuration
	s.originalFlags.sendWait = sendWait
	s.originalFlags.infoTimeout = infoTimeout
	s.originalFlags.scanDuration = scanDuration
	s.originalFlags.scanAllowList = scanAllowList
	s.originalFlags.scanBlockList = scanBlockList
	s.originalFlags.scanTable = scanTable
}

func (s *CommandTestSuite) TearDownSuite() {
	devicefactory.TransportFactory = s.originalTransportFactory
	devicefactory.ScannerFactory = s.originalScannerFactory

	monitorDuration = s.originalFlags.monitorDuration
	sendWait = s.originalFlags.sendWait
	infoTimeout = s.originalFlags.infoTimeout
	scanDuration = s.originalFlags.scanDuration
	scanAllowList = s.originalFlags.scanAllowList
	scanBlockList = s.originalFlags.scanBlockList
	scanTable = s.originalFlags.scanTable
}

func (s *CommandTestSuite) SetupTest() {
	s.Peripheral = testutils.NewPeripheralSimulator()
	s.Scanner = &testutils.ReplayScanner{}

	devicefactory.TransportFactory = func(time.Duration, *logrus.Logger) transport.Transport {
		return s.Peripheral
	}
	devicefactory.ScannerFactory = func(*logrus.Logger) (transport.Scanner, error) {
		return s.Scanner, nil
	}

	// Reset flags before each test for proper isolation
	for _, name := range []string{"type", "log-level", "config"} {
		s.Require().NoError(rootCmd.PersistentFlags().Set(name, ""))
	}
	monitorDuration = 0
	sendWait = 3 * time.Second
	infoTimeout = 15 * time.Second
	scanDuration = 0
	scanAllowList = nil
	scanBlockList = nil
	scanTable = true
}

// ExecuteCommand runs the root command with args and returns what was written
// to stdout and stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	return executeCommand(rootCmd, args...)
}

func executeCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// ParseEvents decodes the JSON event lines of out.
func (s *CommandTestSuite) ParseEvents(out string) []printedEvent {
	var evs []printedEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var ev printedEvent
		s.Require().NoError(json.Unmarshal([]byte(line), &ev), "event line MUST be valid JSON: %s", line)
		evs = append(evs, ev)
	}
	return evs
}

// ConnectionStatuses returns the connection statuses in the order printed.
func (s *CommandTestSuite) ConnectionStatuses(evs []printedEvent) []string {
	var statuses []string
	for _, ev := range evs {
		if ev.Event == "bluetooth-le:connection" {
			statuses = append(statuses, ev.Data["status"].(string))
		}
	}
	return statuses
}

// DataEvents returns the data events of the given type.
func (s *CommandTestSuite) DataEvents(evs []printedEvent, dataType string) []map[string]any {
	var values []map[string]any
	for _, ev := range evs {
		if ev.Event == "bluetooth-le:data" && ev.Data["type"] == dataType {
			v, _ := ev.Data["values"].(map[string]any)
			values = append(values, v)
		}
	}
	return values
}
