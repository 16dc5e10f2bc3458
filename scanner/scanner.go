// Package scanner discovers advertising peripherals of the supported device
// types and reports them as scanning events.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/devicefactory"
	"github.com/srg/blesense/internal/events"
	"github.com/srg/blesense/internal/transport"
)

// Device is a supported peripheral seen during a scan
type Device struct {
	Name     string
	Address  string
	Type     string
	RSSI     int
	LastSeen time.Time
}

// Options configures scanning behavior
type Options struct {
	Duration  time.Duration
	AllowList []string
	BlockList []string
	// Types restricts reporting to these device types; empty means every
	// type with a protocol
	Types []string
}

// DefaultOptions returns default scanning options
func DefaultOptions() *Options {
	return &Options{Duration: 10 * time.Second}
}

// Scanner reports supported peripherals found by a transport.Scanner
type Scanner struct {
	source  transport.Scanner
	sink    events.Sink
	logger  *logrus.Logger
	devices *hashmap.Map[string, *Device]
	opts    *Options
}

// New creates a scanner over source. A nil sink discards events.
func New(source transport.Scanner, sink events.Sink, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = events.Discard
	}
	return &Scanner{source: source, sink: sink, logger: logger}
}

// Scan runs discovery until the duration elapses or ctx is done, emitting
// discovery-started, one device-detected per advertisement of a supported
// device and discovery-stopped. It returns the devices seen, keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (map[string]Device, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	s.opts = opts
	s.devices = hashmap.New[string, *Device]()

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	s.sink.Emit(events.ScanStarted())

	err := s.source.Scan(ctx, s.handleAdvertisement)
	s.sink.Emit(events.ScanStopped())
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")

	devices := make(map[string]Device, s.devices.Len())
	s.devices.Range(func(key string, value *Device) bool {
		devices[key] = *value
		return true
	})
	return devices, nil
}

// handleAdvertisement records a supported device and reports it
func (s *Scanner) handleAdvertisement(adv transport.Advertisement) {
	if !s.shouldInclude(adv.Address) {
		return
	}

	deviceType := devicefactory.InferType(adv.Name, adv.Services)
	proto, err := devicefactory.NewProtocol(deviceType)
	if err != nil || !s.wantsType(deviceType) {
		return
	}

	name := devicefactory.DisplayName(adv.Name, proto)
	dev, existing := s.devices.GetOrInsert(adv.Address, &Device{
		Name:    name,
		Address: adv.Address,
		Type:    deviceType,
	})
	dev.RSSI = adv.RSSI
	dev.LastSeen = time.Now()

	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  name,
			"address": adv.Address,
			"type":    deviceType,
			"rssi":    adv.RSSI,
		}).Info("Discovered new device")
	}

	s.sink.Emit(events.DeviceDetected(dev.Name, dev.Address, dev.Type, adv.RSSI))
}

// shouldInclude applies the allow and block lists
func (s *Scanner) shouldInclude(addr string) bool {
	for _, blocked := range s.opts.BlockList {
		if addr == blocked {
			return false
		}
	}

	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, a := range s.opts.AllowList {
		if addr == a {
			return true
		}
	}
	return false
}

func (s *Scanner) wantsType(deviceType string) bool {
	if len(s.opts.Types) == 0 {
		return true
	}
	for _, t := range s.opts.Types {
		if t == deviceType {
			return true
		}
	}
	return false
}

// StatusEvent maps the outcome of opening the BLE adapter onto the adapter
// status event reported to the bridge.
func StatusEvent(err error) events.Event {
	switch {
	case err == nil:
		return events.Status(events.StatusReady)
	case transport.IsConnectionState(err, transport.BluetoothOff):
		return events.Status(events.StatusOff)
	case errors.Is(err, transport.ErrTransportUnavailable):
		return events.Status(events.StatusUnsupported)
	default:
		return events.StatusWithLabel("unknown", events.StatusLabel("unknown"))
	}
}
