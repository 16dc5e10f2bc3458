package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/transport"
)

// Scanner reports advertisements from the host BLE device
type Scanner struct {
	dev    ble.Device
	logger *logrus.Logger
}

var _ transport.Scanner = (*Scanner)(nil)

// NewScanner creates a scanner on the device returned by DeviceFactory.
func NewScanner(logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.New()
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &Scanner{dev: dev, logger: logger}, nil
}

// Scan runs until ctx is done. Duplicate advertisements are delivered so
// RSSI updates are seen.
func (s *Scanner) Scan(ctx context.Context, handler func(transport.Advertisement)) error {
	err := s.dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(s.convert(adv))
	})
	return NormalizeError(err)
}

func (s *Scanner) convert(adv ble.Advertisement) transport.Advertisement {
	out := transport.Advertisement{
		Name:        adv.LocalName(),
		Address:     adv.Addr().String(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
	}
	for _, u := range adv.Services() {
		id, err := FromBLE(u)
		if err != nil {
			s.logger.WithField("service_uuid", u.String()).Debug("Ignoring unparsable advertised service")
			continue
		}
		out.Services = append(out.Services, id)
	}
	return out
}
