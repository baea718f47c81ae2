// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd reads the device heading from the attitude (ATT) reports of a gpsd daemon.
package gpsd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/geotrack/internal/compass"
	"github.com/wneessen/geotrack/internal/logger"
)

const name = "gpsd-att"

var ErrConnectionLost = errors.New("gpsd connection lost")

// Platform implements compass.Platform for receivers with a compass or IMU. Attitude reports need
// no permission, so a reachable gpsd is reported as granted.
type Platform struct {
	logger *logger.Logger
	addr   string
}

// New returns a Platform for the gpsd daemon at host:port.
func New(log *logger.Logger, host, port string) *Platform {
	return &Platform{
		logger: log,
		addr:   net.JoinHostPort(host, port),
	}
}

// Name returns the name of the platform.
func (p *Platform) Name() string {
	return name
}

// Capability implements compass.Platform. An unreachable gpsd means there is no heading source.
func (p *Platform) Capability(context.Context) (compass.Capability, error) {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		p.logger.Debug("gpsd not reachable for attitude reports", slog.String("addr", p.addr),
			logger.Err(err))
		return compass.CapabilityNone, nil
	}
	if err = session.Close(); err != nil {
		p.logger.Debug("failed to close gpsd capability session", logger.Err(err))
	}
	return compass.CapabilityGranted, nil
}

// RequestPermission implements compass.Platform. It never fails.
func (p *Platform) RequestPermission(context.Context) error {
	return nil
}

// Watch implements compass.Platform. It returns ErrConnectionLost when gpsd ends the session.
func (p *Platform) Watch(ctx context.Context, handler func(degrees float64)) error {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}

	session.AddFilter("ATT", func(r interface{}) {
		att, ok := r.(*gpsd.ATTReport)
		if !ok || !HasHeading(att) {
			return
		}
		handler(att.Heading)
	})
	done := session.Watch()

	select {
	case <-ctx.Done():
		// The watch goroutine reports its end on the unbuffered done channel.
		if err = session.Close(); err != nil {
			p.logger.Debug("failed to close gpsd session", logger.Err(err))
		}
		<-done
		return nil
	case <-done:
		return ErrConnectionLost
	}
}

// HasHeading reports whether an ATT report carries a heading. gpsd omits the heading without a
// valid magnetometer reading, which decodes to 0. A report counts as carrying a heading when it
// has a magnetometer status, a field strength or a non-zero heading.
func HasHeading(att *gpsd.ATTReport) bool {
	if att == nil || math.IsNaN(att.Heading) || math.IsInf(att.Heading, 0) {
		return false
	}
	return att.Heading != 0 || att.MagSt != "" || att.MagLen != 0
}
