// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpsd streams location fixes from a gpsd daemon.
package gpsd

import (
	"context"
	"log/slog"
	"net"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/gpspoll"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	name = "gpsd"

	DefaultHost = "localhost"
	DefaultPort = "2947"
)

// Provider streams every TPV report of a gpsd session. The connection is re-established with
// backoff when gpsd goes away.
type Provider struct {
	logger *logger.Logger
	name   string
	addr   string
}

// New returns a Provider for the gpsd daemon at host:port.
func New(log *logger.Logger, host, port string) *Provider {
	return &Provider{
		logger: log,
		name:   name,
		addr:   net.JoinHostPort(host, port),
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Watch implements location.Provider. Failed connection attempts are delivered as a recoverable
// PositionUnavailable error.
func (p *Provider) Watch(ctx context.Context, opts location.WatchOptions) <-chan location.Update {
	stream := location.NewStream()

	go func() {
		defer stream.Close()
		backoff := location.InitialBackoff

		for {
			if ctx.Err() != nil {
				return
			}

			session, err := gpsd.Dial(p.addr)
			if err != nil {
				p.logger.Debug("failed to connect to gpsd", slog.String("addr", p.addr), logger.Err(err))
				if !stream.Send(ctx, location.NewError(p.name, location.PositionUnavailable, err)) {
					return
				}
				if !location.SleepOrDone(ctx, backoff) {
					return
				}
				backoff = location.NextBackoff(backoff)
				continue
			}
			backoff = location.InitialBackoff

			// Install TPV filter: this gets called for every TPV report
			session.AddFilter("TPV", func(r interface{}) {
				tpv, ok := r.(*gpsd.TPVReport)
				if !ok || !AcceptFix(int(tpv.Mode), opts) {
					return
				}
				stream.Send(ctx, location.Update{Raw: RawFromTPV(tpv, p.name)})
			})

			// Watch() returns a channel that closes when the watch ends (e.g. connection lost).
			done := session.Watch()
			p.logger.Debug("watching gpsd", slog.String("addr", p.addr))

			select {
			case <-ctx.Done():
				// The watch goroutine reports its end on the unbuffered done channel.
				if err = session.Close(); err != nil {
					p.logger.Debug("failed to close gpsd session", logger.Err(err))
				}
				<-done
				return
			case <-done:
				p.logger.Warn("gpsd connection lost", slog.String("addr", p.addr))
			}

			if !location.SleepOrDone(ctx, backoff) {
				return
			}
		}
	}()

	return stream.C()
}

// AcceptFix reports whether a report with the given fix mode carries a usable position. High
// accuracy watches require a 3D fix.
func AcceptFix(mode int, opts location.WatchOptions) bool {
	if opts.HighAccuracy {
		return mode >= gpspoll.Mode3D
	}
	return mode >= gpspoll.Mode2D
}

// RawFromTPV converts a TPV report into a raw location event. Speed and track are only known with a
// fix, and the track only while moving.
func RawFromTPV(tpv *gpsd.TPVReport, source string) geosample.Raw {
	mode := int(tpv.Mode)
	raw := geosample.Raw{
		Latitude:  vartype.FiniteFloat64(tpv.Lat),
		Longitude: vartype.FiniteFloat64(tpv.Lon),
		Accuracy:  vartype.NewVariable(gpspoll.HorizontalAccuracy(mode, 0, tpv.Epx, tpv.Epy)),
		Timestamp: tpv.Time,
		Source:    source,
	}
	if tpv.Device != "" {
		raw.Source = source + ":" + tpv.Device
	}
	if mode >= gpspoll.Mode3D {
		raw.Altitude = vartype.FiniteFloat64(tpv.Alt)
		if tpv.Epv > 0 {
			raw.AltitudeAccuracy = vartype.FiniteFloat64(tpv.Epv)
		}
	}
	if mode >= gpspoll.Mode2D {
		raw.Speed = vartype.FiniteFloat64(tpv.Speed)
		if tpv.Speed > 0 {
			raw.Heading = vartype.FiniteFloat64(tpv.Track)
		}
	}
	return raw
}
