// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll provides a location provider that polls gpsd for a single fix per interval
// instead of keeping a watch open.
package gpspoll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/gpspoll"
	"github.com/wneessen/geotrack/internal/job"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	DefaultPeriod = time.Second * 30

	pollTimeout = time.Second * 5
	name        = "gpspoll"
)

// ErrNoFix is returned when gpsd answered but the receiver has no usable fix.
var ErrNoFix = errors.New("gpsd reported no usable fix")

// Provider polls gpsd periodically.
type Provider struct {
	name     string
	period   time.Duration
	locateFn func(ctx context.Context) (gpspoll.Fix, error)
}

// New returns a Provider polling gpsd at host:port every period.
func New(host, port string, period time.Duration) *Provider {
	if period <= 0 {
		period = DefaultPeriod
	}
	client := gpspoll.New(host, port)
	return &Provider{
		name:     name,
		period:   period,
		locateFn: client.Poll,
	}
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Watch implements location.Provider. Every failure is recoverable, a fix that does not satisfy
// the accuracy requirement is reported as PositionUnavailable.
func (p *Provider) Watch(ctx context.Context, opts location.WatchOptions) <-chan location.Update {
	stream := location.NewStream()
	poll := func(ctx context.Context) {
		stream.Send(ctx, p.poll(ctx, opts))
	}

	go func() {
		defer stream.Close()
		job.New(p.period, poll, job.WithImmediate()).Start(ctx)
	}()
	return stream.C()
}

func (p *Provider) poll(ctx context.Context, opts location.WatchOptions) location.Update {
	pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	fix, err := p.locateFn(pollCtx)
	if err != nil {
		code := location.PositionUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			code = location.Timeout
		}
		return location.NewError(p.name, code, err)
	}
	if !fix.Has2DFix() || (opts.HighAccuracy && !fix.Has3DFix()) {
		return location.NewError(p.name, location.PositionUnavailable, fmt.Errorf("%w: mode %d", ErrNoFix, fix.Mode))
	}
	return location.Update{Raw: RawFromFix(fix, p.name)}
}

// RawFromFix converts a polled fix into a raw location event.
func RawFromFix(fix gpspoll.Fix, source string) geosample.Raw {
	if fix.Device != "" {
		source += ":" + fix.Device
	}
	raw := geosample.Raw{
		Latitude:         vartype.NewVariable(fix.Lat),
		Longitude:        vartype.NewVariable(fix.Lon),
		Accuracy:         vartype.NewVariable(fix.Acc),
		Altitude:         fix.Alt,
		AltitudeAccuracy: fix.AltAcc,
		Speed:            fix.Speed,
		Heading:          fix.Track,
		Timestamp:        fix.Time,
		Source:           source,
	}
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now()
	}
	return raw
}
