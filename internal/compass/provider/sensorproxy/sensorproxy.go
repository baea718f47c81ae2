// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package sensorproxy reads the device heading from iio-sensor-proxy on the system bus.
package sensorproxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geotrack/internal/compass"
	"github.com/wneessen/geotrack/internal/logger"
)

const (
	busName          = "net.hadess.SensorProxy"
	objectPath       = dbus.ObjectPath("/net/hadess/SensorProxy/Compass")
	compassInterface = "net.hadess.SensorProxy.Compass"
	propsInterface   = "org.freedesktop.DBus.Properties"
	propsChanged     = "PropertiesChanged"
	headingProperty  = "CompassHeading"
	serviceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"

	signalBufferSize = 8
	name             = "iio-sensor-proxy"
)

var ErrSignalsClosed = errors.New("sensor proxy signal channel closed")

// bus is the part of the sensor proxy API the Platform relies on.
type bus interface {
	HasCompass(ctx context.Context) (bool, error)
	ClaimCompass(ctx context.Context) error
	ReleaseCompass(ctx context.Context) error
	// Headings delivers the current heading and every change until ctx is done or the
	// connection is lost, then closes the channel.
	Headings(ctx context.Context) (<-chan float64, error)
	Close() error
}

// Platform implements compass.Platform on top of iio-sensor-proxy. Claiming the compass is
// subject to polkit authorization, so the capability is reported as requiring permission.
type Platform struct {
	logger    *logger.Logger
	connectFn func(ctx context.Context) (bus, error)

	mu   sync.Mutex
	conn bus
}

// New returns a Platform connecting to the system bus on first use.
func New(log *logger.Logger) *Platform {
	return &Platform{
		logger:    log,
		connectFn: dialSystemBus,
	}
}

// Name returns the name of the platform.
func (p *Platform) Name() string {
	return name
}

// Capability implements compass.Platform. A missing sensor proxy service means there is no
// compass.
func (p *Platform) Capability(ctx context.Context) (compass.Capability, error) {
	conn, err := p.bus(ctx)
	if err != nil {
		return compass.CapabilityNone, err
	}
	hasCompass, err := conn.HasCompass(ctx)
	switch {
	case isServiceUnknown(err):
		p.logger.Debug("iio-sensor-proxy is not running")
		return compass.CapabilityNone, nil
	case err != nil:
		return compass.CapabilityNone, fmt.Errorf("failed to query compass: %w", err)
	case !hasCompass:
		p.logger.Debug("sensor proxy has no compass", slog.String("bus", busName))
		return compass.CapabilityNone, nil
	}
	return compass.CapabilityRequiresPermission, nil
}

// RequestPermission implements compass.Platform by claiming the compass.
func (p *Platform) RequestPermission(ctx context.Context) error {
	conn, err := p.bus(ctx)
	if err != nil {
		return err
	}
	if err = conn.ClaimCompass(ctx); err != nil {
		return fmt.Errorf("failed to claim compass: %w", err)
	}
	return nil
}

// Watch implements compass.Platform. The compass is released and the connection closed when
// Watch returns.
func (p *Platform) Watch(ctx context.Context, handler func(degrees float64)) error {
	conn, err := p.bus(ctx)
	if err != nil {
		return err
	}
	defer p.close(conn)

	headings, err := conn.Headings(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to compass heading: %w", err)
	}
	for heading := range headings {
		handler(heading)
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrSignalsClosed
}

func (p *Platform) bus(ctx context.Context) (bus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := p.connectFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	p.conn = conn
	return conn, nil
}

func (p *Platform) close(conn bus) {
	p.mu.Lock()
	p.conn = nil
	p.mu.Unlock()

	if err := conn.ReleaseCompass(context.Background()); err != nil {
		p.logger.Debug("failed to release compass", logger.Err(err))
	}
	if err := conn.Close(); err != nil {
		p.logger.Error("failed to close system bus connection", logger.Err(err))
	}
}

func isServiceUnknown(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == serviceUnknown
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == serviceUnknown
	}
	return false
}

// systemBus talks to iio-sensor-proxy through a system bus connection.
type systemBus struct {
	conn *dbus.Conn
	obj  dbus.BusObject
}

func dialSystemBus(ctx context.Context) (bus, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	return &systemBus{conn: conn, obj: conn.Object(busName, objectPath)}, nil
}

func (s *systemBus) HasCompass(context.Context) (bool, error) {
	variant, err := s.obj.GetProperty(compassInterface + ".HasCompass")
	if err != nil {
		return false, err
	}
	hasCompass, ok := variant.Value().(bool)
	return ok && hasCompass, nil
}

func (s *systemBus) ClaimCompass(ctx context.Context) error {
	return s.obj.CallWithContext(ctx, compassInterface+".ClaimCompass", 0).Err
}

func (s *systemBus) ReleaseCompass(ctx context.Context) error {
	return s.obj.CallWithContext(ctx, compassInterface+".ReleaseCompass", 0).Err
}

func (s *systemBus) Headings(ctx context.Context) (<-chan float64, error) {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface(propsInterface),
		dbus.WithMatchMember(propsChanged),
	}
	if err := s.conn.AddMatchSignal(matchOpts...); err != nil {
		return nil, err
	}
	sigCh := make(chan *dbus.Signal, signalBufferSize)
	s.conn.Signal(sigCh)

	out := make(chan float64, signalBufferSize)
	if variant, err := s.obj.GetProperty(compassInterface + "." + headingProperty); err == nil {
		if heading, ok := variant.Value().(float64); ok {
			out <- heading
		}
	}

	go func() {
		defer close(out)
		defer func() {
			s.conn.RemoveSignal(sigCh)
			_ = s.conn.RemoveMatchSignal(matchOpts...)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sgn, ok := <-sigCh:
				if !ok {
					return
				}
				heading, ok := headingFromSignal(sgn)
				if !ok {
					continue
				}
				select {
				case out <- heading:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *systemBus) Close() error {
	return s.conn.Close()
}

// headingFromSignal extracts the compass heading from a PropertiesChanged signal.
func headingFromSignal(sgn *dbus.Signal) (float64, bool) {
	if sgn == nil || sgn.Path != objectPath || len(sgn.Body) < 2 {
		return 0, false
	}
	if iface, ok := sgn.Body[0].(string); !ok || iface != compassInterface {
		return 0, false
	}
	changed, ok := sgn.Body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, false
	}
	variant, ok := changed[headingProperty]
	if !ok {
		return 0, false
	}
	heading, ok := variant.Value().(float64)
	if !ok {
		return 0, false
	}
	return heading, true
}
