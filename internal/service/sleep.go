// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geotrack/internal/logger"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Member    = "PrepareForSleep"

	resumeDebounce   = 2 * time.Second
	signalBufferSize = 8

	busReconnectDelay   = 5 * time.Second
	resumeSettleDelay   = 3 * time.Second
	subscribeRetryDelay = 10 * time.Second
)

// monitorSleepResume refreshes the readout and the map after the system resumed from sleep. The
// relative times in the readout are stale after a suspend, and gpsd sessions reconnect by themselves.
func (s *Service) monitorSleepResume(ctx context.Context) {
	var lastResume atomic.Int64

	for {
		conn := s.connectToSystemBus(ctx)
		if conn == nil {
			return
		}
		if !s.subscribeSleepSignal(ctx, conn) {
			continue
		}

		sigCh := make(chan *dbus.Signal, signalBufferSize)
		conn.Signal(sigCh)
		s.logger.Debug("subscribed to dbus signal", slog.String("interface", login1Interface),
			slog.String("member", login1Member))

	recv:
		for {
			select {
			case <-ctx.Done():
				break recv
			case sgn, ok := <-sigCh:
				if !ok {
					break recv
				}
				if resumed(sgn) {
					s.handleResume(ctx, &lastResume, time.Now())
				}
			}
		}

		conn.RemoveSignal(sigCh)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(busReconnectDelay):
		}
	}
}

func (s *Service) connectToSystemBus(ctx context.Context) *dbus.Conn {
	for {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err == nil {
			return conn
		}
		select {
		case <-time.After(busReconnectDelay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) subscribeSleepSignal(ctx context.Context, conn *dbus.Conn) bool {
	err := conn.AddMatchSignal(dbus.WithMatchInterface(login1Interface), dbus.WithMatchMember(login1Member))
	if err == nil {
		return true
	}
	s.logger.Error("failed to subscribe to dbus signal", slog.String("interface", login1Interface),
		slog.String("member", login1Member), logger.Err(err))
	if err = conn.Close(); err != nil {
		s.logger.Debug("failed to close system bus connection", logger.Err(err))
	}
	select {
	case <-time.After(subscribeRetryDelay):
	case <-ctx.Done():
	}
	return false
}

// resumed reports whether sgn is a PrepareForSleep(false) signal.
func resumed(sgn *dbus.Signal) bool {
	if sgn == nil || sgn.Name != login1Interface+"."+login1Member || len(sgn.Body) != 1 {
		return false
	}
	sleeping, ok := sgn.Body[0].(bool)
	return ok && !sleeping
}

// handleResume refreshes the outputs once per debounce window.
func (s *Service) handleResume(ctx context.Context, lastResume *atomic.Int64, now time.Time) bool {
	last := lastResume.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < resumeDebounce {
		return false
	}
	lastResume.Store(now.UnixNano())

	select {
	case <-ctx.Done():
		return false
	case <-time.After(resumeSettleDelay):
	}

	s.logger.Debug("resumed from sleep, refreshing readout and map")
	s.readout.Print(ctx)
	s.canvas.Redraw()
	return true
}
