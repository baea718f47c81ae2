// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package notify shows desktop notifications through the freedesktop Notifications service.
package notify

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/geotrack/internal/logger"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	method     = busName + ".Notify"

	// DefaultTimeout lets the notification server pick the expiry.
	DefaultTimeout = int32(-1)
)

var ErrNoSessionBus = errors.New("session bus not available")

type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Notifier sends desktop notifications. When no session bus is available the message is written
// to the log instead.
type Notifier struct {
	logger  *logger.Logger
	appName string
	icon    string
	timeout int32

	mu        sync.Mutex
	obj       caller
	connectFn func() (caller, error)
}

// New returns a Notifier for appName. The session bus is connected on the first notification.
func New(log *logger.Logger, appName, icon string) *Notifier {
	return &Notifier{
		logger:    log,
		appName:   appName,
		icon:      icon,
		timeout:   DefaultTimeout,
		connectFn: connectSessionBus,
	}
}

// Notify implements fault.Notifier.
func (n *Notifier) Notify(summary, body string) error {
	obj, err := n.object()
	if err != nil {
		n.logger.Warn("desktop notifications unavailable", logger.Err(err),
			slog.String("summary", summary), slog.String("body", body))
		return nil
	}

	var id uint32
	call := obj.Call(method, 0, n.appName, uint32(0), n.icon, summary, body, []string{},
		map[string]dbus.Variant{}, n.timeout)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	if len(call.Body) > 0 {
		id, _ = call.Body[0].(uint32)
	}
	n.logger.Debug("notification sent", slog.String("summary", summary), slog.Any("id", id))
	return nil
}

func (n *Notifier) object() (caller, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.obj != nil {
		return n.obj, nil
	}
	obj, err := n.connectFn()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSessionBus, err)
	}
	n.obj = obj
	return obj, nil
}

func connectSessionBus() (caller, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return conn.Object(busName, objectPath), nil
}
