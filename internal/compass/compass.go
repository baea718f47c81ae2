// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package compass negotiates access to the device heading and keeps the current heading available
// to the map renderer and the info readout.
package compass

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/logger"
)

// Capability is the result of probing a Platform for orientation support.
type Capability int

const (
	// CapabilityNone means the platform has no orientation sensor.
	CapabilityNone Capability = iota
	// CapabilityGranted means heading events are available without asking for permission.
	CapabilityGranted
	// CapabilityRequiresPermission means heading events need a permission request that has to be
	// triggered by a user gesture.
	CapabilityRequiresPermission
)

func (c Capability) String() string {
	switch c {
	case CapabilityGranted:
		return "granted"
	case CapabilityRequiresPermission:
		return "requires-permission"
	default:
		return "none"
	}
}

// State is the heading acquisition state of a Negotiator.
type State int

const (
	StateUnknown State = iota
	StateAwaitingPermission
	StateActive
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateAwaitingPermission:
		return "awaiting-permission"
	case StateActive:
		return "active"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Platform is an orientation provider.
type Platform interface {
	Name() string
	// Capability probes the platform for orientation support.
	Capability(ctx context.Context) (Capability, error)
	// RequestPermission asks for access to heading events. A denial is returned as an error.
	RequestPermission(ctx context.Context) error
	// Watch delivers heading events in degrees to handler until ctx is done or the provider fails.
	Watch(ctx context.Context, handler func(degrees float64)) error
}

// Negotiator runs the heading capability negotiation once per session and starts the Binding when
// heading events are available. It never blocks the caller.
type Negotiator struct {
	logger   *logger.Logger
	platform Platform
	binding  *Binding
	reporter fault.Reporter

	mu         sync.Mutex
	ctx        context.Context
	started    bool
	probed     bool
	gestured   bool
	capability Capability
	state      State
	done       chan struct{}
	doneOnce   sync.Once
}

// NewNegotiator returns a Negotiator for platform. A nil platform behaves like a platform without
// orientation support.
func NewNegotiator(log *logger.Logger, platform Platform, binding *Binding, reporter fault.Reporter) *Negotiator {
	return &Negotiator{
		logger:   log,
		platform: platform,
		binding:  binding,
		reporter: reporter,
		done:     make(chan struct{}),
	}
}

// Start probes the platform capability in the background. ctx bounds the lifetime of the heading
// subscription. Only the first call has an effect.
func (n *Negotiator) Start(ctx context.Context) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	n.ctx = ctx

	go n.probe()
}

// OnUserGesture continues a negotiation that requires permission. The permission request runs in
// the background. Only the first gesture has an effect.
func (n *Negotiator) OnUserGesture() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gestured {
		return
	}
	n.gestured = true
	if !n.probed {
		n.logger.Debug("user gesture received before heading capability was probed")
		return
	}
	n.requestLocked()
}

// State returns the current negotiation state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Done is closed once the negotiation reached Active or Unavailable.
func (n *Negotiator) Done() <-chan struct{} {
	return n.done
}

func (n *Negotiator) probe() {
	if n.platform == nil {
		n.unavailable(&fault.CapabilityUnavailableError{Capability: fault.CapabilityHeading,
			Err: errors.New("no orientation provider configured")})
		return
	}

	capability, err := n.platform.Capability(n.ctx)
	if err != nil {
		n.unavailable(&fault.CapabilityUnavailableError{Capability: fault.CapabilityHeading, Err: err})
		return
	}
	n.logger.Debug("heading capability probed", slog.String("provider", n.platform.Name()),
		slog.String("capability", capability.String()))

	n.mu.Lock()
	n.probed = true
	n.capability = capability
	switch capability {
	case CapabilityGranted:
		n.activateLocked()
	case CapabilityRequiresPermission:
		if n.gestured {
			n.requestLocked()
		}
	default:
		n.mu.Unlock()
		n.unavailable(&fault.CapabilityUnavailableError{Capability: fault.CapabilityHeading})
		return
	}
	n.mu.Unlock()
}

// requestLocked issues the permission request. n.mu must be held.
func (n *Negotiator) requestLocked() {
	if n.state != StateUnknown || n.capability != CapabilityRequiresPermission {
		return
	}
	n.state = StateAwaitingPermission
	n.logger.Info("requesting heading permission", slog.String("provider", n.platform.Name()))

	go func() {
		if err := n.platform.RequestPermission(n.ctx); err != nil {
			n.unavailable(&fault.PermissionDeniedError{Capability: fault.CapabilityHeading, Err: err})
			return
		}
		n.mu.Lock()
		n.activateLocked()
		n.mu.Unlock()
	}()
}

// activateLocked enters Active and starts the heading subscription. n.mu must be held.
func (n *Negotiator) activateLocked() {
	n.state = StateActive
	n.logger.Info("heading available", slog.String("provider", n.platform.Name()))
	n.doneOnce.Do(func() { close(n.done) })

	go func() {
		err := n.platform.Watch(n.ctx, n.binding.OnHeading)
		if err != nil && n.ctx.Err() == nil {
			n.logger.Warn("heading stream ended", slog.String("provider", n.platform.Name()),
				logger.Err(err))
		}
	}()
}

// unavailable enters Unavailable and reports err. There is no retry.
func (n *Negotiator) unavailable(err error) {
	n.mu.Lock()
	n.probed = true
	n.state = StateUnavailable
	n.mu.Unlock()

	n.reporter.Report(err)
	n.doneOnce.Do(func() { close(n.done) })
}
