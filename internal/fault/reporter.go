// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package fault

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/wneessen/geotrack/internal/logger"
)

// Reporter receives every non-fatal error of the pipeline.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }

// Notifier surfaces a message to the user.
type Notifier interface {
	Notify(summary, body string) error
}

// Router logs every reported error and notifies the user once per capability about terminal
// capability and permission failures. Sample-level errors are only logged.
type Router struct {
	logger   *logger.Logger
	notifier Notifier

	mu       sync.Mutex
	notified map[Capability]bool
}

// NewRouter returns a Router. notifier may be nil, in which case terminal errors are only logged.
func NewRouter(log *logger.Logger, notifier Notifier) *Router {
	return &Router{
		logger:   log,
		notifier: notifier,
		notified: make(map[Capability]bool),
	}
}

// Report implements Reporter.
func (r *Router) Report(err error) {
	if err == nil {
		return
	}

	switch {
	case IsTerminal(err):
		r.logger.Error("capability disabled for this session", logger.Err(err))
		r.notifyOnce(err)
	case errors.Is(err, ErrObserverFault):
		r.logger.Warn("observer failed during dispatch", logger.Err(err))
	case errors.Is(err, ErrInvalidSample), errors.Is(err, ErrGeometryProjection):
		r.logger.Debug("dropping sample", logger.Err(err))
	default:
		r.logger.Warn("pipeline error", logger.Err(err))
	}
}

// Notified reports whether the user has been notified about the capability.
func (r *Router) Notified(capability Capability) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notified[capability]
}

func (r *Router) notifyOnce(err error) {
	capability, ok := CapabilityOf(err)
	if !ok {
		return
	}

	r.mu.Lock()
	if r.notified[capability] {
		r.mu.Unlock()
		return
	}
	r.notified[capability] = true
	r.mu.Unlock()

	if r.notifier == nil {
		return
	}
	if nerr := r.notifier.Notify("ERROR", err.Error()); nerr != nil {
		r.logger.Error("failed to notify user", logger.Err(nerr), slog.String("capability", string(capability)))
	}
}
