// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package broadcast fans every normalized location sample out to an ordered list of observers.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
)

const instrumentationName = "github.com/wneessen/geotrack/internal/broadcast"

// Observer receives every dispatched sample.
type Observer interface {
	OnSample(ctx context.Context, sample geosample.GeoSample) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, sample geosample.GeoSample) error

func (f ObserverFunc) OnSample(ctx context.Context, sample geosample.GeoSample) error {
	return f(ctx, sample)
}

type subscription struct {
	name     string
	observer Observer
}

// Broadcaster invokes its observers synchronously and in subscription order, exactly once per
// dispatched sample. A failing observer never prevents the remaining observers from running.
type Broadcaster struct {
	logger   *logger.Logger
	reporter fault.Reporter

	mu   sync.RWMutex
	subs []subscription

	dispatched metric.Int64Counter
	faults     metric.Int64Counter
}

// New returns a Broadcaster that reports observer faults to reporter. Metrics are recorded with the
// global OpenTelemetry meter, which is a no-op unless an SDK has been installed.
func New(log *logger.Logger, reporter fault.Reporter) (*Broadcaster, error) {
	b := &Broadcaster{
		logger:   log,
		reporter: reporter,
	}

	m := otel.Meter(instrumentationName)
	var err error
	b.dispatched, err = m.Int64Counter("geotrack.dispatch.samples",
		metric.WithDescription("Total location samples dispatched"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch counter: %w", err)
	}
	b.faults, err = m.Int64Counter("geotrack.dispatch.faults",
		metric.WithDescription("Total observer faults during dispatch"))
	if err != nil {
		return nil, fmt.Errorf("failed to create fault counter: %w", err)
	}

	return b, nil
}

// Subscribe appends an observer. Observers cannot be removed; they live as long as the session.
func (b *Broadcaster) Subscribe(name string, observer Observer) {
	b.mu.Lock()
	b.subs = append(b.subs, subscription{name: name, observer: observer})
	b.mu.Unlock()
	b.logger.Debug("observer subscribed", slog.String("observer", name))
}

// Len returns the number of subscribed observers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dispatch hands the sample to every observer in subscription order. Errors and panics raised by an
// observer are reported as *fault.ObserverFaultError and dispatch continues with the next observer.
// Samples are never de-duplicated.
func (b *Broadcaster) Dispatch(ctx context.Context, sample geosample.GeoSample) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	b.dispatched.Add(ctx, 1)
	for _, sub := range subs {
		if err := b.safeNotify(ctx, sub, sample); err != nil {
			b.faults.Add(ctx, 1, metric.WithAttributes(attribute.String("observer", sub.name)))
			b.reporter.Report(&fault.ObserverFaultError{Observer: sub.name, Err: err})
		}
	}
}

// safeNotify invokes the observer and converts a panic into an error.
func (b *Broadcaster) safeNotify(ctx context.Context, sub subscription, sample geosample.GeoSample) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.observer.OnSample(ctx, sample)
}
