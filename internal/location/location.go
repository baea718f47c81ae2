// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package location defines the location provider contract and merges the streams of several
// providers into one.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
)

const (
	InitialBackoff = time.Second
	MaxBackoff     = 30 * time.Second
)

// Provider is a location source. Watch delivers raw location events until ctx is done or the
// provider failed terminally, then it closes the returned channel. Recoverable failures are
// delivered as an Update with Err set.
type Provider interface {
	Name() string
	Watch(ctx context.Context, opts WatchOptions) <-chan Update
}

// WatchOptions configures a location watch.
type WatchOptions struct {
	// HighAccuracy makes providers drop fixes that are known to be coarse, like a gpsd fix without
	// 3D mode.
	HighAccuracy bool
}

// Update is a single event on a location stream. Exactly one of Raw and Err is meaningful.
type Update struct {
	Raw geosample.Raw
	Err error
}

// ErrorCode classifies a PositionError.
type ErrorCode int

const (
	PermissionDenied ErrorCode = iota + 1
	PositionUnavailable
	Timeout
)

func (c ErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission denied"
	case PositionUnavailable:
		return "position unavailable"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// PositionError is the error a provider delivers on its stream.
type PositionError struct {
	Code     ErrorCode
	Provider string
	Err      error
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Code)
}

func (e *PositionError) Unwrap() error { return e.Err }

// Fault converts the position error into the pipeline error kind it stands for. terminal reports
// whether the provider has given up.
func (e *PositionError) Fault(terminal bool) error {
	switch {
	case e.Code == PermissionDenied:
		return &fault.PermissionDeniedError{Capability: fault.CapabilityLocation, Err: e}
	case e.Code == PositionUnavailable && terminal:
		return &fault.CapabilityUnavailableError{Capability: fault.CapabilityLocation, Err: e}
	}
	return e
}

// NewError returns an Update carrying a PositionError.
func NewError(provider string, code ErrorCode, err error) Update {
	return Update{Err: &PositionError{Code: code, Provider: provider, Err: err}}
}

// Merge watches all providers concurrently and forwards their updates on a single channel. The
// returned channel is closed once every provider closed its stream. A provider that panics while
// starting its watch counts as ended.
func Merge(ctx context.Context, log *logger.Logger, opts WatchOptions, providers ...Provider) <-chan Update {
	out := make(chan Update)
	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			forward(ctx, log, p, opts, out)
		}(p)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func forward(ctx context.Context, log *logger.Logger, p Provider, opts WatchOptions, out chan<- Update) {
	updates := safeWatch(ctx, p, opts)
	if updates == nil {
		log.Error("location provider failed to start", slog.String("provider", p.Name()))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				log.Debug("location provider ended", slog.String("provider", p.Name()))
				return
			}
			if update.Err == nil && update.Raw.Source == "" {
				update.Raw.Source = p.Name()
			}
			select {
			case out <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

// safeWatch invokes Watch on a Provider and recovers from potential panics.
func safeWatch(ctx context.Context, p Provider, opts WatchOptions) (ch <-chan Update) {
	defer func() { _ = recover() }()
	return p.Watch(ctx, opts)
}

// SleepOrDone waits for d and reports false if ctx ended first.
func SleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// NextBackoff doubles the backoff up to MaxBackoff.
func NextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > MaxBackoff || next <= 0 {
		return MaxBackoff
	}
	return next
}

// IsPermissionDenied reports whether err is a PositionError with the PermissionDenied code.
func IsPermissionDenied(err error) bool {
	var posErr *PositionError
	return errors.As(err, &posErr) && posErr.Code == PermissionDenied
}
