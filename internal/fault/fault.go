// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package fault defines the error kinds of the live-position pipeline and the reporter they are
// routed through.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSample         = errors.New("invalid location sample")
	ErrCapabilityUnavailable = errors.New("capability unavailable")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrGeometryProjection    = errors.New("geometry projection failed")
	ErrObserverFault         = errors.New("observer fault")
)

// Capability names a platform feature that can fail as a whole for the session.
type Capability string

const (
	CapabilityLocation Capability = "location"
	CapabilityHeading  Capability = "heading"
)

// InvalidSampleError is returned by the normalizer for a malformed location payload. The sample
// is dropped.
type InvalidSampleError struct {
	Reason string
	Err    error
}

func (e *InvalidSampleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid location sample: %s: %s", e.Reason, e.Err)
	}
	return "invalid location sample: " + e.Reason
}

func (e *InvalidSampleError) Unwrap() error { return e.Err }

func (e *InvalidSampleError) Is(target error) bool { return target == ErrInvalidSample }

// CapabilityUnavailableError reports that the platform does not provide a capability at all.
// The capability stays disabled for the rest of the session.
type CapabilityUnavailableError struct {
	Capability Capability
	Err        error
}

func (e *CapabilityUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s capability unavailable: %s", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s capability unavailable", e.Capability)
}

func (e *CapabilityUnavailableError) Unwrap() error { return e.Err }

func (e *CapabilityUnavailableError) Is(target error) bool { return target == ErrCapabilityUnavailable }

// PermissionDeniedError reports that the user or the OS denied access to a capability. It is
// handled like CapabilityUnavailableError and never retried.
type PermissionDeniedError struct {
	Capability Capability
	Err        error
}

func (e *PermissionDeniedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s permission denied: %s", e.Capability, e.Err)
	}
	return fmt.Sprintf("%s permission denied", e.Capability)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// GeometryProjectionError reports a sample whose geometry could not be built or reprojected.
// Only the visual update for that sample is skipped.
type GeometryProjectionError struct {
	Longitude, Latitude, Radius float64
	Reason                      string
}

func (e *GeometryProjectionError) Error() string {
	return fmt.Sprintf("geometry projection failed for (%f, %f) r=%fm: %s", e.Longitude, e.Latitude,
		e.Radius, e.Reason)
}

func (e *GeometryProjectionError) Is(target error) bool { return target == ErrGeometryProjection }

// ObserverFaultError wraps an error or panic raised by a subscriber during dispatch.
type ObserverFaultError struct {
	Observer string
	Err      error
}

func (e *ObserverFaultError) Error() string {
	return fmt.Sprintf("observer %q failed: %s", e.Observer, e.Err)
}

func (e *ObserverFaultError) Unwrap() error { return e.Err }

func (e *ObserverFaultError) Is(target error) bool { return target == ErrObserverFault }

// IsTerminal reports whether err disables a capability for the session (capability or permission
// failures), as opposed to sample-level errors.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrCapabilityUnavailable) || errors.Is(err, ErrPermissionDenied)
}

// CapabilityOf returns the capability a terminal error refers to.
func CapabilityOf(err error) (Capability, bool) {
	var capErr *CapabilityUnavailableError
	if errors.As(err, &capErr) {
		return capErr.Capability, true
	}
	var permErr *PermissionDeniedError
	if errors.As(err, &permErr) {
		return permErr.Capability, true
	}
	return "", false
}
