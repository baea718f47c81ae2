// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geosample converts raw location events into the canonical GeoSample type.
package geosample

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/vartype"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Raw is a location event as delivered by a location provider. Every field is optional; providers
// only set what the platform reported.
type Raw struct {
	Latitude         vartype.VarFloat64
	Longitude        vartype.VarFloat64
	Accuracy         vartype.VarFloat64
	Altitude         vartype.VarFloat64
	AltitudeAccuracy vartype.VarFloat64
	Heading          vartype.VarFloat64
	Speed            vartype.VarFloat64
	Timestamp        time.Time
	Source           string
}

// GeoSample is one normalized location reading. It is a value type and must not be mutated after
// Normalize returned it.
type GeoSample struct {
	Longitude        float64            `json:"lon"`
	Latitude         float64            `json:"lat"`
	AccuracyMeters   float64            `json:"accuracy"`
	Altitude         vartype.VarFloat64 `json:"altitude"`
	AltitudeAccuracy vartype.VarFloat64 `json:"altitude_accuracy"`
	Heading          vartype.VarFloat64 `json:"heading"`
	Speed            vartype.VarFloat64 `json:"speed"`
	Timestamp        time.Time          `json:"timestamp"`
	Source           string             `json:"source,omitempty"`
}

// position carries the range invariants of a GeoSample.
type position struct {
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Accuracy  float64 `validate:"gte=0"`
}

// Normalize converts a raw location event into a GeoSample. It fails with a
// *fault.InvalidSampleError when the coordinates or the accuracy are missing, not finite or out of
// range. Optional fields that are missing or not finite stay unknown. Normalize has no side effects
// and does not read the clock.
func Normalize(raw Raw) (GeoSample, error) {
	lat, haveLat := raw.Latitude.Get()
	lon, haveLon := raw.Longitude.Get()
	if !haveLat && !haveLon {
		return GeoSample{}, &fault.InvalidSampleError{Reason: "no coordinates"}
	}
	if !haveLat || !haveLon {
		return GeoSample{}, &fault.InvalidSampleError{Reason: "incomplete coordinates"}
	}
	if !isFinite(lat) || !isFinite(lon) {
		return GeoSample{}, &fault.InvalidSampleError{Reason: "non-finite coordinates"}
	}
	acc, haveAcc := raw.Accuracy.Get()
	if !haveAcc || !isFinite(acc) {
		return GeoSample{}, &fault.InvalidSampleError{Reason: "no accuracy"}
	}

	pos := position{Latitude: lat, Longitude: lon, Accuracy: acc}
	if err := validate.Struct(pos); err != nil {
		return GeoSample{}, &fault.InvalidSampleError{Reason: rangeReason(err), Err: err}
	}

	sample := GeoSample{
		Longitude:        lon,
		Latitude:         lat,
		AccuracyMeters:   acc,
		Altitude:         finite(raw.Altitude),
		AltitudeAccuracy: nonNegative(raw.AltitudeAccuracy),
		Heading:          heading(raw.Heading),
		Speed:            nonNegative(raw.Speed),
		Timestamp:        raw.Timestamp,
		Source:           raw.Source,
	}
	return sample, nil
}

func rangeReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "validation failed"
	}
	field := verrs[0]
	return fmt.Sprintf("%s %v out of range", field.Field(), field.Value())
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finite(v vartype.VarFloat64) vartype.VarFloat64 {
	val, ok := v.Get()
	if !ok {
		return vartype.VarFloat64{}
	}
	return vartype.FiniteFloat64(val)
}

func nonNegative(v vartype.VarFloat64) vartype.VarFloat64 {
	val, ok := v.Get()
	if !ok || !isFinite(val) || val < 0 {
		return vartype.VarFloat64{}
	}
	return vartype.NewVariable(val)
}

// heading maps the value into [0, 360).
func heading(v vartype.VarFloat64) vartype.VarFloat64 {
	val, ok := v.Get()
	if !ok || !isFinite(val) {
		return vartype.VarFloat64{}
	}
	val = math.Mod(val, 360)
	if val < 0 {
		val += 360
	}
	return vartype.NewVariable(val)
}
