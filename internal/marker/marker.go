// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package marker keeps the position marker and the map viewport in sync with the location stream.
package marker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/geo"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/mapview"
)

const (
	DefaultVertices    = 64
	DefaultMaxZoom     = 18
	DefaultFitDuration = time.Millisecond * 500

	FeatureAccuracy = "accuracy"
	FeaturePosition = "position"
)

// Options configures a Synchronizer. Zero values fall back to the defaults.
type Options struct {
	Vertices    int
	MaxZoom     float64
	FitDuration time.Duration
}

// Synchronizer draws the accuracy circle and the position point of every sample and fits the view
// to them. It is the only writer of the surface's feature source.
type Synchronizer struct {
	logger   *logger.Logger
	surface  mapview.Surface
	reporter fault.Reporter
	opts     Options
}

// New returns a Synchronizer drawing on surface.
func New(log *logger.Logger, surface mapview.Surface, reporter fault.Reporter, opts Options) *Synchronizer {
	if opts.Vertices < 3 {
		opts.Vertices = DefaultVertices
	}
	if opts.MaxZoom <= 0 {
		opts.MaxZoom = DefaultMaxZoom
	}
	if opts.FitDuration <= 0 {
		opts.FitDuration = DefaultFitDuration
	}
	return &Synchronizer{
		logger:   log,
		surface:  surface,
		reporter: reporter,
		opts:     opts,
	}
}

// OnSample replaces the marker geometries and requests a view fit. If the geometry cannot be built,
// a *fault.GeometryProjectionError is reported and the visual update for this sample is skipped.
// OnSample never fails the dispatch.
func (s *Synchronizer) OnSample(_ context.Context, sample geosample.GeoSample) error {
	features, extent, err := s.features(sample)
	if err != nil {
		s.reporter.Report(err)
		return nil
	}

	s.surface.ReplaceFeatures(features...)
	s.surface.FitView(extent, mapview.FitOptions{MaxZoom: s.opts.MaxZoom, Duration: s.opts.FitDuration})
	s.logger.Debug("marker updated", slog.Float64("lon", sample.Longitude),
		slog.Float64("lat", sample.Latitude), slog.Float64("accuracy", sample.AccuracyMeters))
	return nil
}

// Locate fits the view to the current marker. It returns false if nothing has been drawn yet.
func (s *Synchronizer) Locate() bool {
	extent, ok := s.surface.Extent()
	if !ok {
		s.logger.Debug("no position to locate yet")
		return false
	}
	s.surface.FitView(extent, mapview.FitOptions{MaxZoom: s.opts.MaxZoom, Duration: s.opts.FitDuration})
	return true
}

func (s *Synchronizer) features(sample geosample.GeoSample) ([]mapview.Feature, mapview.Extent, error) {
	projErr := func(reason string) error {
		return &fault.GeometryProjectionError{
			Longitude: sample.Longitude,
			Latitude:  sample.Latitude,
			Radius:    sample.AccuracyMeters,
			Reason:    reason,
		}
	}

	radius := sample.AccuracyMeters
	if radius == 0 {
		return nil, mapview.Extent{}, projErr("accuracy radius is zero")
	}
	if math.IsNaN(radius) || math.IsInf(radius, 0) || radius < 0 {
		return nil, mapview.Extent{}, projErr("accuracy radius is not a finite positive number")
	}

	cx, cy, err := s.surface.Project(sample.Longitude, sample.Latitude)
	if err != nil {
		return nil, mapview.Extent{}, projErr(fmt.Sprintf("center: %s", err))
	}

	ring := geo.Circle(sample.Longitude, sample.Latitude, radius, s.opts.Vertices)
	projected := make([][2]float64, 0, len(ring))
	flat := make([]float64, 0, len(ring)*2)
	for _, coord := range ring {
		x, y, err := s.surface.Project(coord[0], coord[1])
		if err != nil {
			return nil, mapview.Extent{}, projErr(fmt.Sprintf("accuracy circle: %s", err))
		}
		// Vertices across the antimeridian stay on the center's side of the world.
		switch d := coord[0] - sample.Longitude; {
		case d > 180:
			x -= mapview.WorldSize
		case d < -180:
			x += mapview.WorldSize
		}
		projected = append(projected, [2]float64{x, y})
		flat = append(flat, x, y)
	}

	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return nil, mapview.Extent{}, projErr(fmt.Sprintf("accuracy circle: %s", err))
	}
	circle, err := geom.NewPolygon([]geom.LineString{line})
	if err != nil {
		return nil, mapview.Extent{}, projErr(fmt.Sprintf("accuracy circle: %s", err))
	}
	point, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: cx, Y: cy}})
	if err != nil {
		return nil, mapview.Extent{}, projErr(fmt.Sprintf("position: %s", err))
	}

	circleExtent := mapview.ExtentOf(projected...)
	pointExtent := mapview.ExtentOf([2]float64{cx, cy})

	accuracy := mapview.Feature{
		ID:       FeatureAccuracy,
		Geometry: circle.AsGeometry(),
		Extent:   circleExtent,
		Properties: map[string]any{
			"accuracy": radius,
		},
	}
	position := mapview.Feature{
		ID:       FeaturePosition,
		Geometry: point.AsGeometry(),
		Extent:   pointExtent,
		Properties: map[string]any{
			mapview.RotateProperty: true,
			"lon":                  sample.Longitude,
			"lat":                  sample.Latitude,
			"heading":              sample.Heading,
			"speed":                sample.Speed,
			"altitude":             sample.Altitude,
			"source":               sample.Source,
		},
	}
	if !sample.Timestamp.IsZero() {
		position.Properties["timestamp"] = sample.Timestamp
	}

	return []mapview.Feature{accuracy, position}, circleExtent.Union(pointExtent), nil
}
