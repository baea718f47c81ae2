// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mapview models the map rendering surface the marker is drawn on.
package mapview

import (
	"errors"
	"math"
	"time"

	"github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

const (
	// SRIDGeographic is the projection location samples are expressed in.
	SRIDGeographic = 4326
	// SRIDDisplay is the web mercator projection the surface renders in.
	SRIDDisplay = 3857

	// WorldSize is the circumference of the web mercator world in meters.
	WorldSize = 2 * math.Pi * 6378137
	tileSize  = 256

	// MaxLatitude bounds the area of use of the web mercator projection.
	MaxLatitude = 85.05112878
)

// ErrOutOfDomain is returned when a coordinate cannot be represented in the display projection.
var ErrOutOfDomain = errors.New("coordinate outside of projection domain")

// Surface is the map rendering surface. All geometries handed to a Surface are in display
// projection coordinates.
type Surface interface {
	// ReplaceFeatures swaps the complete feature source in a single update.
	ReplaceFeatures(features ...Feature)
	AddFeatures(features ...Feature)
	ClearFeatures()
	// Extent returns the combined extent of the feature source. ok is false if it is empty.
	Extent() (extent Extent, ok bool)
	// FitView requests the viewport to animate to the extent. A new request supersedes a running
	// animation.
	FitView(extent Extent, opts FitOptions)
	// Project converts a geographic coordinate into the display projection.
	Project(lon, lat float64) (x, y float64, err error)
}

// FitOptions controls a FitView request.
type FitOptions struct {
	MaxZoom  float64
	Duration time.Duration
}

// Feature is a single geometry in the feature source.
type Feature struct {
	ID         string
	Geometry   geom.Geometry
	Extent     Extent
	Properties map[string]any
}

// Extent is an axis aligned bounding box in display projection coordinates.
type Extent struct {
	MinX, MinY, MaxX, MaxY float64
}

// ExtentOf returns the bounding box of the given coordinates.
func ExtentOf(coords ...[2]float64) Extent {
	if len(coords) == 0 {
		return Extent{}
	}
	ext := Extent{MinX: coords[0][0], MinY: coords[0][1], MaxX: coords[0][0], MaxY: coords[0][1]}
	for _, c := range coords[1:] {
		ext.MinX = math.Min(ext.MinX, c[0])
		ext.MinY = math.Min(ext.MinY, c[1])
		ext.MaxX = math.Max(ext.MaxX, c[0])
		ext.MaxY = math.Max(ext.MaxY, c[1])
	}
	return ext
}

// Union returns the smallest extent containing both e and other.
func (e Extent) Union(other Extent) Extent {
	return Extent{
		MinX: math.Min(e.MinX, other.MinX),
		MinY: math.Min(e.MinY, other.MinY),
		MaxX: math.Max(e.MaxX, other.MaxX),
		MaxY: math.Max(e.MaxY, other.MaxY),
	}
}

// Center returns the center point of the extent.
func (e Extent) Center() (float64, float64) {
	return (e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2
}

func (e Extent) Width() float64  { return e.MaxX - e.MinX }
func (e Extent) Height() float64 { return e.MaxY - e.MinY }

// Projector converts geographic coordinates into web mercator.
type Projector struct {
	transform func(a, b, c float64) (float64, float64, float64)
}

// NewProjector returns a Projector from EPSG:4326 to EPSG:3857.
func NewProjector() *Projector {
	return &Projector{transform: wgs84.EPSG().Transform(SRIDGeographic, SRIDDisplay)}
}

// Project converts lon/lat into display coordinates. It fails for coordinates outside the area of
// use of web mercator and for results that are not finite.
func (p *Projector) Project(lon, lat float64) (float64, float64, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || math.Abs(lat) > MaxLatitude {
		return 0, 0, ErrOutOfDomain
	}
	x, y, _ := p.transform(lon, lat, 0)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, ErrOutOfDomain
	}
	return x, y, nil
}

// FitZoom returns the zoom level at which the extent fits into a viewport of the given pixel size,
// capped at maxZoom.
func FitZoom(extent Extent, width, height int, maxZoom float64) float64 {
	if width <= 0 || height <= 0 {
		return maxZoom
	}
	resolution := math.Max(extent.Width()/float64(width), extent.Height()/float64(height))
	if resolution <= 0 || math.IsNaN(resolution) {
		return maxZoom
	}
	zoom := math.Log2(WorldSize / (tileSize * resolution))
	switch {
	case zoom > maxZoom:
		return maxZoom
	case zoom < 0:
		return 0
	}
	return zoom
}
