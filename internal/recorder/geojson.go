// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package recorder

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/wneessen/geotrack/internal/geosample"
)

var ErrEmptyTrack = errors.New("track has no samples")

// Geometry returns the track as a geographic LineString. A track whose samples all share one
// position is returned as a Point. An empty track returns ErrEmptyTrack.
func (t Track) Geometry() (geom.Geometry, error) {
	if len(t.Samples) == 0 {
		return geom.Geometry{}, ErrEmptyTrack
	}
	flat := make([]float64, 0, 2*len(t.Samples))
	for _, sample := range t.Samples {
		flat = append(flat, sample.Longitude, sample.Latitude)
	}
	if stationary(t.Samples) {
		first := t.Samples[0]
		point, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: first.Longitude, Y: first.Latitude}})
		if err != nil {
			return geom.Geometry{}, fmt.Errorf("failed to create track point: %w", err)
		}
		return point.AsGeometry(), nil
	}
	line, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Geometry{}, fmt.Errorf("failed to create track line: %w", err)
	}
	return line.AsGeometry(), nil
}

// GeoJSON returns the track as a GeoJSON Feature with the summary as its properties. The geometry
// of an empty track is null.
func (t Track) GeoJSON() ([]byte, error) {
	feature := struct {
		Type       string         `json:"type"`
		Geometry   *geom.Geometry `json:"geometry"`
		Properties Summary        `json:"properties"`
	}{Type: "Feature", Properties: t.Summary}

	geometry, err := t.Geometry()
	switch {
	case errors.Is(err, ErrEmptyTrack):
	case err != nil:
		return nil, err
	default:
		feature.Geometry = &geometry
	}

	data, err := json.Marshal(feature)
	if err != nil {
		return nil, fmt.Errorf("failed to encode track as GeoJSON: %w", err)
	}
	return data, nil
}

func stationary(samples []geosample.GeoSample) bool {
	for _, sample := range samples[1:] {
		if sample.Longitude != samples[0].Longitude || sample.Latitude != samples[0].Latitude {
			return false
		}
	}
	return true
}
