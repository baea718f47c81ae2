// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package marker

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/wneessen/geotrack/internal/fault"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/mapview"
)

type fitRequest struct {
	extent mapview.Extent
	opts   mapview.FitOptions
}

// recordingSurface wraps a Canvas and records the calls made to it.
type recordingSurface struct {
	*mapview.Canvas
	replaces int
	fits     []fitRequest
}

func (r *recordingSurface) ReplaceFeatures(features ...mapview.Feature) {
	r.replaces++
	r.Canvas.ReplaceFeatures(features...)
}

func (r *recordingSurface) FitView(extent mapview.Extent, opts mapview.FitOptions) {
	r.fits = append(r.fits, fitRequest{extent: extent, opts: opts})
	r.Canvas.FitView(extent, opts)
}

type errorCollector struct {
	errs []error
}

func (c *errorCollector) Report(err error) { c.errs = append(c.errs, err) }

func testSynchronizer(t *testing.T) (*Synchronizer, *recordingSurface, *errorCollector) {
	t.Helper()
	log := logger.NewLogger(slog.LevelDebug, io.Discard)
	canvas := mapview.NewCanvas(log, io.Discard, nil, mapview.Options{})
	t.Cleanup(canvas.Close)
	surface := &recordingSurface{Canvas: canvas}
	reporter := &errorCollector{}
	return New(log, surface, reporter, Options{}), surface, reporter
}

func TestSynchronizer_OnSample(t *testing.T) {
	t.Run("sample replaces both features and requests a fit", func(t *testing.T) {
		sync, surface, reporter := testSynchronizer(t)
		sample := geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 5}
		if err := sync.OnSample(t.Context(), sample); err != nil {
			t.Fatalf("failed to handle sample: %s", err)
		}
		if len(reporter.errs) != 0 {
			t.Fatalf("expected no reported errors, got %v", reporter.errs)
		}
		if surface.replaces != 1 {
			t.Errorf("expected 1 replace, got %d", surface.replaces)
		}

		features := surface.Features()
		if len(features) != 2 {
			t.Fatalf("expected 2 features, got %d", len(features))
		}
		if features[0].ID != FeatureAccuracy || features[0].Geometry.Type() != geom.TypePolygon {
			t.Errorf("expected accuracy polygon first, got %s/%s", features[0].ID, features[0].Geometry.Type())
		}
		if features[1].ID != FeaturePosition || features[1].Geometry.Type() != geom.TypePoint {
			t.Errorf("expected position point second, got %s/%s", features[1].ID, features[1].Geometry.Type())
		}

		if len(surface.fits) != 1 {
			t.Fatalf("expected 1 fit request, got %d", len(surface.fits))
		}
		fit := surface.fits[0]
		if fit.opts.MaxZoom != 18 || fit.opts.Duration != time.Millisecond*500 {
			t.Errorf("unexpected fit options: %+v", fit.opts)
		}
		cx, cy, err := mapview.NewProjector().Project(10, 20)
		if err != nil {
			t.Fatalf("failed to project center: %s", err)
		}
		x, y := fit.extent.Center()
		if math.Abs(x-cx) > 0.01 || math.Abs(y-cy) > 0.01 {
			t.Errorf("expected fit centered on (%f, %f), got (%f, %f)", cx, cy, x, y)
		}
		// 5m radius at 20° latitude is stretched by 1/cos(lat) in web mercator
		if w := fit.extent.Width(); w < 10 || w > 11.5 {
			t.Errorf("unexpected fit extent width: %f", w)
		}
	})
	t.Run("consecutive samples replace the previous features", func(t *testing.T) {
		sync, surface, _ := testSynchronizer(t)
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 5})
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 5})
		if len(surface.Features()) != 2 {
			t.Errorf("expected 2 features, got %d", len(surface.Features()))
		}
		if surface.replaces != 2 || len(surface.fits) != 2 {
			t.Errorf("expected 2 updates, got %d replaces and %d fits", surface.replaces, len(surface.fits))
		}
	})
	t.Run("zero accuracy skips the update", func(t *testing.T) {
		sync, surface, reporter := testSynchronizer(t)
		if err := sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20}); err != nil {
			t.Fatalf("expected nil error, got %s", err)
		}
		if surface.replaces != 0 || len(surface.fits) != 0 {
			t.Error("expected visual update to be skipped")
		}
		if len(reporter.errs) != 1 || !errors.Is(reporter.errs[0], fault.ErrGeometryProjection) {
			t.Fatalf("expected a geometry projection error, got %v", reporter.errs)
		}
		var projErr *fault.GeometryProjectionError
		if !errors.As(reporter.errs[0], &projErr) || projErr.Radius != 0 {
			t.Errorf("unexpected error: %v", reporter.errs[0])
		}
	})
	t.Run("coordinates outside the display projection skip the update", func(t *testing.T) {
		sync, surface, reporter := testSynchronizer(t)
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 89.5, AccuracyMeters: 5})
		if surface.replaces != 0 {
			t.Error("expected visual update to be skipped")
		}
		if len(reporter.errs) != 1 || !errors.Is(reporter.errs[0], fault.ErrGeometryProjection) {
			t.Errorf("expected a geometry projection error, got %v", reporter.errs)
		}
	})
	t.Run("degenerate accuracy circle skips the update", func(t *testing.T) {
		sync, surface, reporter := testSynchronizer(t)
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 1e-30})
		if surface.replaces != 0 || len(surface.fits) != 0 {
			t.Error("expected visual update to be skipped")
		}
		var projErr *fault.GeometryProjectionError
		if len(reporter.errs) != 1 || !errors.As(reporter.errs[0], &projErr) {
			t.Fatalf("expected a geometry projection error, got %v", reporter.errs)
		}
		if projErr.Radius != 1e-30 {
			t.Errorf("expected radius 1e-30, got %g", projErr.Radius)
		}
	})
	t.Run("accuracy circle across the antimeridian stays around the position", func(t *testing.T) {
		tests := []struct {
			name string
			lon  float64
		}{
			{"east of the antimeridian", 179.9999},
			{"west of the antimeridian", -179.9999},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				sync, surface, reporter := testSynchronizer(t)
				sample := geosample.GeoSample{Longitude: tc.lon, Latitude: 0, AccuracyMeters: 50}
				if err := sync.OnSample(t.Context(), sample); err != nil {
					t.Fatalf("failed to handle sample: %s", err)
				}
				if len(reporter.errs) != 0 {
					t.Fatalf("expected no reported errors, got %v", reporter.errs)
				}
				if len(surface.fits) != 1 {
					t.Fatalf("expected 1 fit request, got %d", len(surface.fits))
				}
				extent := surface.fits[0].extent
				if w := extent.Width(); w < 99 || w > 101 {
					t.Errorf("expected fit extent width of about 100m, got %f", w)
				}
				cx, _, err := mapview.NewProjector().Project(tc.lon, 0)
				if err != nil {
					t.Fatalf("failed to project center: %s", err)
				}
				if x, _ := extent.Center(); math.Abs(x-cx) > 0.01 {
					t.Errorf("expected fit centered on %f, got %f", cx, x)
				}
			})
		}
	})
	t.Run("skipped update keeps the previous marker", func(t *testing.T) {
		sync, surface, _ := testSynchronizer(t)
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 5})
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 11, Latitude: 21})
		if len(surface.Features()) != 2 {
			t.Errorf("expected previous features to be kept, got %d", len(surface.Features()))
		}
	})
	t.Run("options fall back to defaults", func(t *testing.T) {
		sync, _, _ := testSynchronizer(t)
		if sync.opts.Vertices != DefaultVertices || sync.opts.MaxZoom != DefaultMaxZoom ||
			sync.opts.FitDuration != DefaultFitDuration {
			t.Errorf("unexpected options: %+v", sync.opts)
		}
	})
}

func TestSynchronizer_Locate(t *testing.T) {
	t.Run("locate without a marker does nothing", func(t *testing.T) {
		sync, surface, _ := testSynchronizer(t)
		if sync.Locate() {
			t.Error("expected locate to fail without a marker")
		}
		if len(surface.fits) != 0 {
			t.Error("expected no fit request")
		}
	})
	t.Run("locate fits the view to the marker", func(t *testing.T) {
		sync, surface, _ := testSynchronizer(t)
		_ = sync.OnSample(t.Context(), geosample.GeoSample{Longitude: 10, Latitude: 20, AccuracyMeters: 5})
		if !sync.Locate() {
			t.Fatal("expected locate to succeed")
		}
		if len(surface.fits) != 2 {
			t.Fatalf("expected 2 fit requests, got %d", len(surface.fits))
		}
		if surface.fits[0].extent != surface.fits[1].extent {
			t.Errorf("expected locate to fit the marker extent, got %+v", surface.fits[1].extent)
		}
	})
}
