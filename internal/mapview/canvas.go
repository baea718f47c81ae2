// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapview

import (
	"encoding/json"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/peterstace/simplefeatures/geom"

	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/vartype"
)

// RotationSource provides the current marker rotation in radians, clockwise from north.
type RotationSource interface {
	Rotation() (float64, bool)
}

// Options configures the viewport of a Canvas.
type Options struct {
	Width   int
	Height  int
	Padding int
}

// View is the viewport state of a Canvas.
type View struct {
	Center [2]float64 `json:"center"`
	Zoom   float64    `json:"zoom"`
}

// Canvas is an in-memory Surface. Every change of the feature source or the viewport is drawn as a
// GeoJSON FeatureCollection frame, one per line, to the output writer. The marker rotation is read
// from the RotationSource at draw time.
type Canvas struct {
	logger   *logger.Logger
	out      io.Writer
	rotation RotationSource
	opts     Options
	proj     *Projector

	mu        sync.Mutex
	features  []Feature
	view      View
	target    View
	animating bool
	duration  time.Duration
	fitTimer  *time.Timer
	fitGen    uint64
	frames    uint64
}

type frame struct {
	Type     string         `json:"type"`
	Frame    uint64         `json:"frame"`
	Features []frameFeature `json:"features"`
	View     frameView      `json:"view"`
}

type frameFeature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Geometry   geom.Geometry  `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type frameView struct {
	View
	SRID       int                `json:"srid"`
	Rotation   vartype.VarFloat64 `json:"rotation"`
	Animating  bool               `json:"animating"`
	Target     *View              `json:"target,omitempty"`
	DurationMS int64              `json:"duration_ms,omitempty"`
}

// RotateProperty marks a feature that is drawn rotated by the current marker rotation.
const RotateProperty = "rotate"

// NewCanvas returns a Canvas drawing its frames to out. rotation may be nil.
func NewCanvas(log *logger.Logger, out io.Writer, rotation RotationSource, opts Options) *Canvas {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	return &Canvas{
		logger:   log,
		out:      out,
		rotation: rotation,
		opts:     opts,
		proj:     NewProjector(),
	}
}

// ReplaceFeatures implements Surface. Only a single frame is drawn for the replacement.
func (c *Canvas) ReplaceFeatures(features ...Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = append(make([]Feature, 0, len(features)), features...)
	c.drawLocked()
}

// AddFeatures implements Surface.
func (c *Canvas) AddFeatures(features ...Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = append(c.features, features...)
	c.drawLocked()
}

// ClearFeatures implements Surface.
func (c *Canvas) ClearFeatures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.features = nil
	c.drawLocked()
}

// Features returns a copy of the current feature source.
func (c *Canvas) Features() []Feature {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Feature(nil), c.features...)
}

// Extent implements Surface.
func (c *Canvas) Extent() (Extent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.features) == 0 {
		return Extent{}, false
	}
	extent := c.features[0].Extent
	for _, f := range c.features[1:] {
		extent = extent.Union(f.Extent)
	}
	return extent, true
}

// Project implements Surface.
func (c *Canvas) Project(lon, lat float64) (float64, float64, error) {
	return c.proj.Project(lon, lat)
}

// FitView implements Surface. The view reaches the fitted state once opts.Duration has passed,
// unless a newer request superseded it.
func (c *Canvas) FitView(extent Extent, opts FitOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()

	width := c.opts.Width - 2*c.opts.Padding
	height := c.opts.Height - 2*c.opts.Padding
	x, y := extent.Center()
	target := View{Center: [2]float64{x, y}, Zoom: FitZoom(extent, width, height, opts.MaxZoom)}

	c.fitGen++
	if c.fitTimer != nil && c.fitTimer.Stop() {
		c.logger.Debug("view fit superseded", slog.Uint64("fit", c.fitGen-1))
	}
	c.fitTimer = nil

	if opts.Duration <= 0 {
		c.view = target
		c.animating = false
		c.drawLocked()
		return
	}

	c.target = target
	c.animating = true
	c.duration = opts.Duration
	c.drawLocked()

	gen := c.fitGen
	c.fitTimer = time.AfterFunc(opts.Duration, func() { c.completeFit(gen) })
}

// View returns the current viewport and whether a fit animation is running.
func (c *Canvas) View() (View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view, c.animating
}

// Frames returns the number of frames drawn so far.
func (c *Canvas) Frames() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Redraw draws a frame of the current state. It is used to refresh the marker rotation.
func (c *Canvas) Redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drawLocked()
}

// Close stops a running fit animation.
func (c *Canvas) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fitTimer != nil {
		c.fitTimer.Stop()
		c.fitTimer = nil
	}
	c.fitGen++
	c.animating = false
}

func (c *Canvas) completeFit(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.fitGen {
		return
	}
	c.view = c.target
	c.animating = false
	c.fitTimer = nil
	c.drawLocked()
}

// drawLocked writes the current state as a frame. c.mu must be held.
func (c *Canvas) drawLocked() {
	c.frames++
	var rotation vartype.VarFloat64
	if c.rotation != nil {
		if rad, ok := c.rotation.Rotation(); ok {
			rotation.Set(rad)
		}
	}

	out := frame{
		Type:     "FeatureCollection",
		Frame:    c.frames,
		Features: make([]frameFeature, 0, len(c.features)),
		View: frameView{
			View:      c.view,
			SRID:      SRIDDisplay,
			Rotation:  rotation,
			Animating: c.animating,
		},
	}
	if c.animating {
		target := c.target
		out.View.Target = &target
		out.View.DurationMS = c.duration.Milliseconds()
	}
	for _, f := range c.features {
		props := make(map[string]any, len(f.Properties)+1)
		maps.Copy(props, f.Properties)
		if rotate, _ := props[RotateProperty].(bool); rotate {
			delete(props, RotateProperty)
			props["rotation"] = rotation
		}
		out.Features = append(out.Features, frameFeature{
			Type:       "Feature",
			ID:         f.ID,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}

	if c.out == nil {
		return
	}
	if err := json.NewEncoder(c.out).Encode(out); err != nil {
		c.logger.Error("failed to draw map frame", logger.Err(err), slog.Uint64("frame", c.frames))
	}
}
