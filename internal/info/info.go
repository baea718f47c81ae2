// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package info renders the latest location sample as a status bar readout.
package info

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nathan-osman/go-sunrise"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/recorder"
	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	OutputClass          = "geotrack"
	OutputClassNoFix     = "geotrack-nofix"
	OutputClassRecording = "geotrack-recording"
)

// Output is a single line of the waybar custom module protocol.
type Output struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

// HeadingSource provides the current device heading in degrees.
type HeadingSource interface {
	Degrees() (float64, bool)
}

// RecorderState provides the recording state.
type RecorderState interface {
	Mode() recorder.Mode
	Len() int
}

// Readout keeps the latest sample and writes it as a JSON line on every sample and on Print.
type Readout struct {
	logger    *logger.Logger
	templates *Templates
	heading   HeadingSource
	recorder  RecorderState

	mu     sync.Mutex
	out    io.Writer
	sample *geosample.GeoSample
}

// New returns a Readout writing to out. heading and rec may be nil.
func New(log *logger.Logger, out io.Writer, templates *Templates, heading HeadingSource, rec RecorderState) *Readout {
	return &Readout{
		logger:    log,
		templates: templates,
		heading:   heading,
		recorder:  rec,
		out:       out,
	}
}

// OnSample stores the sample and prints the readout.
func (r *Readout) OnSample(_ context.Context, sample geosample.GeoSample) error {
	r.mu.Lock()
	r.sample = &sample
	r.mu.Unlock()
	return r.write()
}

// Print writes the readout for the latest sample. It is meant to be run periodically.
func (r *Readout) Print(context.Context) {
	if err := r.write(); err != nil {
		r.logger.Error("failed to print info readout", logger.Err(err))
	}
}

// Render returns the readout for the latest sample.
func (r *Readout) Render() (Output, error) {
	r.mu.Lock()
	sample := r.sample
	r.mu.Unlock()

	if sample == nil {
		nofix := r.templates.loc("nofix")
		return Output{Text: nofix, Tooltip: nofix, Class: OutputClassNoFix}, nil
	}

	tplCtx := r.context(*sample)
	textBuf := bytes.NewBuffer(nil)
	if err := r.templates.Text.Execute(textBuf, tplCtx); err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := r.templates.Tooltip.Execute(tooltipBuf, tplCtx); err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	output := Output{
		Text:    textBuf.String(),
		Tooltip: tooltipBuf.String(),
		Class:   OutputClass,
	}
	if tplCtx.Recording {
		output.Class = OutputClassRecording
	}
	return output, nil
}

func (r *Readout) write() error {
	output, err := r.Render()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err = json.NewEncoder(r.out).Encode(output); err != nil {
		return fmt.Errorf("failed to encode info readout: %w", err)
	}
	return nil
}

func (r *Readout) context(sample geosample.GeoSample) TemplateContext {
	tplCtx := TemplateContext{
		Longitude:        sample.Longitude,
		Latitude:         sample.Latitude,
		Accuracy:         sample.AccuracyMeters,
		Altitude:         sample.Altitude,
		AltitudeAccuracy: sample.AltitudeAccuracy,
		Heading:          sample.Heading,
		Speed:            sample.Speed,
		Timestamp:        sample.Timestamp,
		Source:           sample.Source,
	}
	if r.heading != nil {
		if degrees, ok := r.heading.Degrees(); ok {
			tplCtx.Compass = vartype.NewVariable(degrees)
		}
	}
	if r.recorder != nil {
		tplCtx.Recording = r.recorder.Mode() == recorder.Armed
		tplCtx.TrackPoints = r.recorder.Len()
	}

	day := sample.Timestamp
	if day.IsZero() {
		day = time.Now()
	}
	day = day.UTC()
	tplCtx.SunriseTime, tplCtx.SunsetTime = sunrise.SunriseSunset(sample.Latitude, sample.Longitude,
		day.Year(), day.Month(), day.Day())
	return tplCtx
}
