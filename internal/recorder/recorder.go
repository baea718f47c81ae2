// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package recorder implements the toggleable track recorder.
package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/geotrack/internal/geo"
	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/logger"
	"github.com/wneessen/geotrack/internal/vartype"
)

// Mode is the recording state of a Recorder.
type Mode int

const (
	Idle Mode = iota
	Armed
)

func (m Mode) String() string {
	if m == Armed {
		return "armed"
	}
	return "idle"
}

// Track is a recorded sequence of samples in arrival order.
type Track struct {
	Samples []geosample.GeoSample `json:"samples"`
	Summary Summary               `json:"summary"`
}

// Summary holds the aggregate values of a Track. The duration is encoded in seconds.
type Summary struct {
	Points    int                `json:"points"`
	DistanceM float64            `json:"distance_m"`
	Duration  time.Duration      `json:"-"`
	AvgSpeed  vartype.VarFloat64 `json:"avg_speed_mps"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	type summary Summary
	return json.Marshal(struct {
		summary
		DurationS float64 `json:"duration_s"`
	}{summary: summary(s), DurationS: s.Duration.Seconds()})
}

// Sink receives the captured track when recording is disarmed.
type Sink func(track Track)

// Recorder appends every dispatched sample to its track while armed. The track is exclusively owned
// by the Recorder; the sink receives a copy.
type Recorder struct {
	logger *logger.Logger
	sink   Sink

	mu      sync.Mutex
	mode    Mode
	samples []geosample.GeoSample
}

// New returns an idle Recorder that hands finished tracks to sink.
func New(log *logger.Logger, sink Sink) *Recorder {
	return &Recorder{
		logger: log,
		sink:   sink,
	}
}

// Toggle flips the recording mode and returns the new mode. Arming discards any stale track;
// disarming emits the captured track to the sink and clears it.
func (r *Recorder) Toggle() Mode {
	r.mu.Lock()
	if r.mode == Idle {
		r.mode = Armed
		r.samples = nil
		r.mu.Unlock()
		r.logger.Debug("track recording armed")
		return Armed
	}

	r.mode = Idle
	samples := r.samples
	r.samples = nil
	r.mu.Unlock()

	track := Track{Samples: samples, Summary: Summarize(samples)}
	if track.Samples == nil {
		track.Samples = []geosample.GeoSample{}
	}
	r.logger.Debug("track recording disarmed", slog.Int("points", track.Summary.Points),
		slog.Float64("distance_m", track.Summary.DistanceM))
	if r.sink != nil {
		r.sink(track)
	}
	return Idle
}

// OnSample appends the sample to the track while armed and is a no-op otherwise.
func (r *Recorder) OnSample(_ context.Context, sample geosample.GeoSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != Armed {
		return nil
	}
	r.samples = append(r.samples, sample)
	return nil
}

// Mode returns the current recording mode.
func (r *Recorder) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Len returns the number of samples captured so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Summarize computes the aggregate values of a sample sequence.
func Summarize(samples []geosample.GeoSample) Summary {
	summary := Summary{Points: len(samples)}
	if len(samples) < 2 {
		return summary
	}
	for i := 1; i < len(samples); i++ {
		prev, cur := samples[i-1], samples[i]
		summary.DistanceM += geo.Distance(prev.Longitude, prev.Latitude, cur.Longitude, cur.Latitude)
	}
	first, last := samples[0].Timestamp, samples[len(samples)-1].Timestamp
	if !first.IsZero() && last.After(first) {
		summary.Duration = last.Sub(first)
		summary.AvgSpeed = vartype.NewVariable(summary.DistanceM / summary.Duration.Seconds())
	}
	return summary
}
