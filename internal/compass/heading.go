// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package compass

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/wneessen/geotrack/internal/logger"
)

type heading struct {
	degrees float64
	radians float64
}

// HeadingState holds the last known device heading. It has a single writer, the Binding, and any
// number of readers. Reads never block.
type HeadingState struct {
	value atomic.Pointer[heading]
}

// Store overwrites the heading with the given value in degrees clockwise from north.
func (h *HeadingState) Store(degrees float64) {
	h.value.Store(&heading{degrees: degrees, radians: degrees * math.Pi / 180})
}

// Degrees returns the heading in degrees. ok is false while the heading is unknown.
func (h *HeadingState) Degrees() (float64, bool) {
	val := h.value.Load()
	if val == nil {
		return 0, false
	}
	return val.degrees, true
}

// Rotation returns the heading in radians, clockwise, as used by the map renderer.
func (h *HeadingState) Rotation() (float64, bool) {
	val := h.value.Load()
	if val == nil {
		return 0, false
	}
	return val.radians, true
}

// Binding writes heading events of an orientation provider into a HeadingState.
type Binding struct {
	logger   *logger.Logger
	state    *HeadingState
	onChange func()
}

// NewBinding returns a Binding writing to state. onChange, if not nil, is called after every
// stored heading.
func NewBinding(log *logger.Logger, state *HeadingState, onChange func()) *Binding {
	return &Binding{
		logger:   log,
		state:    state,
		onChange: onChange,
	}
}

// OnHeading handles a heading event. Values that are not finite are ignored, all others are
// normalized into [0,360).
func (b *Binding) OnHeading(degrees float64) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		b.logger.Debug("ignoring invalid heading", slog.Float64("heading", degrees))
		return
	}
	degrees = math.Mod(degrees, 360)
	if degrees < 0 {
		degrees += 360
	}
	b.state.Store(degrees)
	if b.onChange != nil {
		b.onChange()
	}
}
