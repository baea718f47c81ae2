// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/geotrack/internal/geosample"
	"github.com/wneessen/geotrack/internal/location"
	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	// DefaultAccuracy is used when the file does not carry an accuracy radius.
	DefaultAccuracy = 5
	// DefaultPeriod is the interval at which the file is re-read.
	DefaultPeriod = time.Minute * 2

	name = "geolocation_file"
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// coordinate is one parsed "lat,lon[,accuracy]" line.
type coordinate struct {
	Lat, Lon, Acc float64
}

// Provider reads a fixed position from a file and emits it whenever the content changes.
type Provider struct {
	name     string
	path     string
	period   time.Duration
	locateFn func() (coordinate, error)
}

// New returns a Provider for the file at path.
func New(path string, period time.Duration) *Provider {
	if period <= 0 {
		period = DefaultPeriod
	}
	provider := &Provider{
		name:   name,
		path:   path,
		period: period,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the provider.
func (p *Provider) Name() string {
	return p.name
}

// Watch implements location.Provider. A missing or malformed file is reported as a recoverable
// PositionUnavailable error, an unreadable one ends the stream with PermissionDenied.
func (p *Provider) Watch(ctx context.Context, _ location.WatchOptions) <-chan location.Update {
	stream := location.NewStream()
	go func() {
		defer stream.Close()
		var last coordinate
		var lastErr string
		firstRun := true

		for {
			if !firstRun {
				if !location.SleepOrDone(ctx, p.period) {
					return
				}
			}
			firstRun = false

			coord, err := p.locateFn()
			if err != nil {
				if errors.Is(err, fs.ErrPermission) {
					stream.Send(ctx, location.NewError(p.name, location.PermissionDenied, err))
					return
				}
				// Repeated failures are only reported once
				if err.Error() == lastErr {
					continue
				}
				lastErr = err.Error()
				last = coordinate{}
				if !stream.Send(ctx, location.NewError(p.name, location.PositionUnavailable, err)) {
					return
				}
				continue
			}
			lastErr = ""

			if coord == last {
				continue
			}
			last = coord
			if !stream.Send(ctx, location.Update{Raw: p.raw(coord)}) {
				return
			}
		}
	}()
	return stream.C()
}

func (p *Provider) raw(coord coordinate) geosample.Raw {
	return geosample.Raw{
		Latitude:  vartype.NewVariable(coord.Lat),
		Longitude: vartype.NewVariable(coord.Lon),
		Accuracy:  vartype.NewVariable(coord.Acc),
		Timestamp: time.Now(),
		Source:    p.name,
	}
}

// readFile returns the first valid coordinate line of the file. Lines starting with # are ignored.
func (p *Provider) readFile() (coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if coord, ok := parseLine(line); ok {
			return coord, nil
		}
	}
	return coordinate{}, ErrNoCoordinates
}

func parseLine(line string) (coordinate, bool) {
	fields := strings.Split(line, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return coordinate{}, false
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return coordinate{}, false
		}
		values[i] = value
	}
	coord := coordinate{Lat: values[0], Lon: values[1], Acc: DefaultAccuracy}
	if len(values) == 3 {
		coord.Acc = values[2]
	}
	return coord, true
}
