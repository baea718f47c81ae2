// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package gpspoll implements a minimal gpsd client that retrieves a single fix per connection.
package gpspoll

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/wneessen/geotrack/internal/vartype"
)

const (
	fallbackAccuracy3DFix = 10  // ~10 m typical consumer GPS in open sky
	fallbackAccuracy2DFix = 25  // worse than 3D, but still accurate enough
	fallbackAccuracyNoFix = 1e6 // effectively unusable
	watchTimeout          = time.Second * 2

	Mode2D = 2
	Mode3D = 3
)

// ErrNoTPV is returned when gpsd closed the stream without sending a TPV report.
var ErrNoTPV = errors.New("no TPV response received from GPSd")

// Client is a minimal GPSd client
type Client struct {
	Addr string
}

// Fix represents a single GPS fix from gpsd.
type Fix struct {
	Device string
	Lat    float64
	Lon    float64
	Alt    vartype.VarFloat64
	Acc    float64
	AltAcc vartype.VarFloat64
	Speed  vartype.VarFloat64
	Track  vartype.VarFloat64
	Time   time.Time
	Mode   int
}

// tpvResponse matches the subset of gpsd's TPV report we care about. Optional members are pointers
// since gpsd omits what the receiver did not report.
type tpvResponse struct {
	Class  string    `json:"class"`
	Device string    `json:"device"`
	Mode   int       `json:"mode"`
	Time   time.Time `json:"time"`
	Lat    float64   `json:"lat"`
	Lon    float64   `json:"lon"`
	Alt    *float64  `json:"alt"`
	Epx    float64   `json:"epx"`
	Epy    float64   `json:"epy"`
	Eph    float64   `json:"eph"`
	Epv    *float64  `json:"epv"`
	Speed  *float64  `json:"speed"`
	Track  *float64  `json:"track"`
}

// New constructs a new Client for the given host and port.
func New(host, port string) *Client {
	return &Client{
		Addr: net.JoinHostPort(host, port),
	}
}

// Poll connects to gpsd, enables a WATCH and returns the first TPV report. The connection is closed
// before returning.
func (c *Client) Poll(ctx context.Context) (Fix, error) {
	var zero Fix

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return zero, fmt.Errorf("gpspoll: dial gpsd: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	// Respect context deadline if present, otherwise we add a safety net so we don't hang
	// forever if ctx has no deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(watchTimeout))
	}

	if _, err = fmt.Fprint(conn, `?WATCH={"enable":true,"json":true}`+"\n"); err != nil {
		return zero, fmt.Errorf("gpspoll: write WATCH: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		var resp tpvResponse
		if err = json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}
		if resp.Class != "TPV" {
			continue
		}
		return resp.fix(), nil
	}

	if err = scanner.Err(); err != nil {
		return zero, fmt.Errorf("failed to scan GPSd response: %w", err)
	}
	return zero, ErrNoTPV
}

func (r tpvResponse) fix() Fix {
	fix := Fix{
		Device: r.Device,
		Lat:    r.Lat,
		Lon:    r.Lon,
		Acc:    HorizontalAccuracy(r.Mode, r.Eph, r.Epx, r.Epy),
		Time:   r.Time,
		Mode:   r.Mode,
	}
	if r.Alt != nil && r.Mode >= Mode3D {
		fix.Alt.Set(*r.Alt)
	}
	if r.Epv != nil && *r.Epv > 0 {
		fix.AltAcc.Set(*r.Epv)
	}
	if r.Speed != nil {
		fix.Speed.Set(*r.Speed)
	}
	if r.Track != nil {
		fix.Track.Set(*r.Track)
	}
	return fix
}

// Has2DFix reports whether the fix has at least a 2D fix.
func (f Fix) Has2DFix() bool {
	return f.Mode >= Mode2D
}

// Has3DFix reports whether the fix is a 3D fix.
func (f Fix) Has3DFix() bool {
	return f.Mode >= Mode3D
}

// HorizontalAccuracy derives the horizontal accuracy in meters from the error estimates of a TPV
// report, falling back to typical values for the fix mode.
func HorizontalAccuracy(mode int, eph, epx, epy float64) float64 {
	switch {
	case eph > 0:
		return eph
	case epx > 0 && epy > 0:
		// sqrt(epx² + epy²)
		return math.Hypot(epx, epy)
	}
	switch mode {
	case Mode3D:
		return fallbackAccuracy3DFix
	case Mode2D:
		return fallbackAccuracy2DFix
	default:
		return fallbackAccuracyNoFix
	}
}
