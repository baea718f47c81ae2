// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package geo provides spherical earth helpers on WGS84 longitude/latitude pairs.
package geo

import (
	"math"
)

const EarthRadius = 6371008.8 // mean radius in meters

// Distance returns the great-circle distance in meters between two points using the Haversine
// formula.
func Distance(lon1, lat1, lon2, lat2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Destination returns the point reached when travelling distance meters from (lon, lat) along the
// given initial bearing (radians, clockwise from north).
func Destination(lon, lat, distance, bearing float64) (float64, float64) {
	phi1 := toRadians(lat)
	lambda1 := toRadians(lon)
	delta := distance / EarthRadius

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(bearing)
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(bearing) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	return normalizeLon(toDegrees(lambda2)), toDegrees(phi2)
}

// Circle returns a closed ring of n+1 lon/lat pairs approximating a circle of the given radius on
// the sphere. The first and last coordinate are identical.
func Circle(lon, lat, radius float64, n int) [][2]float64 {
	if n < 3 {
		n = 3
	}
	ring := make([][2]float64, 0, n+1)
	for i := 0; i < n; i++ {
		x, y := Destination(lon, lat, radius, 2*math.Pi*float64(i)/float64(n))
		ring = append(ring, [2]float64{x, y})
	}
	return append(ring, ring[0])
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func normalizeLon(lon float64) float64 {
	lon = math.Mod(lon+540, 360) - 180
	if lon == -180 {
		return 180
	}
	return lon
}
