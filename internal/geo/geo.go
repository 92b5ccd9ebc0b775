// Package geo holds the great-circle primitives used by route matching,
// stop detection and projection. Distances are metres on a spherical Earth.
package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the sphere radius used for all distances.
const EarthRadiusMeters = 6371000.0

type LatLng struct {
	Lat float64
	Lng float64
}

// FromLngLat builds a LatLng from a GeoJSON-ordered [lng, lat] pair.
func FromLngLat(c [2]float64) LatLng { return LatLng{Lat: c[1], Lng: c[0]} }

func (p LatLng) s2LatLng() s2.LatLng { return s2.LatLngFromDegrees(p.Lat, p.Lng) }

func (p LatLng) s2Point() s2.Point { return s2.PointFromLatLng(p.s2LatLng()) }

func fromS2(pt s2.Point) LatLng {
	ll := s2.LatLngFromPoint(pt)
	return LatLng{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
}

// Distance returns the great-circle distance between a and b in metres.
func Distance(a, b LatLng) float64 {
	return a.s2LatLng().Distance(b.s2LatLng()).Radians() * EarthRadiusMeters
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b LatLng) float64 {
	y := math.Sin((b.Lng-a.Lng)*math.Pi/180.0) * math.Cos(b.Lat*math.Pi/180.0)
	x := math.Cos(a.Lat*math.Pi/180.0)*math.Sin(b.Lat*math.Pi/180.0) - math.Sin(a.Lat*math.Pi/180.0)*math.Cos(b.Lat*math.Pi/180.0)*math.Cos((b.Lng-a.Lng)*math.Pi/180.0)
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
