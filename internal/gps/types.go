package gps

import (
	"errors"
	"math"
	"time"

	"ride-detector/internal/geo"
)

// Errors a position source may surface. They are status-only: the engine
// never retries and never treats them as faults.
var (
	ErrSourceTimeout    = errors.New("position source timeout")
	ErrNoPositioning    = errors.New("positioning not supported")
	ErrPermissionDenied = errors.New("location permission denied")
)

// Fix is one raw location sample from the position source.
type Fix struct {
	Lat       float64  `json:"latitude"`
	Lon       float64  `json:"longitude"`
	Timestamp int64    `json:"timestampMs"` // ms since epoch
	Speed     *float64 `json:"speedMps,omitempty"`
	Heading   *float64 `json:"headingDeg,omitempty"` // degrees clockwise from north
}

// SpeedMps returns the reported speed, treating an absent value as stopped.
func (f Fix) SpeedMps() float64 {
	if f.Speed == nil || math.IsNaN(*f.Speed) {
		return 0
	}
	return *f.Speed
}

func (f Fix) SpeedKmh() float64 { return f.SpeedMps() * 3.6 }

func (f Fix) Time() time.Time { return time.UnixMilli(f.Timestamp) }

func (f Fix) Position() geo.LatLng { return geo.LatLng{Lat: f.Lat, Lng: f.Lon} }

// Valid reports whether the coordinates are finite and in range.
func (f Fix) Valid() bool {
	if math.IsNaN(f.Lat) || math.IsNaN(f.Lon) || math.IsInf(f.Lat, 0) || math.IsInf(f.Lon, 0) {
		return false
	}
	return f.Lat >= -90 && f.Lat <= 90 && f.Lon >= -180 && f.Lon <= 180
}

// WithSpeed is a convenience for building fixes with a known speed.
func WithSpeed(lat, lon float64, ts int64, speedMps float64) Fix {
	s := speedMps
	return Fix{Lat: lat, Lon: lon, Timestamp: ts, Speed: &s}
}

// Location is the {lat,lng} pair carried in reports.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Report is the upsert-style record sent to the persistence and broadcast
// collaborators. Keyed by SessionID, last write wins.
type Report struct {
	SessionID   string    `json:"id"`
	RouteID     string    `json:"routeId"`
	Location    Location  `json:"location"`
	SpeedMps    float64   `json:"speed"`
	Confidence  float64   `json:"confidence"`
	LastUpdated time.Time `json:"lastUpdated"` // RFC 3339 on the wire
}

// Peer is another session's last known position as seen through the feed.
type Peer struct {
	SessionID string
	Fix       Fix
}
