// Package route holds the fixed route corridor and its ordered stops, and
// answers the two per-fix questions asked of it: is this fix on the route,
// and which stop comes next.
package route

import (
	"errors"
	"fmt"
	"math"

	"ride-detector/internal/geo"
)

var (
	ErrDegenerateRoute = errors.New("route polyline needs at least 2 vertices")
	ErrDuplicateStop   = errors.New("duplicate stop id")
)

// UnknownHalt is reported when the route cannot answer a next-stop query.
const UnknownHalt = "Unknown"

// Stop is a configured bus stop. Along is its projected distance from the
// route origin in metres.
type Stop struct {
	ID       string
	Name     string
	Location geo.LatLng
	Along    float64
}

// Route is static configuration: loaded once, never mutated. Stops are kept
// in configured order, which is assumed to be the direction of travel.
type Route struct {
	ID       string
	Name     string
	EndLabel string
	Line     *geo.Polyline
	Stops    []Stop
}

// StopSpec describes a stop before projection onto the route.
type StopSpec struct {
	ID       string
	Name     string
	Location [2]float64 // [lng, lat]
}

// New validates the polyline and stop list and precomputes each stop's
// along-route distance.
func New(id, name, endLabel string, polyline [][2]float64, stops []StopSpec) (*Route, error) {
	line := geo.NewPolyline(polyline)
	if !line.Valid() {
		return nil, fmt.Errorf("route %s: %w", id, ErrDegenerateRoute)
	}
	seen := make(map[string]struct{}, len(stops))
	r := &Route{ID: id, Name: name, EndLabel: endLabel, Line: line}
	for _, s := range stops {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("route %s: %w: %q", id, ErrDuplicateStop, s.ID)
		}
		seen[s.ID] = struct{}{}
		loc := geo.FromLngLat(s.Location)
		along, _ := line.Project(loc)
		r.Stops = append(r.Stops, Stop{ID: s.ID, Name: s.Name, Location: loc, Along: along})
	}
	return r, nil
}

func (r *Route) valid() bool { return r != nil && r.Line.Valid() }

// DistanceTo returns the distance in metres from p to the route corridor's
// centre line, or +Inf for a degenerate route.
func (r *Route) DistanceTo(p geo.LatLng) float64 {
	if !r.valid() {
		return math.Inf(1)
	}
	return r.Line.DistanceTo(p)
}

// IsOnRoute reports whether p lies within radius metres of the polyline.
func (r *Route) IsOnRoute(p geo.LatLng, radius float64) bool {
	if !r.valid() {
		return false
	}
	return r.Line.DistanceTo(p) <= radius
}

// StopWithin returns the first stop, in configured order, whose location is
// within radius metres of p. It is not necessarily the nearest one.
func (r *Route) StopWithin(p geo.LatLng, radius float64) (Stop, bool) {
	if r == nil {
		return Stop{}, false
	}
	for _, s := range r.Stops {
		if geo.Distance(p, s.Location) <= radius {
			return s, true
		}
	}
	return Stop{}, false
}

// NextHalt returns the name of the first stop, in configured order, lying
// more than buffer metres ahead of p along the route. Past the last stop it
// returns the end-of-route label.
func (r *Route) NextHalt(p geo.LatLng, buffer float64) string {
	if !r.valid() {
		return UnknownHalt
	}
	along, ok := r.Line.Project(p)
	if !ok {
		return UnknownHalt
	}
	for _, s := range r.Stops {
		if s.Along > along+buffer {
			return s.Name
		}
	}
	return r.EndLabel
}
