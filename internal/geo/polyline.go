package geo

import (
	"math"

	"github.com/golang/geo/s2"
)

// Polyline is an immutable chain of great-circle segments with a cumulative
// distance table. A polyline with fewer than two vertices is degenerate:
// DistanceTo reports +Inf and Project reports ok=false.
type Polyline struct {
	vertices []LatLng
	cum      []float64
	line     *s2.Polyline
}

// NewPolyline builds a polyline from GeoJSON-ordered [lng, lat] pairs.
func NewPolyline(coords [][2]float64) *Polyline {
	vs := make([]LatLng, len(coords))
	for i, c := range coords {
		vs[i] = FromLngLat(c)
	}
	return NewPolylineFromLatLngs(vs)
}

func NewPolylineFromLatLngs(vs []LatLng) *Polyline {
	p := &Polyline{vertices: append([]LatLng(nil), vs...)}
	p.cum = cumDistances(p.vertices)
	if len(vs) >= 2 {
		lls := make([]s2.LatLng, len(vs))
		for i, v := range vs {
			lls[i] = v.s2LatLng()
		}
		p.line = s2.PolylineFromLatLngs(lls)
	}
	return p
}

func cumDistances(vs []LatLng) []float64 {
	n := len(vs)
	if n == 0 {
		return nil
	}
	cum := make([]float64, n)
	sum := 0.0
	for i := 1; i < n; i++ {
		sum += Distance(vs[i-1], vs[i])
		cum[i] = sum
	}
	return cum
}

func (p *Polyline) Valid() bool { return p != nil && p.line != nil }

// Vertices returns a copy of the polyline vertices.
func (p *Polyline) Vertices() []LatLng {
	if p == nil {
		return nil
	}
	return append([]LatLng(nil), p.vertices...)
}

// Length is the total along-line length in metres.
func (p *Polyline) Length() float64 {
	if p == nil || len(p.cum) == 0 {
		return 0
	}
	return p.cum[len(p.cum)-1]
}

// closest returns the nearest point on the chain and the index of the
// vertex that ends the segment it lies on.
func (p *Polyline) closest(pt LatLng) (s2.Point, int) {
	proj, next := p.line.Project(pt.s2Point())
	n := len(p.vertices)
	if next < 1 {
		next = 1
	}
	if next > n-1 {
		next = n - 1
	}
	return proj, next
}

// DistanceTo returns the minimum great-circle distance in metres from pt to
// any segment of the chain.
func (p *Polyline) DistanceTo(pt LatLng) float64 {
	if !p.Valid() {
		return math.Inf(1)
	}
	proj, _ := p.closest(pt)
	return pt.s2Point().Distance(proj).Radians() * EarthRadiusMeters
}

// Project returns the along-line distance in metres, from the first vertex,
// of the point on the chain closest to pt.
func (p *Polyline) Project(pt LatLng) (along float64, ok bool) {
	if !p.Valid() {
		return 0, false
	}
	proj, next := p.closest(pt)
	start := p.cum[next-1]
	along = start + Distance(p.vertices[next-1], fromS2(proj))
	if along > p.cum[next] {
		along = p.cum[next]
	}
	return along, true
}

// Interpolate returns the position at the given along-line distance and the
// bearing of the segment it falls on. Distances are clamped to the line.
func (p *Polyline) Interpolate(dist float64) (LatLng, float64) {
	n := len(p.vertices)
	if n == 0 {
		return LatLng{}, 0
	}
	if n == 1 {
		return p.vertices[0], 0
	}
	total := p.Length()
	if total == 0 || dist <= 0 {
		return p.vertices[0], Bearing(p.vertices[0], p.vertices[1])
	}
	if dist >= total {
		return p.vertices[n-1], Bearing(p.vertices[n-2], p.vertices[n-1])
	}
	i := 1
	for i < n && p.cum[i] < dist {
		i++
	}
	if i >= n {
		i = n - 1
	}
	d0, d1 := p.cum[i-1], p.cum[i]
	p0, p1 := p.vertices[i-1], p.vertices[i]
	if d1 == d0 {
		return p0, Bearing(p0, p1)
	}
	frac := (dist - d0) / (d1 - d0)
	return LatLng{
		Lat: p0.Lat + (p1.Lat-p0.Lat)*frac,
		Lng: p0.Lng + (p1.Lng-p0.Lng)*frac,
	}, Bearing(p0, p1)
}
