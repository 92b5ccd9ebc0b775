package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-detector/internal/geo"
)

const (
	matchRadius = 20.0
	haltBuffer  = 50.0
)

func TestRoute138(t *testing.T) {
	r := Route138()
	require.Len(t, r.Stops, 5)
	prev := -1.0
	for _, s := range r.Stops {
		assert.Greater(t, s.Along, prev, "stop %s should be further along than the previous one", s.ID)
		prev = s.Along
	}
	assert.InDelta(t, 0, r.Stops[0].Along, 0.01)
	assert.InDelta(t, r.Line.Length(), r.Stops[4].Along, 0.5)
}

func TestIsOnRoute(t *testing.T) {
	r := Route138()
	start := geo.LatLng{Lat: 6.9271, Lng: 79.8612}

	tests := []struct {
		name string
		pt   geo.LatLng
		want bool
	}{
		{"exactly on first vertex", start, true},
		{"about 11 m off", geo.LatLng{Lat: start.Lat + 0.0001, Lng: start.Lng}, true},
		{"about 1 km off", geo.LatLng{Lat: start.Lat + 0.01, Lng: start.Lng}, false},
		{"mid segment", geo.LatLng{Lat: 6.8950, Lng: 79.8950}, true},
		{"about 30 m off", geo.LatLng{Lat: start.Lat + 0.00027, Lng: start.Lng}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsOnRoute(tt.pt, matchRadius); got != tt.want {
				t.Errorf("IsOnRoute(%v) = %v, want %v (distance %.1fm)", tt.pt, got, tt.want, r.DistanceTo(tt.pt))
			}
		})
	}
}

func TestIsOnRouteWithinRadiusProperty(t *testing.T) {
	r := Route138()
	// walk the polyline and offset perpendicular-ish by small amounts
	for i := 0; i <= 50; i++ {
		p, _ := r.Line.Interpolate(r.Line.Length() * float64(i) / 50)
		for _, off := range []float64{0, 0.00005, 0.0001} {
			q := geo.LatLng{Lat: p.Lat + off, Lng: p.Lng}
			d := r.DistanceTo(q)
			assert.Equal(t, d <= matchRadius, r.IsOnRoute(q, matchRadius), "point %v at %.2fm", q, d)
		}
	}
}

func TestNextHalt(t *testing.T) {
	r := Route138()
	tests := []struct {
		name string
		pt   geo.LatLng
		want string
	}{
		{"at route start", geo.LatLng{Lat: 6.9271, Lng: 79.8612}, "Town Hall"},
		{"just before Town Hall", geo.LatLng{Lat: 6.9205, Lng: 79.8695}, "Town Hall"},
		{"20 m before Nugegoda", geo.LatLng{Lat: 6.90013, Lng: 79.88987}, "Maharagama"},
		{"at Maharagama", geo.LatLng{Lat: 6.8800, Lng: 79.9100}, "Homagama"},
		{"at last stop", geo.LatLng{Lat: 6.8500, Lng: 79.9400}, "Homagama (End)"},
		{"beyond last stop", geo.LatLng{Lat: 6.8400, Lng: 79.9500}, "Homagama (End)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.NextHalt(tt.pt, haltBuffer))
		})
	}
}

func TestStopWithinFirstMatchWins(t *testing.T) {
	r, err := New("x", "overlap", "End", [][2]float64{{79.8600, 6.9200}, {79.8700, 6.9200}}, []StopSpec{
		{ID: "b", Name: "B", Location: [2]float64{79.86020, 6.9200}},
		{ID: "a", Name: "A", Location: [2]float64{79.86000, 6.9200}},
	})
	require.NoError(t, err)

	// the point sits on A but B is listed first and is within 30 m too
	s, ok := r.StopWithin(geo.LatLng{Lat: 6.9200, Lng: 79.86000}, 30)
	require.True(t, ok)
	assert.Equal(t, "b", s.ID)

	_, ok = r.StopWithin(geo.LatLng{Lat: 6.9300, Lng: 79.8600}, 30)
	assert.False(t, ok)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New("bad", "", "", [][2]float64{{79.86, 6.92}}, nil)
	assert.True(t, errors.Is(err, ErrDegenerateRoute))

	_, err = New("dup", "", "", route138Polyline, []StopSpec{{ID: "s"}, {ID: "s"}})
	assert.True(t, errors.Is(err, ErrDuplicateStop))
}

func TestDegenerateRouteDegrades(t *testing.T) {
	var nilRoute *Route
	zero := &Route{Line: geo.NewPolyline(nil)}
	p := geo.LatLng{Lat: 6.9271, Lng: 79.8612}
	for _, r := range []*Route{nilRoute, zero} {
		assert.False(t, r.IsOnRoute(p, 1e9))
		assert.Equal(t, UnknownHalt, r.NextHalt(p, haltBuffer))
		_, ok := r.StopWithin(p, 30)
		assert.False(t, ok)
	}
}
