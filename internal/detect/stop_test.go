package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-detector/internal/gps"
	"ride-detector/internal/route"
)

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func ms(d time.Duration) int64 { return base.Add(d).UnixMilli() }

// dwellAt builds n fixes spaced step apart at the given location and speed,
// the last one at base+end.
func dwellAt(lat, lon float64, n int, step, end time.Duration, speed float64) []gps.Fix {
	out := make([]gps.Fix, 0, n)
	for i := 0; i < n; i++ {
		at := end - time.Duration(n-1-i)*step
		out = append(out, gps.WithSpeed(lat, lon, ms(at), speed))
	}
	return out
}

func TestDetectStopAtConfiguredStop(t *testing.T) {
	rt := route.Route138()
	th := DefaultThresholds()
	stop := rt.Stops[0]

	// 4 samples 10 s apart spanning 30 s at the stop, speed 0
	history := dwellAt(stop.Location.Lat, stop.Location.Lng, 4, 10*time.Second, 30*time.Second, 0)
	id, ok := DetectStop(history, base.Add(30*time.Second), rt, th)
	require.True(t, ok)
	assert.Equal(t, stop.ID, id)

	// same with everything faster than 5 km/h
	moving := dwellAt(stop.Location.Lat, stop.Location.Lng, 4, 10*time.Second, 30*time.Second, 10)
	_, ok = DetectStop(moving, base.Add(30*time.Second), rt, th)
	assert.False(t, ok)
}

func TestDetectStopCallerClock(t *testing.T) {
	rt := route.Route138()
	th := DefaultThresholds()
	stop := rt.Stops[1]
	history := dwellAt(stop.Location.Lat, stop.Location.Lng, 4, 10*time.Second, 30*time.Second, 0)

	// now a little later than the last fix: still inside the 90 s window
	id, ok := DetectStop(history, base.Add(40*time.Second), rt, th)
	require.True(t, ok)
	assert.Equal(t, stop.ID, id)

	// now far later: only the last fix is inside the window
	_, ok = DetectStop(history, base.Add(30*time.Second+85*time.Second), rt, th)
	assert.False(t, ok)

	// everything has aged out
	_, ok = DetectStop(history, base.Add(10*time.Minute), rt, th)
	assert.False(t, ok)
}

func TestDetectStopEdges(t *testing.T) {
	rt := route.Route138()
	th := DefaultThresholds()
	stop := rt.Stops[2]

	t.Run("fewer than two points", func(t *testing.T) {
		one := dwellAt(stop.Location.Lat, stop.Location.Lng, 1, 0, 60*time.Second, 0)
		_, ok := DetectStop(one, base.Add(60*time.Second), rt, th)
		assert.False(t, ok)
	})

	t.Run("dwell shorter than minimum", func(t *testing.T) {
		h := dwellAt(stop.Location.Lat, stop.Location.Lng, 3, 10*time.Second, 20*time.Second, 0)
		_, ok := DetectStop(h, base.Add(20*time.Second), rt, th)
		assert.False(t, ok)
	})

	t.Run("single fast fix breaks the chain", func(t *testing.T) {
		h := dwellAt(stop.Location.Lat, stop.Location.Lng, 7, 10*time.Second, 60*time.Second, 0)
		h[4].Speed = ptr(3.0) // 10.8 km/h, 20 s before the end
		_, ok := DetectStop(h, base.Add(60*time.Second), rt, th)
		assert.False(t, ok)
	})

	t.Run("absent speed counts as stopped", func(t *testing.T) {
		h := dwellAt(stop.Location.Lat, stop.Location.Lng, 4, 10*time.Second, 30*time.Second, 0)
		for i := range h {
			h[i].Speed = nil
		}
		id, ok := DetectStop(h, base.Add(30*time.Second), rt, th)
		require.True(t, ok)
		assert.Equal(t, stop.ID, id)
	})

	t.Run("dwell away from any stop", func(t *testing.T) {
		h := dwellAt(6.8950, 79.8950, 4, 10*time.Second, 30*time.Second, 0)
		_, ok := DetectStop(h, base.Add(30*time.Second), rt, th)
		assert.False(t, ok)
	})
}

func TestDetectStopMaxDwell(t *testing.T) {
	rt := route.Route138()
	stop := rt.Stops[3]
	h := dwellAt(stop.Location.Lat, stop.Location.Lng, 9, 10*time.Second, 80*time.Second, 0)

	th := DefaultThresholds()
	_, ok := DetectStop(h, base.Add(80*time.Second), rt, th)
	assert.True(t, ok, "long dwells count as stops unless the cap is enforced")

	th.EnforceMaxDwell = true
	_, ok = DetectStop(h, base.Add(80*time.Second), rt, th)
	assert.False(t, ok)
}

func TestDwell(t *testing.T) {
	th := DefaultThresholds()
	h := []gps.Fix{
		gps.WithSpeed(0, 0, ms(0), 8),
		gps.WithSpeed(0, 0, ms(10*time.Second), 1),
		gps.WithSpeed(0, 0, ms(20*time.Second), 0),
		gps.WithSpeed(0, 0, ms(35*time.Second), 0.5),
	}
	d, latest, ok := Dwell(h, base.Add(35*time.Second), th)
	require.True(t, ok)
	assert.Equal(t, 25*time.Second, d)
	assert.Equal(t, ms(35*time.Second), latest.Timestamp)
}

func ptr(v float64) *float64 { return &v }
