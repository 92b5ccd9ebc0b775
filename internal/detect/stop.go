// Package detect implements the stop-dwell detector and the multi-rider
// cluster corroborator. Both are pure functions of their inputs.
package detect

import (
	"math"
	"time"

	"ride-detector/internal/geo"
	"ride-detector/internal/gps"
	"ride-detector/internal/route"
)

// Dwell measures the contiguous stopped span ending at the most recent fix
// inside the lookback window ending at now. history must be ordered oldest
// first. The walk stops at the first fix faster than the stop threshold; a
// single fast fix breaks the chain.
func Dwell(history []gps.Fix, now time.Time, th Thresholds) (time.Duration, gps.Fix, bool) {
	nowMs := now.UnixMilli()
	lookback := th.StopLookback.Milliseconds()

	recent := make([]gps.Fix, 0, len(history))
	for _, p := range history {
		if nowMs-p.Timestamp <= lookback {
			recent = append(recent, p)
		}
	}
	if len(recent) == 0 {
		return 0, gps.Fix{}, false
	}

	latest := recent[len(recent)-1]
	var stoppedMs int64
	for i := len(recent) - 1; i >= 0; i-- {
		p := recent[i]
		if p.SpeedKmh() > th.StopSpeedKmh {
			break
		}
		stoppedMs = latest.Timestamp - p.Timestamp
	}
	return time.Duration(stoppedMs) * time.Millisecond, latest, true
}

// DetectStop returns the id of the stop the rider is dwelling at, if any.
// now is the caller's clock, passed explicitly so the result is replayable.
// Stops are tested in configured order and the first within radius wins.
func DetectStop(history []gps.Fix, now time.Time, rt *route.Route, th Thresholds) (string, bool) {
	if len(history) < 2 {
		return "", false
	}
	dwell, latest, ok := Dwell(history, now, th)
	if !ok || dwell < th.StopMinDwell {
		return "", false
	}
	if th.EnforceMaxDwell && th.StopMaxDwell > 0 && dwell > th.StopMaxDwell {
		return "", false
	}
	stop, ok := rt.StopWithin(latest.Position(), th.StopMatchRadius)
	if !ok {
		return "", false
	}
	return stop.ID, true
}

// ValidateCluster reports whether any two of the given fixes are within the
// cluster radius of each other and differ in speed by less than the speed
// delta. Absent speeds count as 0.
func ValidateCluster(points []gps.Fix, th Thresholds) bool {
	if len(points) < 2 {
		return false
	}
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			a, b := points[i], points[j]
			if !a.Valid() || !b.Valid() {
				continue
			}
			if distance(a, b) > th.ClusterRadius {
				continue
			}
			if math.Abs(a.SpeedMps()-b.SpeedMps()) < th.ClusterSpeedDelta {
				return true
			}
		}
	}
	return false
}

func distance(a, b gps.Fix) float64 { return geo.Distance(a.Position(), b.Position()) }
