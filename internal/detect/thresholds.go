package detect

import "time"

// Thresholds are the tunables shared by the matcher, the dwell detector, the
// cluster corroborator, the projector and the report gate.
type Thresholds struct {
	RouteMatchRadius float64 // metres from the polyline still counted as on-route

	StopSpeedKmh    float64       // at or below this a fix counts as stopped
	StopMinDwell    time.Duration // shortest dwell reported as a stop
	StopMaxDwell    time.Duration // see EnforceMaxDwell
	EnforceMaxDwell bool          // when set, dwells longer than StopMaxDwell are not stops
	StopLookback    time.Duration // history window scanned for a dwell
	StopMatchRadius float64       // metres from a stop's location

	ClusterRadius     float64 // metres between two corroborating riders
	ClusterSpeedDelta float64 // m/s, strict upper bound on speed difference

	ReportSpeedKmh float64 // moving threshold and report gate
	NextHaltBuffer float64 // metres a stop must lie ahead to be "next"
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		RouteMatchRadius:  20,
		StopSpeedKmh:      5,
		StopMinDwell:      30 * time.Second,
		StopMaxDwell:      60 * time.Second,
		StopLookback:      90 * time.Second,
		StopMatchRadius:   30,
		ClusterRadius:     10,
		ClusterSpeedDelta: 2,
		ReportSpeedKmh:    15,
		NextHaltBuffer:    50,
	}
}
