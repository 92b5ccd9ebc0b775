package session

import (
	"fmt"
	"time"

	"ride-detector/internal/gps"
)

// State is the per-session ride state.
type State int

const (
	Idle          State = iota // off the route corridor, or no fix yet
	Candidate                  // on the route but not yet moving like a bus
	ConfirmedRide              // stopped at a stop, moving fast, or sticky after either
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Candidate:
		return "candidate"
	case ConfirmedRide:
		return "confirmed_ride"
	}
	return "unknown"
}

// Status strings published to the presentation layer.
const (
	StatusWaiting       = "waiting-for-fix"
	StatusOffRoute      = "off-route"
	StatusStoppedPrefix = "stopped-at-"
	StatusMoving        = "moving-on-route"
	StatusSlow          = "moving-on-route (slow/traffic)"
	StatusCandidate     = "on-route-candidate"
	StatusInvalidFix    = "invalid-fix"
	StatusTimeout       = "gps-timeout"
	StatusDenied        = "gps-permission-denied"
	StatusUnsupported   = "gps-unsupported"
	StatusSourceError   = "gps-error"
)

// SearchingHalt is shown until the first fix arrives.
const SearchingHalt = "Searching..."

// Base confidence for each transition. Cluster agreement adds ClusterBoost.
const (
	StopConfidence   = 0.8
	MovingConfidence = 0.5
	ClusterBoost     = 0.2
	ReportConfidence = 0.4 // a non-ride sample still reports above this
)

// input is what the transition table looks at for one fix.
type input struct {
	onRoute bool
	stopID  string // empty when no dwell was detected
	fast    bool   // speed above the moving threshold
	wasRide bool   // ride flag before this fix
}

type outcome struct {
	state      State
	status     string
	ride       bool
	confidence float64
}

// transition is the per-fix transition table. Leaving the corridor always
// demotes; a slow on-route fix never demotes a confirmed ride.
func transition(in input) outcome {
	switch {
	case !in.onRoute:
		return outcome{state: Idle, status: StatusOffRoute}
	case in.stopID != "":
		return outcome{state: ConfirmedRide, status: StatusStoppedPrefix + in.stopID, ride: true, confidence: StopConfidence}
	case in.fast:
		return outcome{state: ConfirmedRide, status: StatusMoving, ride: true, confidence: MovingConfidence}
	case in.wasRide:
		return outcome{state: ConfirmedRide, status: StatusSlow, ride: true}
	default:
		return outcome{state: Candidate, status: StatusCandidate}
	}
}

// Update is republished to the presentation layer on every processed fix.
type Update struct {
	SessionID    string
	State        State
	Status       string
	RideFlag     bool
	Confidence   float64
	Location     gps.Fix
	HasLocation  bool
	SpeedKmh     int
	NextHalt     string
	Corroborated bool
	Reported     bool
}

// Summary renders u for logs, with the fix time shown in loc.
func (u Update) Summary(loc *time.Location) string {
	at := "-"
	if u.HasLocation {
		if loc == nil {
			loc = time.Local
		}
		at = u.Location.Time().In(loc).Format("15:04:05")
	}
	return fmt.Sprintf("%s at=%s state=%s ride=%t speed=%dkm/h next=%q confidence=%.1f",
		u.Status, at, u.State, u.RideFlag, u.SpeedKmh, u.NextHalt, u.Confidence)
}
