// Package sim generates simulated rides along the configured route and runs
// them through the detector, one session per simulated rider.
package sim

import (
	"context"
	"log"
	"math/rand/v2"
	"time"

	"ride-detector/internal/geo"
	"ride-detector/internal/gps"
	"ride-detector/internal/route"
)

const (
	DefaultCruiseMps = 10.0 // 36 km/h
	DefaultDwell     = 45 * time.Second
	DefaultJitterDeg = 0.00005 // roughly 5 m at the equator
)

type RideOptions struct {
	CruiseMps       float64
	Dwell           time.Duration // spent at each intermediate stop
	JitterDeg       float64       // position noise while dwelling; negative disables
	Offset          time.Duration // simulated time already elapsed at start
	PublishInterval time.Duration
	SpeedMultiplier float64
	Loop            bool
	Seed            uint64
}

// GhostRide walks the route at cruise speed and dwells at every stop that
// lies strictly between the route's ends. It implements gps.Source.
type GhostRide struct {
	rt    *route.Route
	opts  RideOptions
	times []time.Duration // keyframe offsets from ride start
	dists []float64       // along-route metres at each keyframe
	rng   *rand.Rand
}

func NewGhostRide(rt *route.Route, opts RideOptions) *GhostRide {
	if opts.CruiseMps <= 0 {
		opts.CruiseMps = DefaultCruiseMps
	}
	if opts.Dwell <= 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.JitterDeg == 0 {
		opts.JitterDeg = DefaultJitterDeg
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = time.Second
	}
	if opts.SpeedMultiplier <= 0 {
		opts.SpeedMultiplier = 1
	}
	g := &GhostRide{rt: rt, opts: opts, rng: rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))}
	g.times, g.dists = buildSchedule(rt, opts.CruiseMps, opts.Dwell)
	return g
}

// buildSchedule constructs a time->distance schedule: travel between stops
// at cruise speed, then a dwell keyframe pair at each intermediate stop.
func buildSchedule(rt *route.Route, cruise float64, dwell time.Duration) ([]time.Duration, []float64) {
	if rt == nil || !rt.Line.Valid() {
		return nil, nil
	}
	total := rt.Line.Length()
	times := []time.Duration{0}
	dists := []float64{0}
	at := time.Duration(0)
	cur := 0.0
	travel := func(to float64) {
		at += time.Duration((to - cur) / cruise * float64(time.Second))
		cur = to
		times = append(times, at)
		dists = append(dists, cur)
	}
	for _, s := range rt.Stops {
		if s.Along-cur < 1 || total-s.Along < 1 {
			continue
		}
		travel(s.Along)
		at += dwell
		times = append(times, at)
		dists = append(dists, cur)
	}
	if total > cur {
		travel(total)
	}
	return times, dists
}

// Duration is the simulated length of one pass over the route.
func (g *GhostRide) Duration() time.Duration {
	if len(g.times) == 0 {
		return 0
	}
	return g.times[len(g.times)-1]
}

// Sample is the rider's simulated state at one instant.
type Sample struct {
	Pos      geo.LatLng
	SpeedMps float64
	Heading  float64 // bearing of the current segment, meaningful while moving
	Moving   bool
	Done     bool // the end of the route has been reached
}

// Fix stamps s with ts (ms since epoch). Heading is only set while moving.
func (s Sample) Fix(ts int64) gps.Fix {
	f := gps.WithSpeed(s.Pos.Lat, s.Pos.Lng, ts, s.SpeedMps)
	if s.Moving {
		h := s.Heading
		f.Heading = &h
	}
	return f
}

// At returns the rider's state after elapsed simulated time.
func (g *GhostRide) At(elapsed time.Duration) Sample {
	if len(g.times) == 0 {
		return Sample{Done: true}
	}
	d, moving := interpolateDistAtTime(g.times, g.dists, elapsed)
	pos, bearing := g.rt.Line.Interpolate(d)
	done := elapsed >= g.Duration()
	if !moving || done {
		if g.opts.JitterDeg > 0 && !done {
			pos.Lat += (g.rng.Float64()*2 - 1) * g.opts.JitterDeg
			pos.Lng += (g.rng.Float64()*2 - 1) * g.opts.JitterDeg
		}
		return Sample{Pos: pos, Heading: bearing, Done: done}
	}
	speed := g.opts.CruiseMps + (g.rng.Float64()*2-1)*0.1*g.opts.CruiseMps
	return Sample{Pos: pos, SpeedMps: speed, Heading: bearing, Moving: true}
}

func interpolateDistAtTime(times []time.Duration, dists []float64, at time.Duration) (float64, bool) {
	n := len(times)
	if n == 0 {
		return 0, false
	}
	if at <= times[0] {
		return dists[0], n > 1 && dists[1] > dists[0]
	}
	if at >= times[n-1] {
		return dists[n-1], false
	}
	// find segment i s.t. times[i] <= at < times[i+1]
	i := 0
	for i+1 < n && at >= times[i+1] {
		i++
	}
	t0, t1 := times[i], times[i+1]
	d0, d1 := dists[i], dists[i+1]
	dt := t1 - t0
	if dt <= 0 {
		return d0, false
	}
	frac := float64(at-t0) / float64(dt)
	return d0 + (d1-d0)*frac, d1 > d0
}

// Run emits one fix per publish interval until ctx is done or, when not
// looping, the ride ends. Fixes carry simulated timestamps so dwell timing
// stays correct under a speed multiplier.
func (g *GhostRide) Run(ctx context.Context, handle func(gps.Fix), _ func(error)) error {
	if g.Duration() == 0 {
		log.Printf("ghost ride on route %s has nothing to simulate", g.rt.ID)
		return nil
	}
	tick := time.NewTicker(g.opts.PublishInterval)
	defer tick.Stop()

	wallStart := time.Now()
	simStart := wallStart
	offset := g.opts.Offset
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			elapsed := offset + time.Duration(float64(now.Sub(wallStart))*g.opts.SpeedMultiplier)
			smp := g.At(elapsed)
			handle(smp.Fix(simStart.Add(elapsed).UnixMilli()))
			if !smp.Done {
				continue
			}
			if !g.opts.Loop {
				log.Printf("ghost ride finished route %s", g.rt.ID)
				return nil
			}
			// next pass starts where this one's clock left off
			simStart = simStart.Add(elapsed)
			wallStart = now
			offset = 0
		}
	}
}
