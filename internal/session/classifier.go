// Package session turns a stream of fixes for one rider into ride
// decisions. A Classifier owns its position history exclusively; fixes are
// processed one at a time to completion.
package session

import (
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"ride-detector/internal/detect"
	"ride-detector/internal/gps"
	mmetrics "ride-detector/internal/metrics"
	"ride-detector/internal/route"
)

const defaultReportTimeout = 10 * time.Second

type Options struct {
	SessionID     string // generated when empty
	Route         *route.Route
	Thresholds    detect.Thresholds
	Reporter      Reporter // nil disables reporting
	HistoryCap    int
	ReportTimeout time.Duration
	// Now supplies the detector's clock. The newest fix timestamp is used
	// when it is nil or behind, which keeps replays deterministic.
	Now     func() time.Time
	Metrics *mmetrics.Collector
}

type Classifier struct {
	id            string
	rt            *route.Route
	th            detect.Thresholds
	reporter      Reporter
	reportTimeout time.Duration
	clock         func() time.Time
	metrics       *mmetrics.Collector

	mu         sync.Mutex
	history    *gps.History
	current    gps.Fix
	hasCurrent bool
	now        time.Time
	rideFlag   bool
	last       Update
	closed     bool

	peers atomic.Pointer[[]gps.Peer]

	ctx     context.Context
	cancel  context.CancelFunc
	reports sync.WaitGroup

	pollCancel context.CancelFunc
	pollWG     sync.WaitGroup
}

func NewClassifier(opts Options) *Classifier {
	id := opts.SessionID
	if id == "" {
		id = NewSessionID()
	}
	rt := opts.Route
	if rt == nil {
		rt = route.Route138()
	}
	th := opts.Thresholds
	if th == (detect.Thresholds{}) {
		th = detect.DefaultThresholds()
	}
	timeout := opts.ReportTimeout
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Classifier{
		id:            id,
		rt:            rt,
		th:            th,
		reporter:      opts.Reporter,
		reportTimeout: timeout,
		clock:         opts.Now,
		metrics:       opts.Metrics,
		history:       gps.NewHistory(opts.HistoryCap),
		ctx:           ctx,
		cancel:        cancel,
	}
	c.last = Update{SessionID: id, State: Idle, Status: StatusWaiting, NextHalt: SearchingHalt}
	return c
}

func (c *Classifier) ID() string { return c.id }

// Last returns the most recently published update.
func (c *Classifier) Last() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// History returns a copy of the rolling position history.
func (c *Classifier) History() []gps.Fix {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.Points()
}

// Process appends f to the history, classifies the newest fix in history and,
// when the report gate opens, hands a report to the reporter without waiting
// for delivery.
func (c *Classifier) Process(f gps.Fix) Update {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if !f.Valid() {
		if c.metrics != nil {
			c.metrics.FixesRejected.Inc()
		}
		u := c.last
		u.Status = StatusInvalidFix
		u.Reported = false
		c.last = u
		return u
	}

	// A fix older than the history head only fills in history; the newest
	// fix stays the current position and is never re-reported.
	c.history.Add(f)
	latest, _ := c.history.Latest()
	stale := f.Timestamp < latest.Timestamp
	c.current = latest
	c.hasCurrent = true
	c.now = latest.Time()
	if c.clock != nil {
		if now := c.clock(); now.After(c.now) {
			c.now = now
		}
	}

	u := c.classify()
	if !stale && c.shouldReport(u) {
		c.send(c.buildReport(u))
		u.Reported = true
	}
	c.last = u

	if c.metrics != nil {
		c.metrics.FixesProcessed.Inc()
		c.metrics.Classifications.WithLabelValues(u.State.String()).Inc()
		if u.Corroborated {
			c.metrics.ClusterAgrees.Inc()
		}
		c.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	}
	return u
}

// Reclassify re-runs classification of the last processed fix against the
// unchanged history and clock. It never reports.
func (c *Classifier) Reclassify() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasCurrent {
		return c.last
	}
	u := c.classify()
	c.last = u
	return u
}

// SourceError surfaces a position source problem as status only. Ride state
// and history are left untouched.
func (c *Classifier) SourceError(err error) Update {
	status := StatusSourceError
	kind := "other"
	switch {
	case errors.Is(err, gps.ErrSourceTimeout):
		status, kind = StatusTimeout, "timeout"
	case errors.Is(err, gps.ErrPermissionDenied):
		status, kind = StatusDenied, "permission"
	case errors.Is(err, gps.ErrNoPositioning):
		status, kind = StatusUnsupported, "unsupported"
	}
	log.Printf("[%s] position source: %v", c.id, err)
	if c.metrics != nil {
		c.metrics.SourceErrors.WithLabelValues(kind).Inc()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	u := c.last
	u.Status = status
	u.Reported = false
	c.last = u
	return u
}

// classify runs matcher, detector, corroborator and projector over the
// current fix. Callers hold c.mu.
func (c *Classifier) classify() Update {
	f := c.current
	pos := f.Position()
	onRoute := c.rt.IsOnRoute(pos, c.th.RouteMatchRadius)

	in := input{onRoute: onRoute, fast: f.SpeedKmh() > c.th.ReportSpeedKmh, wasRide: c.rideFlag}
	if onRoute {
		if id, ok := detect.DetectStop(c.history.Points(), c.now, c.rt, c.th); ok {
			in.stopID = id
		}
	}
	out := transition(in)
	c.rideFlag = out.ride

	corroborated := onRoute && c.corroborated(f)
	confidence := out.confidence
	if corroborated {
		confidence = math.Min(1, confidence+ClusterBoost)
	}

	return Update{
		SessionID:    c.id,
		State:        out.state,
		Status:       out.status,
		RideFlag:     out.ride,
		Confidence:   confidence,
		Location:     f,
		HasLocation:  true,
		SpeedKmh:     int(math.Round(f.SpeedKmh())),
		NextHalt:     c.rt.NextHalt(pos, c.th.NextHaltBuffer),
		Corroborated: corroborated,
	}
}

// shouldReport is the report gate: only fast samples that belong to a
// confirmed ride, or that carry enough confidence on their own, are sent.
func (c *Classifier) shouldReport(u Update) bool {
	if u.Location.SpeedKmh() <= c.th.ReportSpeedKmh {
		return false
	}
	return u.RideFlag || u.Confidence > ReportConfidence
}

func (c *Classifier) buildReport(u Update) gps.Report {
	return gps.Report{
		SessionID:   c.id,
		RouteID:     c.rt.ID,
		Location:    gps.Location{Lat: u.Location.Lat, Lng: u.Location.Lon},
		SpeedMps:    u.Location.SpeedMps(),
		Confidence:  u.Confidence,
		LastUpdated: time.Now().UTC(),
	}
}

// send delivers r in the background. Failures are logged and dropped; they
// never affect classification.
func (c *Classifier) send(r gps.Report) {
	if c.reporter == nil || c.closed {
		return
	}
	c.reports.Add(1)
	go func() {
		defer c.reports.Done()
		ctx, cancel := context.WithTimeout(c.ctx, c.reportTimeout)
		defer cancel()
		if err := c.reporter.Report(ctx, r); err != nil {
			log.Printf("[%s] report failed: %v", c.id, err)
			if c.metrics != nil {
				c.metrics.ReportErrors.Inc()
			}
			return
		}
		if c.metrics != nil {
			c.metrics.ReportsSent.Inc()
		}
	}()
}

// Close stops peer polling, waits for in-flight reports and discards the
// rolling history.
func (c *Classifier) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.stopPolling()
	c.reports.Wait()
	c.cancel()

	c.mu.Lock()
	c.history.Reset()
	c.hasCurrent = false
	c.mu.Unlock()
	c.peers.Store(nil)
}
