package sim

import (
	"context"
	"log"
	"sync"
	"time"

	"ride-detector/internal/detect"
	"ride-detector/internal/gps"
	mmetrics "ride-detector/internal/metrics"
	"ride-detector/internal/route"
	"ride-detector/internal/session"
)

// DefaultStagger separates consecutive riders in simulated time. At cruise
// speed it keeps them inside the cluster radius of each other.
const DefaultStagger = 500 * time.Millisecond

type ManagerConfig struct {
	Route      *route.Route
	Thresholds detect.Thresholds
	Reporter   session.Reporter
	Feed       session.PeerFeed

	PublishInterval  time.Duration
	SpeedMultiplier  float64
	Loop             bool
	Stagger          time.Duration
	PeerPollInterval time.Duration
	PeerWindow       time.Duration

	Metrics *mmetrics.Collector
	Observe func(session.Update)
	// Mirror, when set, sees every generated fix before classification.
	Mirror func(ctx context.Context, sessionID string, f gps.Fix)
}

// Manager runs simulated riders, each with its own classifier session.
type Manager struct {
	cfg ManagerConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc // sessionID -> cancel
	wg      sync.WaitGroup
	seq     uint64
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Route == nil {
		cfg.Route = route.Route138()
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = DefaultStagger
	}
	return &Manager{cfg: cfg, running: make(map[string]context.CancelFunc)}
}

// Start launches n riders, staggered along the route.
func (m *Manager) Start(ctx context.Context, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, m.StartRider(ctx, time.Duration(i)*m.cfg.Stagger))
	}
	return ids
}

// StartRider launches one rider whose ride begins offset into the route
// schedule and returns its session id.
func (m *Manager) StartRider(parent context.Context, offset time.Duration) string {
	m.mu.Lock()
	m.seq++
	seed := m.seq
	m.mu.Unlock()

	c := session.NewClassifier(session.Options{
		Route:      m.cfg.Route,
		Thresholds: m.cfg.Thresholds,
		Reporter:   m.cfg.Reporter,
		Metrics:    m.cfg.Metrics,
	})
	id := c.ID()
	ride := NewGhostRide(m.cfg.Route, RideOptions{
		Offset:          offset,
		PublishInterval: m.cfg.PublishInterval,
		SpeedMultiplier: m.cfg.SpeedMultiplier,
		Loop:            m.cfg.Loop,
		Seed:            seed,
	})

	ctx, cancel := context.WithCancel(parent)
	m.mu.Lock()
	m.running[id] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	c.StartPeerPolling(ctx, m.cfg.Feed, m.cfg.PeerPollInterval, m.cfg.PeerWindow)

	log.Printf("starting rider %s on route %s (offset %s, pass %s)", id, m.cfg.Route.ID, offset, ride.Duration())
	go func() {
		defer m.wg.Done()
		defer cancel()
		var src gps.Source = ride
		if m.cfg.Mirror != nil {
			src = mirrored{src: ride, fn: func(ctx context.Context, f gps.Fix) { m.cfg.Mirror(ctx, id, f) }}
		}
		if err := session.Run(ctx, src, c, m.cfg.Observe); err != nil {
			log.Printf("rider %s error: %v", id, err)
		}
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
		log.Printf("rider %s stopped", id)
	}()
	return id
}

// Running returns the number of riders still active.
func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.running)
}

// Stop cancels every rider and waits for their sessions to close.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

type mirrored struct {
	src gps.Source
	fn  func(context.Context, gps.Fix)
}

func (s mirrored) Run(ctx context.Context, handle func(gps.Fix), fail func(error)) error {
	return s.src.Run(ctx, func(f gps.Fix) {
		s.fn(ctx, f)
		handle(f)
	}, fail)
}
