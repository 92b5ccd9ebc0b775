package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ride-detector/internal/config"
	"ride-detector/internal/db"
	"ride-detector/internal/gps"
	"ride-detector/internal/metrics"
	"ride-detector/internal/publisher"
	"ride-detector/internal/session"
	"ride-detector/internal/sim"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	rt, th, err := config.LoadRoute(cfg.RouteFile)
	if err != nil {
		log.Fatalf("route error: %v", err)
	}
	log.Printf("route %s (%s): %d stops, %.0fm", rt.ID, rt.Name, len(rt.Stops), rt.Line.Length())

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.PeerPollInterval, cfg.PublishInterval, cfg.SpeedMultiplier)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Persistence collaborator (optional)
	var reporters session.MultiReporter
	var feed session.PeerFeed
	if cfg.DatabaseURL != "" {
		sqlDB := openStore(ctx, cfg.DatabaseURL)
		defer sqlDB.Close()
		store := db.NewStore(sqlDB, rt.ID)
		reporters = append(reporters, store)
		feed = store
	} else {
		log.Printf("no database configured: reports are not persisted and cluster corroboration is off")
	}

	// Broadcast collaborator (optional)
	var pub *publisher.NATSPublisher
	if cfg.NATSURL != "" {
		pub, err = publisher.NewNATSPublisher(cfg.NATSURL, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol), cfg.NATSSubjectPrefix)
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		reporters = append(reporters, pub)
	}

	var reporter session.Reporter
	if len(reporters) > 0 {
		reporter = reporters
	}
	observe := statusLogger(cfg.Location)

	switch cfg.Source {
	case config.SourceNATS:
		c := session.NewClassifier(session.Options{Route: rt, Thresholds: th, Reporter: reporter, Metrics: mcol})
		c.StartPeerPolling(ctx, feed, cfg.PeerPollInterval, cfg.PeerWindow)
		src := publisher.NewFixSource(pub.Conn(), cfg.FixSubject, cfg.SourceTimeout)
		log.Printf("session %s listening for fixes on %s", c.ID(), cfg.FixSubject)
		if err := session.Run(ctx, src, c, observe); err != nil {
			log.Printf("fix source error: %v", err)
		}

	default:
		mc := sim.ManagerConfig{
			Route:            rt,
			Thresholds:       th,
			Reporter:         reporter,
			Feed:             feed,
			PublishInterval:  cfg.PublishInterval,
			SpeedMultiplier:  cfg.SpeedMultiplier,
			Loop:             cfg.GhostLoop,
			PeerPollInterval: cfg.PeerPollInterval,
			PeerWindow:       cfg.PeerWindow,
			Metrics:          mcol,
			Observe:          observe,
		}
		// Mirror generated fixes onto NATS so a remote detector can consume them
		if pub != nil && cfg.FixSubject != "" {
			nc := pub.Conn()
			mc.Mirror = func(ctx context.Context, sessionID string, f gps.Fix) {
				if ctx.Err() != nil {
					return
				}
				if err := publisher.PublishFix(nc, cfg.FixSubject, f); err != nil {
					log.Printf("[%s] mirror fix: %v", sessionID, err)
				}
			}
		}
		mgr := sim.NewManager(mc)
		mgr.Start(ctx, cfg.GhostRiders)

		// Block until context cancelled or every rider has finished
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					close(done)
					return
				case <-ticker.C:
					if mgr.Running() == 0 {
						close(done)
						return
					}
				}
			}
		}()
		<-done
		mgr.Stop()
	}

	log.Println("shutdown complete")
}

func openStore(ctx context.Context, dsn string) *sql.DB {
	if safe, err := db.RedactDSN(dsn); err == nil {
		log.Printf("connecting to %s", safe)
	}
	sqlDB, err := db.Open(dsn)
	if err != nil {
		log.Fatalf("db open error: %v", err)
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		log.Fatalf("db ping error: %v", err)
	}
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		log.Fatalf("db schema error: %v", err)
	}
	return sqlDB
}

// statusLogger logs an update whenever a session's status changes. Fix
// times are shown in loc.
func statusLogger(loc *time.Location) func(session.Update) {
	var mu sync.Mutex
	last := map[string]string{}
	return func(u session.Update) {
		mu.Lock()
		prev, seen := last[u.SessionID]
		last[u.SessionID] = u.Status
		mu.Unlock()
		if seen && prev == u.Status {
			return
		}
		log.Printf("[%s] %s", u.SessionID, u.Summary(loc))
	}
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
