package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge
	ActivePeers    prometheus.Gauge

	FixesProcessed  prometheus.Counter
	FixesRejected   prometheus.Counter
	Classifications *prometheus.CounterVec // state label: idle|candidate|confirmed_ride
	SourceErrors    *prometheus.CounterVec // kind label: timeout|permission|unsupported|other

	ReportsSent   prometheus.Counter
	ReportErrors  prometheus.Counter
	PeerPolls     prometheus.Counter
	PeerPollErrs  prometheus.Counter
	ClusterAgrees prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	ClassifyDuration prometheus.Histogram
	PublishDuration  prometheus.Histogram

	PollInterval    prometheus.Gauge // seconds
	PublishInterval prometheus.Gauge // seconds
	SpeedMultiplier prometheus.Gauge
}

func NewCollector(pollInterval, publishInterval time.Duration, speedMultiplier float64) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_active_sessions",
			Help: "Number of ride sessions currently classifying fixes.",
		}),
		ActivePeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_active_peers",
			Help: "Peers in the most recent cluster snapshot.",
		}),
		FixesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_fixes_processed_total",
			Help: "Total fixes classified.",
		}),
		FixesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_fixes_rejected_total",
			Help: "Total fixes dropped for malformed coordinates.",
		}),
		Classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detector_classifications_total",
			Help: "Classifications by resulting session state.",
		}, []string{"state"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detector_source_errors_total",
			Help: "Position source errors surfaced as status.",
		}, []string{"kind"}),
		ReportsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_reports_sent_total",
			Help: "Total location reports delivered.",
		}),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_report_errors_total",
			Help: "Total location reports that failed to deliver.",
		}),
		PeerPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_peer_polls_total",
			Help: "Total peer feed polls.",
		}),
		PeerPollErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_peer_poll_errors_total",
			Help: "Total failed peer feed polls.",
		}),
		ClusterAgrees: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_cluster_agreements_total",
			Help: "Fixes corroborated by a nearby peer.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detector_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detector_classify_duration_seconds",
			Help:    "Duration of per-fix classification.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detector_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		PollInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_peer_poll_interval_seconds",
			Help: "Peer feed poll interval in seconds.",
		}),
		PublishInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_ghost_publish_interval_seconds",
			Help: "Simulated ride tick interval in seconds.",
		}),
		SpeedMultiplier: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detector_ghost_speed_multiplier",
			Help: "Simulated ride time multiplier.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions, c.ActivePeers,
		c.FixesProcessed, c.FixesRejected, c.Classifications, c.SourceErrors,
		c.ReportsSent, c.ReportErrors, c.PeerPolls, c.PeerPollErrs, c.ClusterAgrees,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.ClassifyDuration, c.PublishDuration,
		c.PollInterval, c.PublishInterval, c.SpeedMultiplier,
	)

	c.PollInterval.Set(pollInterval.Seconds())
	c.PublishInterval.Set(publishInterval.Seconds())
	c.SpeedMultiplier.Set(speedMultiplier)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
