package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SourceGhost = "ghost"
	SourceNATS  = "nats"
)

type Config struct {
	DatabaseURL       string // empty disables Postgres
	NATSURL           string // empty disables NATS
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string
	RouteFile         string

	Source        string
	FixSubject    string
	SourceTimeout time.Duration

	PublishInterval time.Duration
	SpeedMultiplier float64
	GhostRiders     int
	GhostLoop       bool

	PeerPollInterval time.Duration
	PeerWindow       time.Duration
	Location         *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars when PGDATABASE is set
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		if db := os.Getenv("PGDATABASE"); db != "" {
			host := getenvDefault("PGHOST", "127.0.0.1")
			port := getenvDefault("PGPORT", "5432")
			user := getenvDefault("PGUSER", "postgres")
			pass := os.Getenv("PGPASSWORD")
			sslmode := getenvDefault("PGSSLMODE", "disable")
			if pass != "" {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
			} else {
				cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
			}
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	cfg.NATSURL = strings.TrimSpace(os.Getenv("NATS_URL"))
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "buses")
	cfg.LogNATSSubjects = parseBool(os.Getenv("LOG_NATS_SUBJECTS"))

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Route file (YAML). Empty selects the built-in route.
	cfg.RouteFile = os.Getenv("ROUTE_FILE")

	cfg.Source = strings.ToLower(getenvDefault("SOURCE", SourceGhost))
	cfg.FixSubject = os.Getenv("FIX_SUBJECT")
	switch cfg.Source {
	case SourceGhost:
	case SourceNATS:
		if cfg.NATSURL == "" || cfg.FixSubject == "" {
			return nil, errors.New("SOURCE=nats requires NATS_URL and FIX_SUBJECT")
		}
	default:
		return nil, fmt.Errorf("invalid SOURCE: %q", cfg.Source)
	}

	var err error
	if cfg.SourceTimeout, err = millis("SOURCE_TIMEOUT_MS", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.PublishInterval, err = millis("PUBLISH_INTERVAL_MS", time.Second); err != nil {
		return nil, err
	}
	if cfg.PeerPollInterval, err = millis("PEER_POLL_INTERVAL_MS", 5*time.Second); err != nil {
		return nil, err
	}

	// Peer window (seconds)
	if v := os.Getenv("PEER_WINDOW_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil || sec <= 0 {
			return nil, fmt.Errorf("invalid PEER_WINDOW_SEC: %q", v)
		}
		cfg.PeerWindow = time.Duration(sec) * time.Second
	} else {
		cfg.PeerWindow = 60 * time.Second
	}

	// Speed multiplier
	if v := os.Getenv("SPEED_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid SPEED_MULTIPLIER: %q", v)
		}
		cfg.SpeedMultiplier = f
	} else {
		cfg.SpeedMultiplier = 1.0
	}

	// Number of simulated riders
	if v := os.Getenv("GHOST_RIDERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid GHOST_RIDERS: %q", v)
		}
		cfg.GhostRiders = n
	} else {
		cfg.GhostRiders = 1
	}
	cfg.GhostLoop = true
	if v := os.Getenv("GHOST_LOOP"); v != "" {
		cfg.GhostLoop = parseBool(v)
	}

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

func millis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
