// Package db is the Postgres persistence collaborator: it stores the latest
// report per session and serves the active-peer feed used for cluster
// corroboration.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ride-detector/internal/gps"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS bus_sessions (
  id           text PRIMARY KEY,
  route_id     text NOT NULL,
  lat          double precision NOT NULL,
  lng          double precision NOT NULL,
  speed        double precision NOT NULL DEFAULT 0,
  confidence   double precision NOT NULL DEFAULT 0,
  last_updated timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS bus_sessions_route_updated_idx ON bus_sessions (route_id, last_updated);
`

// EnsureSchema creates the bus_sessions table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertReport stores r keyed by session id. Last write wins; there is no
// ordering guard, matching the fire-and-forget delivery of reports.
func UpsertReport(ctx context.Context, db *sql.DB, r gps.Report) error {
	q := `
INSERT INTO bus_sessions (id, route_id, lat, lng, speed, confidence, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  route_id     = EXCLUDED.route_id,
  lat          = EXCLUDED.lat,
  lng          = EXCLUDED.lng,
  speed        = EXCLUDED.speed,
  confidence   = EXCLUDED.confidence,
  last_updated = EXCLUDED.last_updated`
	ts := r.LastUpdated
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := db.ExecContext(ctx, q, r.SessionID, r.RouteID, r.Location.Lat, r.Location.Lng, r.SpeedMps, r.Confidence, ts.UTC())
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", r.SessionID, err)
	}
	return nil
}

// FetchActivePeers returns the last known position of every session on
// routeID updated at or after since. excludeID, when set, is left out.
func FetchActivePeers(ctx context.Context, db *sql.DB, routeID string, since time.Time, excludeID string) ([]gps.Peer, error) {
	q := `
SELECT id, lat, lng, speed, last_updated
FROM bus_sessions
WHERE route_id = $1 AND last_updated >= $2 AND id <> $3
ORDER BY last_updated DESC`
	rows, err := db.QueryContext(ctx, q, routeID, since.UTC(), excludeID)
	if err != nil {
		return nil, fmt.Errorf("query active peers: %w", err)
	}
	defer rows.Close()

	var peers []gps.Peer
	for rows.Next() {
		var (
			p     gps.Peer
			speed float64
			at    time.Time
		)
		if err := rows.Scan(&p.SessionID, &p.Fix.Lat, &p.Fix.Lon, &speed, &at); err != nil {
			return nil, err
		}
		p.Fix.Speed = &speed
		p.Fix.Timestamp = at.UnixMilli()
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// Store binds a connection to one route. It implements session.Reporter and
// session.PeerFeed.
type Store struct {
	db      *sql.DB
	routeID string
}

func NewStore(db *sql.DB, routeID string) *Store {
	return &Store{db: db, routeID: routeID}
}

func (s *Store) Report(ctx context.Context, r gps.Report) error {
	return UpsertReport(ctx, s.db, r)
}

func (s *Store) ActivePeers(ctx context.Context, since time.Time) ([]gps.Peer, error) {
	return FetchActivePeers(ctx, s.db, s.routeID, since, "")
}
