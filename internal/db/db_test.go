package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-detector/internal/gps"
)

func TestRedactDSN(t *testing.T) {
	tests := []struct {
		name, in, want string
		wantErr        bool
	}{
		{name: "url with password", in: "postgres://bus:s3cret@db:5432/rides?sslmode=disable", want: "postgres://bus:xxxxx@db:5432/rides?sslmode=disable"},
		{name: "url without password", in: "postgresql://bus@db/rides", want: "postgresql://bus@db/rides"},
		{name: "key value", in: "host=db user=bus password=s3cret dbname=rides", want: "host=db user=bus password=xxxxx dbname=rides"},
		{name: "empty", in: "", wantErr: true},
		{name: "wrong scheme", in: "mysql://u:p@h/db", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RedactDSN(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := Open(dsn)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, Ping(ctx, conn))
	require.NoError(t, EnsureSchema(ctx, conn))
	require.NoError(t, EnsureSchema(ctx, conn), "schema creation is idempotent")

	routeID := "it-" + uuid.NewString()
	store := NewStore(conn, routeID)
	t.Cleanup(func() {
		_, _ = conn.ExecContext(ctx, `DELETE FROM bus_sessions WHERE route_id = $1`, routeID)
	})

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := gps.Report{SessionID: "a-" + routeID, RouteID: routeID, Location: gps.Location{Lat: 6.92, Lng: 79.87}, SpeedMps: 5, Confidence: 0.5, LastUpdated: now}
	require.NoError(t, store.Report(ctx, first))

	// last write wins
	second := first
	second.SpeedMps = 11
	second.Location.Lat = 6.91
	require.NoError(t, store.Report(ctx, second))

	stale := gps.Report{SessionID: "b-" + routeID, RouteID: routeID, Location: gps.Location{Lat: 6.9, Lng: 79.9}, LastUpdated: now.Add(-5 * time.Minute)}
	require.NoError(t, store.Report(ctx, stale))

	peers, err := store.ActivePeers(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, first.SessionID, peers[0].SessionID)
	assert.Equal(t, 6.91, peers[0].Fix.Lat)
	assert.Equal(t, 11.0, peers[0].Fix.SpeedMps())
	assert.Equal(t, now.UnixMilli(), peers[0].Fix.Timestamp)

	peers, err = FetchActivePeers(ctx, conn, routeID, now.Add(-10*time.Minute), first.SessionID)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, stale.SessionID, peers[0].SessionID)
}
