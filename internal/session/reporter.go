package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ride-detector/internal/gps"
)

// Reporter accepts confirmed-bus location reports. Implementations own their
// storage, networking and retry policy.
type Reporter interface {
	Report(ctx context.Context, r gps.Report) error
}

// PeerFeed lists other sessions' last known positions reported at or after
// since.
type PeerFeed interface {
	ActivePeers(ctx context.Context, since time.Time) ([]gps.Peer, error)
}

// MultiReporter fans a report out to every reporter and joins their errors.
type MultiReporter []Reporter

func (m MultiReporter) Report(ctx context.Context, r gps.Report) error {
	var errs []error
	for _, rep := range m {
		if rep == nil {
			continue
		}
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewSessionID returns an opaque id generated once per session.
func NewSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}
