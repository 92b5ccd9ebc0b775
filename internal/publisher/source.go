package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"ride-detector/internal/gps"
)

const DefaultSourceTimeout = 20 * time.Second

// FixSource delivers fixes published as JSON on a NATS subject. It is a
// gps.Source: one handle call per decoded fix, in arrival order.
type FixSource struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewFixSource(nc *nats.Conn, subject string, timeout time.Duration) *FixSource {
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	return &FixSource{nc: nc, subject: subject, timeout: timeout}
}

// Run subscribes and blocks until ctx is done. When no fix arrives within
// the timeout, gps.ErrSourceTimeout is passed to fail and the source keeps
// listening. Undecodable messages are logged and skipped.
func (s *FixSource) Run(ctx context.Context, handle func(gps.Fix), fail func(error)) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := s.nc.ChanSubscribe(s.subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			fail(gps.ErrSourceTimeout)
			timer.Reset(s.timeout)
		case m := <-msgs:
			f, err := DecodeFix(m.Data)
			if err != nil {
				log.Printf("drop fix on %s: %v", m.Subject, err)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.timeout)
			handle(f)
		}
	}
}

// DecodeFix parses a JSON fix. Coordinates and timestamp are required; a
// missing timestamp is stamped with the receive time.
func DecodeFix(b []byte) (gps.Fix, error) {
	var raw struct {
		Lat       *float64 `json:"latitude"`
		Lon       *float64 `json:"longitude"`
		Timestamp int64    `json:"timestampMs"`
		Speed     *float64 `json:"speedMps"`
		Heading   *float64 `json:"headingDeg"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return gps.Fix{}, fmt.Errorf("decode fix: %w", err)
	}
	if raw.Lat == nil || raw.Lon == nil {
		return gps.Fix{}, fmt.Errorf("decode fix: missing coordinates")
	}
	f := gps.Fix{Lat: *raw.Lat, Lon: *raw.Lon, Timestamp: raw.Timestamp, Speed: raw.Speed, Heading: raw.Heading}
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixMilli()
	}
	return f, nil
}

// PublishFix sends f on subject. The ghost rider uses it to drive a remote
// detector over NATS.
func PublishFix(nc *nats.Conn, subject string, f gps.Fix) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return nc.Publish(subject, b)
}
