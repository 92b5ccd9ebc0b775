package session

import (
	"context"

	"ride-detector/internal/gps"
)

// Run feeds every fix from src through c and hands each update to observe.
// When the source stops, the session is torn down: polling ends and the
// history is discarded.
func Run(ctx context.Context, src gps.Source, c *Classifier, observe func(Update)) error {
	if c.metrics != nil {
		c.metrics.ActiveSessions.Inc()
		defer c.metrics.ActiveSessions.Dec()
	}
	defer c.Close()
	if observe == nil {
		observe = func(Update) {}
	}
	return src.Run(ctx,
		func(f gps.Fix) { observe(c.Process(f)) },
		func(err error) { observe(c.SourceError(err)) },
	)
}
