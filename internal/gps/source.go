package gps

import "context"

// Source delivers a chronological stream of fixes, one call per fix. Run
// blocks until ctx is cancelled or the source is exhausted. Sensor problems
// (timeouts, permissions) are passed to fail and never end the run by
// themselves.
type Source interface {
	Run(ctx context.Context, handle func(Fix), fail func(error)) error
}
