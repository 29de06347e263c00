package health

import (
	"context"
	"errors"
)

// Pinger is anything that can probe its backing connection, such as the
// archive store or the recall index.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DegradedReporter is anything that tracks its own degraded state, such as
// the archive guard.
type DegradedReporter interface {
	IsDegraded() bool
}

// Database returns a [Checker] that pings p.
func Database(name string, p Pinger) Checker {
	return Checker{
		Name:  name,
		Check: p.Ping,
	}
}

// Degraded returns a [Checker] that fails while r reports itself degraded.
func Degraded(name string, r DegradedReporter) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			if r.IsDegraded() {
				return errors.New("degraded")
			}
			return nil
		},
	}
}
