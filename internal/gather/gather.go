// Package gather defines jobs that load bars into the bar store: the
// Alpaca daily gatherer in gather/us and the CSV importer here.
package gather

import (
	"context"
	"time"
)

// Gatherer is one resumable loading job.
type Gatherer interface {
	Name() string
	// Run loads data until done or until ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange is an inclusive time range. A zero End is unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	return r.End.IsZero() || !t.After(r.End)
}
