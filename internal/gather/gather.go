// Package gather holds background jobs that refresh calendar data from
// external sources.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run starts the data gathering process. It blocks until ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SplitYears cuts r into consecutive ranges that each stay within one
// calendar year.
func (r DateRange) SplitYears() []DateRange {
	if r.End.Before(r.Start) {
		return nil
	}
	var out []DateRange
	for start := r.Start; !start.After(r.End); {
		end := time.Date(start.Year(), time.December, 31, 0, 0, 0, 0, start.Location())
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, DateRange{Start: start, End: end})
		start = time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, start.Location())
	}
	return out
}
