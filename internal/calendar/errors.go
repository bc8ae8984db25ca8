package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument reports a malformed query or schedule definition.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound reports a boundary search that exhausted its horizon.
	ErrNotFound = errors.New("not found")
)

// SearchError is returned when a forward or backward search gives up. It
// matches ErrNotFound under errors.Is.
type SearchError struct {
	Op      string
	From    time.Time
	Horizon time.Duration
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s: nothing found within %s of %s",
		e.Op, formatHorizon(e.Horizon), e.From.Format(time.RFC3339))
}

func (e *SearchError) Unwrap() error { return ErrNotFound }

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func formatHorizon(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%d days", d/(24*time.Hour))
	}
	return d.String()
}
