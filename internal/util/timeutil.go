package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OneDay is the length of a calendar day in wall-clock terms. Arithmetic in
// this file never adds OneDay to an instant directly; it goes through
// time.Date so that DST transitions keep midnight at midnight.
const OneDay = 24 * time.Hour

// DateLayout is the canonical date format used in configuration and APIs.
const DateLayout = "2006-01-02"

// Midnight returns the start of t's calendar day in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// NextMidnight returns the start of the calendar day after t.
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// AddDays moves t by n calendar days keeping its wall-clock time.
func AddDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d+n, hh, mm, ss, t.Nanosecond(), t.Location())
}

// EndOfDay returns the last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return NextMidnight(t).Add(-time.Nanosecond)
}

// TimeOfDay returns the wall-clock offset of t from its midnight. On DST
// transition days this differs from t.Sub(Midnight(t)).
func TimeOfDay(t time.Time) time.Duration {
	hh, mm, ss := t.Clock()
	return time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(t.Nanosecond())
}

// AtTimeOfDay returns the instant at wall-clock offset tod on day's date. An
// offset of 24h yields the following midnight.
func AtTimeOfDay(day time.Time, tod time.Duration) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, int(tod), day.Location())
}

// Wall re-labels t's wall clock as UTC so that fixed-length arithmetic on the
// result ignores the offsets of t's location.
func Wall(t time.Time) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()
	return time.Date(y, m, d, hh, mm, ss, t.Nanosecond(), time.UTC)
}

// FromWall is the inverse of Wall.
func FromWall(w time.Time, loc *time.Location) time.Time {
	y, m, d := w.Date()
	hh, mm, ss := w.Clock()
	return time.Date(y, m, d, hh, mm, ss, w.Nanosecond(), loc)
}

// RoundDown truncates t's wall clock to a multiple of interval counted from
// the zero time. A daily interval therefore lands on local midnight.
func RoundDown(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	return FromWall(Wall(t).Truncate(interval), t.Location())
}

// ParseTimeOfDay parses "HH:MM", "HH:MM:SS[.fff]" and the "D.HH:MM:SS" day
// prefix form used by exchange hours files ("1.00:00:00" is end of day).
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time of day")
	}

	var days time.Duration
	if i := strings.IndexByte(s, '.'); i >= 0 && i < strings.IndexByte(s, ':') {
		n, err := strconv.Atoi(s[:i])
		if err != nil {
			return 0, fmt.Errorf("time of day %q: bad day prefix", s)
		}
		days = time.Duration(n) * OneDay
		s = s[i+1:]
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("time of day %q: want HH:MM[:SS]", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("time of day %q: bad hour", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("time of day %q: bad minute", s)
	}
	var secs float64
	if len(parts) == 3 {
		secs, err = strconv.ParseFloat(parts[2], 64)
		if err != nil || secs < 0 || secs >= 60 {
			return 0, fmt.Errorf("time of day %q: bad second", s)
		}
	}

	tod := days +
		time.Duration(hh)*time.Hour +
		time.Duration(mm)*time.Minute +
		time.Duration(secs*float64(time.Second))
	if hh < 0 || tod > OneDay {
		return 0, fmt.Errorf("time of day %q: out of range", s)
	}
	return tod, nil
}

// FormatTimeOfDay renders tod as "HH:MM:SS", using "24:00:00" for end of day.
func FormatTimeOfDay(tod time.Duration) string {
	h := tod / time.Hour
	m := (tod % time.Hour) / time.Minute
	s := (tod % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ParseDate parses a calendar date as midnight in loc. Both "2006-01-02" and
// the US "1/2/2006" form are accepted.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, "1/2/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
