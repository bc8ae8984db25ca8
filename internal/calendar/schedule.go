package calendar

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"marketclock/internal/util"
)

// SegmentKind tags a slice of the trading day with its market phase.
type SegmentKind uint8

const (
	Closed SegmentKind = iota
	PreMarket
	Market
	PostMarket
)

var segmentKindNames = [...]string{
	Closed:     "closed",
	PreMarket:  "premarket",
	Market:     "market",
	PostMarket: "postmarket",
}

func (k SegmentKind) String() string {
	if int(k) < len(segmentKindNames) {
		return segmentKindNames[k]
	}
	return fmt.Sprintf("SegmentKind(%d)", k)
}

// ParseSegmentKind accepts the lower-case names produced by String, case
// insensitively. An empty string means Market.
func ParseSegmentKind(s string) (SegmentKind, error) {
	if s == "" {
		return Market, nil
	}
	for k, name := range segmentKindNames {
		if strings.EqualFold(s, name) {
			return SegmentKind(k), nil
		}
	}
	return Closed, invalidArgf("unknown segment kind %q", s)
}

// Segment is a contiguous part of one trading day. Start and End are
// wall-clock offsets from midnight in [0, 24h].
type Segment struct {
	Start time.Duration
	End   time.Duration
	Kind  SegmentKind
}

// qualifies reports whether the segment counts as open. Extended segments
// count only when includeExtended is set.
func (s Segment) qualifies(includeExtended bool) bool {
	switch s.Kind {
	case Market:
		return true
	case PreMarket, PostMarket:
		return includeExtended
	default:
		return false
	}
}

// Overlaps reports whether the segment intersects [start, end).
func (s Segment) Overlaps(start, end time.Duration) bool {
	return s.Start < end && s.End > start
}

func (s Segment) String() string {
	return fmt.Sprintf("%s-%s %s", util.FormatTimeOfDay(s.Start), util.FormatTimeOfDay(s.End), s.Kind)
}

// WeeklySchedule holds the segments of one day of the week. Segments are
// sorted by Start and never overlap. The zero value is a closed Sunday.
type WeeklySchedule struct {
	day      time.Weekday
	segments []Segment
}

// NewWeeklySchedule validates and sorts segments for day. Segments must lie
// within [0, 24h], be non-empty and must not overlap one another.
func NewWeeklySchedule(day time.Weekday, segments ...Segment) (WeeklySchedule, error) {
	if day < time.Sunday || day > time.Saturday {
		return WeeklySchedule{}, invalidArgf("day of week %d", int(day))
	}

	sorted := slices.Clone(segments)
	slices.SortFunc(sorted, func(a, b Segment) int {
		return cmp.Compare(a.Start, b.Start)
	})

	for i, seg := range sorted {
		if seg.Start < 0 || seg.End > util.OneDay || seg.Start >= seg.End {
			return WeeklySchedule{}, invalidArgf("%s segment %s out of range", day, seg)
		}
		if seg.Kind > PostMarket {
			return WeeklySchedule{}, invalidArgf("%s segment %s has unknown kind", day, seg)
		}
		if i > 0 && sorted[i-1].End > seg.Start {
			return WeeklySchedule{}, invalidArgf("%s segments %s and %s overlap", day, sorted[i-1], seg)
		}
	}

	return WeeklySchedule{day: day, segments: sorted}, nil
}

// NewExtendedSchedule builds the usual pre-market / market / post-market
// layout. Empty extended ranges are omitted.
func NewExtendedSchedule(day time.Weekday, extendedStart, marketStart, marketEnd, extendedEnd time.Duration) (WeeklySchedule, error) {
	var segs []Segment
	if extendedStart < marketStart {
		segs = append(segs, Segment{Start: extendedStart, End: marketStart, Kind: PreMarket})
	}
	segs = append(segs, Segment{Start: marketStart, End: marketEnd, Kind: Market})
	if marketEnd < extendedEnd {
		segs = append(segs, Segment{Start: marketEnd, End: extendedEnd, Kind: PostMarket})
	}
	return NewWeeklySchedule(day, segs...)
}

// OpenAllDay returns a schedule with one market segment spanning the day.
func OpenAllDay(day time.Weekday) WeeklySchedule {
	return WeeklySchedule{
		day:      day,
		segments: []Segment{{Start: 0, End: util.OneDay, Kind: Market}},
	}
}

// ClosedAllDay returns a schedule with no segments.
func ClosedAllDay(day time.Weekday) WeeklySchedule {
	return WeeklySchedule{day: day}
}

// Day returns the day of the week the schedule applies to.
func (s WeeklySchedule) Day() time.Weekday { return s.day }

// Segments returns a copy of the sorted segment list.
func (s WeeklySchedule) Segments() []Segment { return slices.Clone(s.segments) }

// IsOpen reports whether tod falls inside a qualifying segment. Segment
// starts are inclusive and ends exclusive, except for the day's final
// segment whose end is inclusive.
func (s WeeklySchedule) IsOpen(tod time.Duration, includeExtended bool) bool {
	last := len(s.segments) - 1
	for i, seg := range s.segments {
		if !seg.qualifies(includeExtended) || tod < seg.Start {
			continue
		}
		if tod < seg.End || (i == last && tod == seg.End) {
			return true
		}
	}
	return false
}

// IsOpenBetween reports whether a qualifying segment overlaps [start, end).
func (s WeeklySchedule) IsOpenBetween(start, end time.Duration, includeExtended bool) bool {
	if start == end {
		return s.IsOpen(start, includeExtended)
	}
	if end < start {
		return false
	}
	for _, seg := range s.segments {
		if seg.qualifies(includeExtended) && seg.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// IsClosedAllDay reports whether no segment of the day is tradeable, even
// with extended hours.
func (s WeeklySchedule) IsClosedAllDay() bool {
	for _, seg := range s.segments {
		if seg.Kind != Closed {
			return false
		}
	}
	return true
}

// IsOpenAllDay reports whether regular market segments cover the whole day
// without a gap.
func (s WeeklySchedule) IsOpenAllDay() bool {
	covered := time.Duration(0)
	for _, seg := range s.segments {
		if seg.Kind != Market || seg.Start != covered {
			return false
		}
		covered = seg.End
	}
	return covered == util.OneDay
}

// MarketOpen returns the earliest start of a qualifying segment strictly
// after tod. With extended hours a pre-market segment and the session that
// follows it each report their own start.
func (s WeeklySchedule) MarketOpen(tod time.Duration, includeExtended bool) (time.Duration, bool) {
	for _, seg := range s.segments {
		if seg.qualifies(includeExtended) && seg.Start > tod {
			return seg.Start, true
		}
	}
	return 0, false
}

// MarketClose returns the earliest end of a qualifying segment strictly after
// tod.
func (s WeeklySchedule) MarketClose(tod time.Duration, includeExtended bool) (time.Duration, bool) {
	for _, seg := range s.segments {
		if seg.qualifies(includeExtended) && seg.End > tod {
			return seg.End, true
		}
	}
	return 0, false
}

func (s WeeklySchedule) String() string {
	if s.IsClosedAllDay() {
		return s.day.String() + ": closed"
	}
	parts := make([]string, len(s.segments))
	for i, seg := range s.segments {
		parts[i] = seg.String()
	}
	return s.day.String() + ": " + strings.Join(parts, ", ")
}
