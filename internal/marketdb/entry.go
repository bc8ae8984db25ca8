package marketdb

import (
	"fmt"
	"time"

	"marketclock/internal/calendar"
	"marketclock/internal/util"
)

// SegmentSpec is one segment of a day as written in a market hours file.
// State is "market" when empty.
type SegmentSpec struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
	State string `json:"state,omitempty" yaml:"state,omitempty"`
}

// Entry is the schedule of one security type / market / symbol key.
type Entry struct {
	DataTimeZone     string        `json:"dataTimeZone" yaml:"dataTimeZone"`
	ExchangeTimeZone string        `json:"exchangeTimeZone" yaml:"exchangeTimeZone"`
	Holidays         []string      `json:"holidays,omitempty" yaml:"holidays,omitempty"`
	Sunday           []SegmentSpec `json:"sunday" yaml:"sunday"`
	Monday           []SegmentSpec `json:"monday" yaml:"monday"`
	Tuesday          []SegmentSpec `json:"tuesday" yaml:"tuesday"`
	Wednesday        []SegmentSpec `json:"wednesday" yaml:"wednesday"`
	Thursday         []SegmentSpec `json:"thursday" yaml:"thursday"`
	Friday           []SegmentSpec `json:"friday" yaml:"friday"`
	Saturday         []SegmentSpec `json:"saturday" yaml:"saturday"`
}

// days exposes the per-day fields by weekday index.
func (e *Entry) days() [7]*[]SegmentSpec {
	return [7]*[]SegmentSpec{
		&e.Sunday, &e.Monday, &e.Tuesday, &e.Wednesday,
		&e.Thursday, &e.Friday, &e.Saturday,
	}
}

// Day returns the segments configured for day.
func (e Entry) Day(day time.Weekday) []SegmentSpec {
	if day < time.Sunday || day > time.Saturday {
		return nil
	}
	return *e.days()[day]
}

// SetDay replaces the segments configured for day.
func (e *Entry) SetDay(day time.Weekday, segs []SegmentSpec) {
	if day < time.Sunday || day > time.Saturday {
		return
	}
	*e.days()[day] = segs
}

// AlwaysOpenEntry returns an entry open around the clock every day in tz.
func AlwaysOpenEntry(tz string) Entry {
	e := Entry{DataTimeZone: tz, ExchangeTimeZone: tz}
	for day := time.Sunday; day <= time.Saturday; day++ {
		e.SetDay(day, []SegmentSpec{{Start: "00:00:00", End: "24:00:00", State: "market"}})
	}
	return e
}

// Build turns the entry into a trading calendar, resolving the exchange time
// zone through zones.
func (e Entry) Build(zones *ZoneRegistry) (*calendar.TradingCalendar, error) {
	loc, err := zones.Resolve(e.ExchangeTimeZone)
	if err != nil {
		return nil, err
	}

	schedules := make(map[time.Weekday]calendar.WeeklySchedule, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		specs := e.Day(day)
		segs := make([]calendar.Segment, 0, len(specs))
		for i, spec := range specs {
			seg, err := spec.segment()
			if err != nil {
				return nil, fmt.Errorf("%s segment %d: %w", day, i, err)
			}
			segs = append(segs, seg)
		}
		sched, err := calendar.NewWeeklySchedule(day, segs...)
		if err != nil {
			return nil, err
		}
		schedules[day] = sched
	}

	holidays := make([]time.Time, 0, len(e.Holidays))
	for _, h := range e.Holidays {
		d, err := util.ParseDate(h, loc)
		if err != nil {
			return nil, fmt.Errorf("holiday: %w", err)
		}
		holidays = append(holidays, d)
	}

	return calendar.NewTradingCalendar(loc, holidays, schedules)
}

func (s SegmentSpec) segment() (calendar.Segment, error) {
	start, err := util.ParseTimeOfDay(s.Start)
	if err != nil {
		return calendar.Segment{}, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
	}
	end, err := util.ParseTimeOfDay(s.End)
	if err != nil {
		return calendar.Segment{}, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
	}
	kind, err := calendar.ParseSegmentKind(s.State)
	if err != nil {
		return calendar.Segment{}, err
	}
	return calendar.Segment{Start: start, End: end, Kind: kind}, nil
}
