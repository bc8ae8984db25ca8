// Package calendar answers exchange trading-hours questions: whether a
// market is open at an instant or over an interval, when it next opens or
// closes, and where a window of N trading bars begins.
//
// A TradingCalendar is immutable once built and may be shared between
// goroutines without locking.
package calendar

import (
	"iter"
	"slices"
	"time"

	"marketclock/internal/util"
)

// SearchHorizonDays bounds the forward search for the next open or close.
// Running out of horizon means the calendar is misconfigured (for example
// every day is a holiday) and is reported as ErrNotFound.
const SearchHorizonDays = 15

// SearchHorizon is SearchHorizonDays as a duration.
const SearchHorizon = SearchHorizonDays * util.OneDay

// MaxLookbackSteps caps the bar steps StartTimeForTradeBars takes, open or
// closed. It keeps tiny bar sizes from walking a weekend one step at a time.
const MaxLookbackSteps = 5_000_000

var maxLookbackSteps = MaxLookbackSteps

// MinServedBarSize is the smallest bar size the network APIs accept for
// StartTimeForTradeBars.
const MinServedBarSize = time.Second

// dateKey identifies a calendar date independent of any time zone.
type dateKey int32

func keyOf(t time.Time) dateKey {
	y, m, d := t.Date()
	return dateKey(y*10000 + int(m)*100 + d)
}

// TradingCalendar combines seven weekly schedules with a holiday set and the
// exchange time zone.
type TradingCalendar struct {
	loc      *time.Location
	holidays map[dateKey]struct{}
	days     [7]WeeklySchedule
}

// NewTradingCalendar builds a calendar. Days missing from schedules are
// closed all day. Holidays are compared by calendar date only, using each
// value's own year, month and day.
func NewTradingCalendar(loc *time.Location, holidays []time.Time, schedules map[time.Weekday]WeeklySchedule) (*TradingCalendar, error) {
	if loc == nil {
		return nil, invalidArgf("nil time zone")
	}

	c := &TradingCalendar{
		loc:      loc,
		holidays: make(map[dateKey]struct{}, len(holidays)),
	}
	for day, sched := range schedules {
		if day < time.Sunday || day > time.Saturday {
			return nil, invalidArgf("day of week %d", int(day))
		}
		if sched.Day() != day {
			return nil, invalidArgf("schedule for %s registered under %s", sched.Day(), day)
		}
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		if sched, ok := schedules[day]; ok {
			c.days[day] = sched
		} else {
			c.days[day] = ClosedAllDay(day)
		}
	}
	for _, h := range holidays {
		c.holidays[keyOf(h)] = struct{}{}
	}
	return c, nil
}

// AlwaysOpen returns a calendar that is open every day around the clock.
func AlwaysOpen(loc *time.Location) *TradingCalendar {
	if loc == nil {
		loc = time.UTC
	}
	c := &TradingCalendar{loc: loc, holidays: map[dateKey]struct{}{}}
	for day := time.Sunday; day <= time.Saturday; day++ {
		c.days[day] = OpenAllDay(day)
	}
	return c
}

// Location returns the exchange time zone.
func (c *TradingCalendar) Location() *time.Location { return c.loc }

// Schedule returns the weekly schedule for day.
func (c *TradingCalendar) Schedule(day time.Weekday) (WeeklySchedule, error) {
	if day < time.Sunday || day > time.Saturday {
		return WeeklySchedule{}, invalidArgf("day of week %d", int(day))
	}
	return c.days[day], nil
}

// Holidays returns the holiday dates in ascending order as midnights in the
// exchange time zone.
func (c *TradingCalendar) Holidays() []time.Time {
	out := make([]time.Time, 0, len(c.holidays))
	for k := range c.holidays {
		y, m, d := int(k)/10000, time.Month(int(k)/100%100), int(k)%100
		out = append(out, time.Date(y, m, d, 0, 0, 0, 0, c.loc))
	}
	slices.SortFunc(out, func(a, b time.Time) int { return a.Compare(b) })
	return out
}

// IsAlwaysOpen reports whether the calendar never closes.
func (c *TradingCalendar) IsAlwaysOpen() bool {
	if len(c.holidays) > 0 {
		return false
	}
	for i := range c.days {
		if !c.days[i].IsOpenAllDay() {
			return false
		}
	}
	return true
}

// IsHoliday reports whether t's exchange-local date is a holiday.
func (c *TradingCalendar) IsHoliday(t time.Time) bool {
	return c.isHoliday(t.In(c.loc))
}

func (c *TradingCalendar) isHoliday(local time.Time) bool {
	_, ok := c.holidays[keyOf(local)]
	return ok
}

func (c *TradingCalendar) scheduleFor(local time.Time) *WeeklySchedule {
	return &c.days[local.Weekday()]
}

// IsOpen reports whether the exchange is open at t.
func (c *TradingCalendar) IsOpen(t time.Time, includeExtended bool) bool {
	local := t.In(c.loc)
	if c.isHoliday(local) {
		return false
	}
	return c.scheduleFor(local).IsOpen(util.TimeOfDay(local), includeExtended)
}

// IsOpenBetween reports whether the exchange is open at any point of
// [start, end). The interval is split at midnights because weekly schedules
// only reason within a single day.
func (c *TradingCalendar) IsOpenBetween(start, end time.Time, includeExtended bool) bool {
	if start.Equal(end) {
		return c.IsOpen(start, includeExtended)
	}
	start, end = start.In(c.loc), end.In(c.loc)

	for day := start; day.Before(end); day = util.NextMidnight(day) {
		if c.isHoliday(day) {
			continue
		}
		dayEnd := util.EndOfDay(day)
		if end.Before(dayEnd) {
			dayEnd = end
		}
		if c.scheduleFor(day).IsOpenBetween(util.TimeOfDay(day), util.TimeOfDay(dayEnd), includeExtended) {
			return true
		}
	}
	return false
}

// IsDateOpen reports whether t's date is a trading day at all. A day with any
// tradeable segment counts, even when t itself falls outside of it.
func (c *TradingCalendar) IsDateOpen(t time.Time) bool {
	local := t.In(c.loc)
	if c.isHoliday(local) {
		return false
	}
	return !c.scheduleFor(local).IsClosedAllDay()
}

// NextMarketOpen returns the first market open strictly after t, searching at
// most SearchHorizonDays calendar days starting with t's date. A session that
// runs through 24:00 into a session starting at 00:00 the next day does not
// open at that midnight, so a calendar that never closes has no next open.
func (c *TradingCalendar) NextMarketOpen(t time.Time, includeExtended bool) (time.Time, error) {
	return c.nextBoundary("next market open", t, includeExtended, true)
}

// NextMarketClose returns the first market close strictly after t, with the
// same horizon and midnight handling as NextMarketOpen.
func (c *TradingCalendar) NextMarketClose(t time.Time, includeExtended bool) (time.Time, error) {
	return c.nextBoundary("next market close", t, includeExtended, false)
}

func (c *TradingCalendar) nextBoundary(op string, t time.Time, includeExtended, opening bool) (time.Time, error) {
	boundary := WeeklySchedule.MarketClose
	if opening {
		boundary = WeeklySchedule.MarketOpen
	}

	after := t.In(c.loc)
	midnight := util.Midnight(after)

	for i := 0; i < SearchHorizonDays; i++ {
		day := util.AddDays(midnight, i)
		sched := c.scheduleFor(day)
		if c.isHoliday(day) || sched.IsClosedAllDay() {
			continue
		}

		// On later days a boundary exactly at midnight counts.
		from := time.Duration(-1)
		if i == 0 {
			from = util.TimeOfDay(after)
		}
		tod, ok := boundary(*sched, from, includeExtended)
		if ok && c.continuesOverMidnight(day, tod, opening, includeExtended) {
			tod, ok = boundary(*sched, tod, includeExtended)
		}
		if !ok {
			continue
		}
		if candidate := util.AtTimeOfDay(day, tod); candidate.After(after) {
			return candidate, nil
		}
	}

	return time.Time{}, &SearchError{Op: op, From: after, Horizon: SearchHorizon}
}

// continuesOverMidnight reports whether a boundary at tod on day is only the
// seam between one day's session ending at 24:00 and the next day's session
// starting at 00:00.
func (c *TradingCalendar) continuesOverMidnight(day time.Time, tod time.Duration, opening, includeExtended bool) bool {
	switch {
	case opening && tod == 0:
		return c.openAtEndOfDay(util.AddDays(day, -1), includeExtended) && c.IsOpen(day, includeExtended)
	case !opening && tod == util.OneDay:
		next := util.AddDays(day, 1)
		return c.openAtEndOfDay(day, includeExtended) && c.IsOpen(next, includeExtended)
	default:
		return false
	}
}

func (c *TradingCalendar) openAtEndOfDay(day time.Time, includeExtended bool) bool {
	local := day.In(c.loc)
	return !c.isHoliday(local) && c.scheduleFor(local).IsOpen(util.OneDay, includeExtended)
}

// StartTimeForTradeBars returns the start of a window that ends at end and
// contains barCount bars of barSize during which the exchange was open. end
// is first rounded down to a barSize boundary. Closed steps (nights,
// weekends, holidays) are walked over but not counted.
//
// The walk gives up with ErrNotFound after max(SearchHorizon, barSize) of
// consecutive closed time, or after MaxLookbackSteps steps in total.
func (c *TradingCalendar) StartTimeForTradeBars(end time.Time, barSize time.Duration, barCount int, includeExtended bool) (time.Time, error) {
	if barSize <= 0 {
		return time.Time{}, invalidArgf("bar size %s must be positive", barSize)
	}

	local := end.In(c.loc)
	horizon := max(SearchHorizon, barSize)

	// Step in wall-clock space so that daily bars stay on midnights across
	// DST changes.
	current := util.Wall(util.RoundDown(local, barSize))
	var closed time.Duration
	for counted, steps := 0, 0; counted < barCount; steps++ {
		if steps >= maxLookbackSteps {
			walked := util.Wall(local).Sub(current)
			return time.Time{}, &SearchError{Op: "start time for trade bars", From: local, Horizon: walked}
		}
		previous := current
		current = current.Add(-barSize)

		if c.IsOpenBetween(util.FromWall(current, c.loc), util.FromWall(previous, c.loc), includeExtended) {
			counted++
			closed = 0
			continue
		}
		closed += barSize
		if closed > horizon {
			return time.Time{}, &SearchError{Op: "start time for trade bars", From: local, Horizon: horizon}
		}
	}
	return util.FromWall(current, c.loc), nil
}

// TradeableDays yields the midnight of every open date from from's date
// through thru's date inclusive.
func (c *TradingCalendar) TradeableDays(from, thru time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		last := util.Midnight(thru.In(c.loc))
		for day := util.Midnight(from.In(c.loc)); !day.After(last); day = util.AddDays(day, 1) {
			if c.IsDateOpen(day) && !yield(day) {
				return
			}
		}
	}
}

// CountTradeableDays counts the open dates from from's date through thru's
// date inclusive.
func (c *TradingCalendar) CountTradeableDays(from, thru time.Time) int {
	n := 0
	for range c.TradeableDays(from, thru) {
		n++
	}
	return n
}

// NextTradingDay returns the midnight of the first open date after t's date.
func (c *TradingCalendar) NextTradingDay(t time.Time) (time.Time, error) {
	return c.adjacentTradingDay("next trading day", t, 1)
}

// PreviousTradingDay returns the midnight of the last open date before t's
// date.
func (c *TradingCalendar) PreviousTradingDay(t time.Time) (time.Time, error) {
	return c.adjacentTradingDay("previous trading day", t, -1)
}

func (c *TradingCalendar) adjacentTradingDay(op string, t time.Time, step int) (time.Time, error) {
	local := t.In(c.loc)
	midnight := util.Midnight(local)
	for i := 1; i <= SearchHorizonDays; i++ {
		day := util.AddDays(midnight, i*step)
		if c.IsDateOpen(day) {
			return day, nil
		}
	}
	return time.Time{}, &SearchError{Op: op, From: local, Horizon: SearchHorizon}
}
