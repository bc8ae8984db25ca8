package calendar

import (
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func date(loc *time.Location, y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func assertInstant(t *testing.T, want, got time.Time, note ...string) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "want %s, got %s %v", want, got, note)
}

// equityCalendar is open 04:00-20:00 with a 09:30-16:00 regular session on
// weekdays, closed at weekends.
func equityCalendar(t *testing.T, holidays ...time.Time) *TradingCalendar {
	t.Helper()
	days := make(map[time.Weekday]WeeklySchedule)
	for day := time.Monday; day <= time.Friday; day++ {
		days[day] = equitySchedule(t, day)
	}
	c, err := NewTradingCalendar(newYork(t), holidays, days)
	require.NoError(t, err)
	return c
}

func openEveryDay(t *testing.T, holidays ...time.Time) *TradingCalendar {
	t.Helper()
	days := make(map[time.Weekday]WeeklySchedule)
	for day := time.Sunday; day <= time.Saturday; day++ {
		days[day] = OpenAllDay(day)
	}
	c, err := NewTradingCalendar(time.UTC, holidays, days)
	require.NoError(t, err)
	return c
}

func TestNewTradingCalendarValidation(t *testing.T) {
	_, err := NewTradingCalendar(nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTradingCalendar(time.UTC, nil, map[time.Weekday]WeeklySchedule{
		time.Monday: OpenAllDay(time.Tuesday),
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewTradingCalendar(time.UTC, nil, map[time.Weekday]WeeklySchedule{
		time.Weekday(9): OpenAllDay(time.Weekday(9)),
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	c, err := NewTradingCalendar(time.UTC, nil, nil)
	require.NoError(t, err)
	for day := time.Sunday; day <= time.Saturday; day++ {
		s, err := c.Schedule(day)
		require.NoError(t, err)
		assert.True(t, s.IsClosedAllDay(), "missing %s should default to closed", day)
		assert.Equal(t, day, s.Day())
	}

	_, err = c.Schedule(time.Weekday(-1))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestHolidayOverride(t *testing.T) {
	holiday := date(time.UTC, 2024, time.July, 1, 0, 0)
	c, err := NewTradingCalendar(time.UTC, []time.Time{holiday}, map[time.Weekday]WeeklySchedule{
		time.Monday: OpenAllDay(time.Monday),
	})
	require.NoError(t, err)

	assert.False(t, c.IsOpen(date(time.UTC, 2024, time.July, 1, 10, 0), false))
	assert.True(t, c.IsOpen(date(time.UTC, 2024, time.July, 8, 10, 0), false))
	assert.True(t, c.IsHoliday(date(time.UTC, 2024, time.July, 1, 23, 59)))
	assert.False(t, c.IsDateOpen(holiday))
}

func TestHolidaysAreDatesNotInstants(t *testing.T) {
	ny := newYork(t)
	// Stored as a UTC midnight, but it names the 4th of July in New York.
	c := equityCalendar(t, date(time.UTC, 2024, time.July, 4, 0, 0))

	assert.False(t, c.IsOpen(date(ny, 2024, time.July, 4, 10, 0), false))
	assert.True(t, c.IsOpen(date(ny, 2024, time.July, 3, 10, 0), false))
	holidays := c.Holidays()
	require.Len(t, holidays, 1)
	assertInstant(t, date(ny, 2024, time.July, 4, 0, 0), holidays[0])
	assert.Equal(t, "America/New_York", holidays[0].Location().String())
}

func TestIsOpenConvertsToExchangeZone(t *testing.T) {
	c := equityCalendar(t)

	// Friday before the DST change: New York is UTC-5.
	assert.True(t, c.IsOpen(date(time.UTC, 2024, time.March, 8, 14, 30), false))
	assert.False(t, c.IsOpen(date(time.UTC, 2024, time.March, 8, 14, 0), false))
	// Monday after the change: UTC-4.
	assert.True(t, c.IsOpen(date(time.UTC, 2024, time.March, 11, 13, 30), false))
	assert.False(t, c.IsOpen(date(time.UTC, 2024, time.March, 11, 13, 29), false))
}

func TestIsOpenBetweenSplitsDays(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t)

	fri23 := date(ny, 2024, time.July, 12, 23, 0)
	mon01 := date(ny, 2024, time.July, 15, 1, 0)
	assert.False(t, c.IsOpenBetween(fri23, mon01, false))

	fri15 := date(ny, 2024, time.July, 12, 15, 0)
	mon10 := date(ny, 2024, time.July, 15, 10, 0)
	assert.True(t, c.IsOpenBetween(fri15, mon10, false))

	// Only Monday's session overlaps.
	sat := date(ny, 2024, time.July, 13, 12, 0)
	assert.True(t, c.IsOpenBetween(sat, mon10, false))
	assert.False(t, c.IsOpenBetween(sat, date(ny, 2024, time.July, 15, 9, 30), false))

	// Extended hours reach further into Friday night.
	assert.True(t, c.IsOpenBetween(date(ny, 2024, time.July, 12, 19, 0), mon01, true))
	assert.False(t, c.IsOpenBetween(date(ny, 2024, time.July, 12, 19, 0), mon01, false))
}

func TestIsOpenBetweenSkipsHolidays(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	assert.False(t, c.IsOpenBetween(date(ny, 2024, time.July, 3, 21, 0), date(ny, 2024, time.July, 5, 3, 0), true))
	assert.True(t, c.IsOpenBetween(date(ny, 2024, time.July, 3, 21, 0), date(ny, 2024, time.July, 5, 5, 0), true))
}

func TestIsDateOpen(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	assert.True(t, c.IsDateOpen(date(ny, 2024, time.July, 3, 2, 0)), "date is open even before the session")
	assert.False(t, c.IsDateOpen(date(ny, 2024, time.July, 4, 12, 0)))
	assert.False(t, c.IsDateOpen(date(ny, 2024, time.July, 6, 12, 0)))
}

func TestIsOpenImpliesIsDateOpen(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	start := date(ny, 2024, time.July, 1, 0, 0)
	sawDateOnly := false
	for ts := start; ts.Before(start.AddDate(0, 0, 14)); ts = ts.Add(17 * time.Minute) {
		for _, ext := range []bool{false, true} {
			if c.IsOpen(ts, ext) {
				require.True(t, c.IsDateOpen(ts), "open at %s but date closed", ts)
			} else if c.IsDateOpen(ts) {
				sawDateOnly = true
			}
		}
	}
	assert.True(t, sawDateOnly, "an open date should contain closed instants")
}

func TestNextMarketOpen(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	got, err := c.NextMarketOpen(date(ny, 2024, time.July, 3, 3, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 9, 30), got)

	got, err = c.NextMarketOpen(date(ny, 2024, time.July, 3, 10, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 9, 30), got, "skips the holiday")

	got, err = c.NextMarketOpen(date(ny, 2024, time.July, 3, 10, 0), true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 4, 0), got)

	got, err = c.NextMarketOpen(date(ny, 2024, time.July, 5, 9, 30), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 8, 9, 30), got, "strictly after, across the weekend")
}

func TestNextMarketOpenHorizon(t *testing.T) {
	from := date(time.UTC, 2024, time.January, 1, 10, 0)
	holidays := func(n int) []time.Time {
		var out []time.Time
		for i := 0; i < n; i++ {
			out = append(out, from.AddDate(0, 0, i))
		}
		return out
	}

	_, err := openEveryDay(t, holidays(20)...).NextMarketOpen(from, false)
	require.ErrorIs(t, err, ErrNotFound)
	var serr *SearchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, SearchHorizon, serr.Horizon)
	assert.True(t, serr.From.Equal(from))
	assert.Contains(t, err.Error(), "15 days")
	assert.Contains(t, err.Error(), "2024-01-01T10:00:00Z")

	got, err := openEveryDay(t, holidays(10)...).NextMarketOpen(from, false)
	require.NoError(t, err)
	assertInstant(t, date(time.UTC, 2024, time.January, 11, 0, 0), got)

	_, err = equityCalendar(t).NextMarketClose(from, true)
	require.NoError(t, err)

	closed, err := NewTradingCalendar(time.UTC, nil, nil)
	require.NoError(t, err)
	_, err = closed.NextMarketClose(from, true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextMarketClose(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	got, err := c.NextMarketClose(date(ny, 2024, time.July, 3, 10, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 16, 0), got)

	got, err = c.NextMarketClose(date(ny, 2024, time.July, 3, 10, 0), true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 16, 0), got, "the regular session closes before post-market")

	got, err = c.NextMarketClose(date(ny, 2024, time.July, 3, 5, 0), true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 9, 30), got, "pre-market closes at the session open")

	got, err = c.NextMarketClose(date(ny, 2024, time.July, 3, 17, 0), true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 20, 0), got)

	got, err = c.NextMarketClose(date(ny, 2024, time.July, 3, 16, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 16, 0), got)

	_, err = AlwaysOpen(time.UTC).NextMarketClose(date(time.UTC, 2024, time.July, 3, 16, 0), false)
	assert.ErrorIs(t, err, ErrNotFound, "midnight is not a close when trading carries on")
	_, err = AlwaysOpen(time.UTC).NextMarketOpen(date(time.UTC, 2024, time.July, 3, 16, 0), false)
	assert.ErrorIs(t, err, ErrNotFound, "midnight is not an open when trading carries on")
}

func TestNextBoundaryAcrossMidnight(t *testing.T) {
	ny := newYork(t)
	sunday, err := NewWeeklySchedule(time.Sunday, Segment{Start: hm(17, 0), End: 24 * time.Hour, Kind: Market})
	require.NoError(t, err)
	friday, err := NewWeeklySchedule(time.Friday, Segment{Start: 0, End: hm(17, 0), Kind: Market})
	require.NoError(t, err)
	days := map[time.Weekday]WeeklySchedule{time.Sunday: sunday, time.Friday: friday}
	for day := time.Monday; day <= time.Thursday; day++ {
		days[day] = OpenAllDay(day)
	}
	fx, err := NewTradingCalendar(ny, []time.Time{date(ny, 2024, time.July, 10, 0, 0)}, days)
	require.NoError(t, err)

	got, err := fx.NextMarketClose(date(ny, 2024, time.July, 8, 12, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 10, 0, 0), got, "closes into the Wednesday holiday")

	got, err = fx.NextMarketOpen(date(ny, 2024, time.July, 8, 12, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 11, 0, 0), got, "reopens after the holiday")

	got, err = fx.NextMarketClose(date(ny, 2024, time.July, 11, 12, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 12, 17, 0), got)

	got, err = fx.NextMarketOpen(date(ny, 2024, time.July, 12, 12, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 14, 17, 0), got)
}

func TestNextMarketOpenExtendedSession(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t)

	got, err := c.NextMarketOpen(date(ny, 2024, time.July, 3, 5, 0), true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 9, 30), got)

	got, err = c.NextMarketOpen(date(ny, 2024, time.July, 3, 5, 0), false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 3, 9, 30), got)
}

func TestStartTimeForTradeBarsAlwaysOpen(t *testing.T) {
	c := AlwaysOpen(time.UTC)
	end := date(time.UTC, 2024, time.July, 10, 13, 0)

	got, err := c.StartTimeForTradeBars(end, 24*time.Hour, 5, false)
	require.NoError(t, err)
	assertInstant(t, date(time.UTC, 2024, time.July, 5, 0, 0), got)

	got, err = c.StartTimeForTradeBars(end, 24*time.Hour, 0, false)
	require.NoError(t, err)
	assertInstant(t, date(time.UTC, 2024, time.July, 10, 0, 0), got, "zero bars is the rounded end")
}

func TestStartTimeForTradeBarsSkipsWeekends(t *testing.T) {
	ny := newYork(t)

	got, err := equityCalendar(t).StartTimeForTradeBars(date(ny, 2024, time.July, 15, 10, 0), 24*time.Hour, 5, false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 8, 0, 0), got, "five business days back is the prior Monday")

	withHoliday := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))
	got, err = withHoliday.StartTimeForTradeBars(date(ny, 2024, time.July, 8, 10, 0), 24*time.Hour, 5, false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.June, 28, 0, 0), got)
}

func TestStartTimeForTradeBarsIntraday(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t)

	got, err := c.StartTimeForTradeBars(date(ny, 2024, time.July, 8, 11, 0), time.Hour, 3, false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 15, 0), got)

	got, err = c.StartTimeForTradeBars(date(ny, 2024, time.July, 8, 11, 20), time.Hour, 3, true)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 8, 8, 0), got)
}

func TestStartTimeForTradeBarsAcrossDST(t *testing.T) {
	ny := newYork(t)
	c := AlwaysOpen(ny)

	// 2024-03-10 is 23 hours long; daily bars still land on midnight.
	got, err := c.StartTimeForTradeBars(date(ny, 2024, time.March, 12, 9, 0), 24*time.Hour, 3, false)
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.March, 9, 0, 0), got)
}

func TestStartTimeForTradeBarsErrors(t *testing.T) {
	c := equityCalendar(t)
	end := date(time.UTC, 2024, time.July, 8, 15, 0)

	_, err := c.StartTimeForTradeBars(end, 0, 5, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = c.StartTimeForTradeBars(end, -time.Minute, 5, false)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	closed, err := NewTradingCalendar(time.UTC, nil, nil)
	require.NoError(t, err)
	_, err = closed.StartTimeForTradeBars(end, time.Hour, 1, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartTimeForTradeBarsStepLimit(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t)
	monday := date(ny, 2024, time.March, 11, 0, 0)

	saved := maxLookbackSteps
	maxLookbackSteps = 10_000
	t.Cleanup(func() { maxLookbackSteps = saved })

	_, err := c.StartTimeForTradeBars(monday, time.Microsecond, 1, false)
	require.ErrorIs(t, err, ErrNotFound)
	var serr *SearchError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 10*time.Millisecond, serr.Horizon)

	got, err := c.StartTimeForTradeBars(date(ny, 2024, time.March, 11, 10, 0), time.Minute, 30, false)
	require.NoError(t, err, "ordinary lookbacks stay well inside the limit")
	assertInstant(t, date(ny, 2024, time.March, 11, 9, 30), got)
}

func TestStartTimeForTradeBarsDefaultStepLimit(t *testing.T) {
	if testing.Short() {
		t.Skip("walks the full step limit")
	}
	ny := newYork(t)
	_, err := equityCalendar(t).StartTimeForTradeBars(date(ny, 2024, time.March, 11, 0, 0), time.Microsecond, 1, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTradeableDays(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))

	var got []int
	for day := range c.TradeableDays(date(ny, 2024, time.July, 1, 12, 0), date(ny, 2024, time.July, 8, 0, 0)) {
		got = append(got, day.Day())
	}
	assert.Equal(t, []int{1, 2, 3, 5, 8}, got)
	assert.Equal(t, 5, c.CountTradeableDays(date(ny, 2024, time.July, 1, 0, 0), date(ny, 2024, time.July, 8, 0, 0)))

	prev, err := c.PreviousTradingDay(date(ny, 2024, time.July, 8, 10, 0))
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 0, 0), prev)

	next, err := c.NextTradingDay(date(ny, 2024, time.July, 3, 10, 0))
	require.NoError(t, err)
	assertInstant(t, date(ny, 2024, time.July, 5, 0, 0), next)
}

func TestAlwaysOpen(t *testing.T) {
	c := AlwaysOpen(nil)
	assert.Equal(t, time.UTC, c.Location())
	assert.True(t, c.IsAlwaysOpen())
	assert.True(t, c.IsOpen(date(time.UTC, 2024, time.December, 25, 3, 0), false))
	assert.False(t, equityCalendar(t).IsAlwaysOpen())
}

func TestConcurrentReads(t *testing.T) {
	ny := newYork(t)
	c := equityCalendar(t, date(ny, 2024, time.July, 4, 0, 0))
	from := date(ny, 2024, time.July, 1, 0, 0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				ts := from.Add(time.Duration(i*offset) * time.Minute)
				c.IsOpen(ts, true)
				if _, err := c.NextMarketOpen(ts, false); err != nil {
					t.Errorf("NextMarketOpen(%s): %v", ts, err)
					return
				}
			}
		}(g + 1)
	}
	wg.Wait()
}
