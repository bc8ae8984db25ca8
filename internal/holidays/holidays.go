// Package holidays generates exchange holiday lists from rule-based
// calendars, for markets whose hours database does not spell them out.
package holidays

import (
	"time"

	cal "github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/aa"
	"github.com/rickar/cal/v2/us"
)

// juneteenthFirstYear is the first year the NYSE closed for Juneteenth.
const juneteenthFirstYear = 2022

var usEquity = cal.NewBusinessCalendar()

func init() {
	usEquity.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.PresidentsDay,
		aa.GoodFriday,
		us.MemorialDay,
		us.Juneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	)
}

// IsUSEquityHoliday reports whether the US equity markets are closed for a
// holiday on t's date.
func IsUSEquityHoliday(t time.Time) bool {
	_, observed, h := usEquity.IsHoliday(t)
	if !observed {
		return false
	}
	switch h {
	case us.Juneteenth:
		return t.Year() >= juneteenthFirstYear
	case us.NewYear:
		// A Saturday New Year's Day is not made up on the Friday before.
		return t.Month() == time.January
	}
	return true
}

// USEquity returns the full-day US equity market closures from fromYear
// through toYear inclusive, as UTC midnights in ascending order.
func USEquity(fromYear, toYear int) []time.Time {
	var out []time.Time
	end := time.Date(toYear+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	for d := time.Date(fromYear, time.January, 1, 0, 0, 0, 0, time.UTC); d.Before(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if IsUSEquityHoliday(d) {
			out = append(out, d)
		}
	}
	return out
}
