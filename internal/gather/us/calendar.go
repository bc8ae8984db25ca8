// Package us syncs US equity holidays from the Alpaca trading calendar.
package us

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"golang.org/x/time/rate"

	"marketclock/internal/gather"
	"marketclock/internal/marketdb"
	"marketclock/internal/store"
	"marketclock/internal/util"
)

// CalendarClient is the subset of the Alpaca client used here.
// *alpaca.Client satisfies it.
type CalendarClient interface {
	GetCalendar(req alpaca.GetCalendarRequest) ([]alpaca.CalendarDay, error)
}

// NewAlpacaClient returns an Alpaca trading client for calendar requests.
func NewAlpacaClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

const maxAttempts = 3

var retryDelay = time.Second

// HolidaysFromCalendar returns every weekday in [start, end] that the broker
// calendar covers but does not list as a session. Weekdays before the first
// or after the last listed session are not reported, since the calendar is
// only published a few years ahead. Dates are UTC midnights.
func HolidaysFromCalendar(ctx context.Context, client CalendarClient, limiter *rate.Limiter, start, end time.Time) ([]time.Time, error) {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	r := gather.DateRange{
		Start: dateOf(start),
		End:   dateOf(end),
	}

	sessions := make(map[string]struct{})
	var first, last time.Time
	for _, chunk := range r.SplitYears() {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var days []alpaca.CalendarDay
		err := util.Retry(ctx, maxAttempts, retryDelay, func() error {
			var err error
			days, err = client.GetCalendar(alpaca.GetCalendarRequest{Start: chunk.Start, End: chunk.End})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("GetCalendar %s..%s: %w",
				chunk.Start.Format(util.DateLayout), chunk.End.Format(util.DateLayout), err)
		}

		for _, d := range days {
			t, err := time.Parse(util.DateLayout, d.Date)
			if err != nil {
				return nil, fmt.Errorf("calendar day %q: %w", d.Date, err)
			}
			sessions[d.Date] = struct{}{}
			if first.IsZero() || t.Before(first) {
				first = t
			}
			if t.After(last) {
				last = t
			}
		}
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	var holidays []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if _, ok := sessions[d.Format(util.DateLayout)]; !ok {
			holidays = append(holidays, d)
		}
	}
	return holidays, nil
}

// dateOf maps t to the UTC midnight of its calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// HolidaySync periodically folds broker calendar holidays into one market
// hours entry, persists the entry and publishes the updated database.
type HolidaySync struct {
	Client CalendarClient
	Key    string

	// Years of calendar to request before and after the current year.
	Back, Ahead int
	Interval    time.Duration

	// Current returns the database to extend. Publish receives the result.
	Current func() *marketdb.Database
	Publish func(*marketdb.Database)

	// Store is optional.
	Store store.MarketHoursStore

	Limiter *rate.Limiter
	Logger  *slog.Logger

	now func() time.Time
}

var _ gather.Gatherer = (*HolidaySync)(nil)

// Name returns the gatherer identifier.
func (h *HolidaySync) Name() string { return "us-holiday-sync" }

// SyncOnce runs a single sync and returns the published database.
func (h *HolidaySync) SyncOnce(ctx context.Context) (*marketdb.Database, error) {
	now := time.Now
	if h.now != nil {
		now = h.now
	}
	year := now().Year()
	start := time.Date(year-h.Back, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year+h.Ahead, time.December, 31, 0, 0, 0, 0, time.UTC)

	holidays, err := HolidaysFromCalendar(ctx, h.Client, h.Limiter, start, end)
	if err != nil {
		return nil, err
	}

	db, err := h.Current().WithHolidays(h.Key, holidays)
	if err != nil {
		return nil, err
	}

	if h.Store != nil {
		entry := db.Entries()[h.Key]
		if err := h.Store.SaveEntry(ctx, h.Key, entry); err != nil {
			return nil, fmt.Errorf("saving %s: %w", h.Key, err)
		}
	}
	if h.Publish != nil {
		h.Publish(db)
	}

	h.logger().Info("holidays synced",
		"key", h.Key,
		"from", start.Format(util.DateLayout),
		"to", end.Format(util.DateLayout),
		"holidays", len(holidays),
	)
	return db, nil
}

// Run syncs immediately and then every Interval until ctx is cancelled.
// Failed syncs are logged and retried on the next tick.
func (h *HolidaySync) Run(ctx context.Context) error {
	if h.Interval <= 0 {
		return fmt.Errorf("holiday sync interval must be positive, got %s", h.Interval)
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		if _, err := h.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			h.logger().Error("holiday sync failed", "key", h.Key, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *HolidaySync) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
