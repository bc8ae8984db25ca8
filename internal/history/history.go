// Package history serves the last N bars of a symbol, counting only bars
// during which its exchange was open.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
	"marketclock/internal/store"
	"marketclock/internal/util"
)

// CalendarSource resolves the trading calendar of a security.
// *marketdb.Database and *marketdb.Holder satisfy it.
type CalendarSource interface {
	ExchangeHours(st domain.SecurityType, market domain.Market, symbol string) (*calendar.TradingCalendar, error)
}

// Request asks for the Count most recent bars ending at End.
type Request struct {
	SecurityType domain.SecurityType
	Market       domain.Market
	Symbol       string
	Resolution   domain.Resolution
	End          time.Time
	Count        int
	Extended     bool
}

// Result is the window that was searched and the bars found in it.
type Result struct {
	Start time.Time
	End   time.Time
	Bars  []domain.Bar
}

// Provider reads bar windows from a BarStore.
type Provider struct {
	calendars CalendarSource
	bars      store.BarStore
	logger    *slog.Logger
}

// NewProvider creates a Provider.
func NewProvider(calendars CalendarSource, bars store.BarStore, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{calendars: calendars, bars: bars, logger: logger}
}

// Bars returns at most req.Count bars ending at req.End. The window start is
// the instant req.Count open bars before req.End rounded down to the bar
// size, so bars still forming at req.End are left out. Bars during which the
// exchange was closed are dropped.
func (p *Provider) Bars(ctx context.Context, req Request) (Result, error) {
	size := req.Resolution.Duration()
	if size <= 0 {
		return Result{}, fmt.Errorf("%w: resolution %q has no bar size", calendar.ErrInvalidArgument, req.Resolution)
	}
	if req.Count <= 0 {
		return Result{}, fmt.Errorf("%w: count %d must be positive", calendar.ErrInvalidArgument, req.Count)
	}

	cal, err := p.calendars.ExchangeHours(req.SecurityType, req.Market, req.Symbol)
	if err != nil {
		return Result{}, err
	}

	start, err := cal.StartTimeForTradeBars(req.End, size, req.Count, req.Extended)
	if err != nil {
		return Result{}, err
	}
	end := util.RoundDown(req.End.In(cal.Location()), size)

	bars, err := p.bars.ReadBars(ctx, req.Symbol, req.Market, req.Resolution, start, end)
	if err != nil {
		return Result{}, fmt.Errorf("reading %s bars: %w", req.Symbol, err)
	}

	open := bars[:0]
	for _, b := range bars {
		if b.Period == 0 {
			b.Period = size
		}
		if cal.IsOpenBetween(b.Timestamp, b.EndTime(), req.Extended) {
			open = append(open, b)
		}
	}
	if dropped := len(bars) - len(open); dropped > 0 {
		p.logger.Debug("dropped closed-market bars", "symbol", req.Symbol, "dropped", dropped)
	}
	if len(open) > req.Count {
		open = open[len(open)-req.Count:]
	}

	return Result{Start: start, End: end, Bars: open}, nil
}
