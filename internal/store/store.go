// Package store defines storage interfaces for market hours definitions and
// historical bars, with SQLite and Parquet implementations.
package store

import (
	"context"
	"time"

	"marketclock/internal/domain"
	"marketclock/internal/marketdb"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars of one market and resolution.
	WriteBars(ctx context.Context, market domain.Market, res domain.Resolution, bars []domain.Bar) error

	// ReadBars returns bars for symbol whose start lies in [start, end),
	// ordered by start.
	ReadBars(ctx context.Context, symbol string, market domain.Market, res domain.Resolution, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all symbols with data for the market and resolution.
	ListSymbols(ctx context.Context, market domain.Market, res domain.Resolution) ([]string, error)
}

// MarketHoursStore persists market hours database entries.
type MarketHoursStore interface {
	// SaveEntry inserts or replaces the entry stored under key.
	SaveEntry(ctx context.Context, key string, entry marketdb.Entry) error

	// LoadEntries returns every stored entry by key.
	LoadEntries(ctx context.Context) (map[string]marketdb.Entry, error)

	// DeleteEntry removes the entry stored under key. Deleting a missing key
	// is not an error.
	DeleteEntry(ctx context.Context, key string) error
}
