package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"marketclock/internal/domain"
	"marketclock/internal/util"
)

// Compile-time interface check.
var _ BarStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, bar start
	PeriodMs   int64   `parquet:"period_ms"`
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// WriteBars writes bars grouped by symbol and partition, merging with any
// bars already on disk. Hourly and daily bars are partitioned by UTC year,
// finer resolutions by UTC date:
//
//	<DataDir>/<market>/<resolution>/<SYMBOL>/<YYYY>.parquet
//	<DataDir>/<market>/<resolution>/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, market domain.Market, res domain.Resolution, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	if res == domain.ResolutionTick {
		return fmt.Errorf("bars cannot be stored at %s resolution", res)
	}

	groups := make(map[string][]BarRecord)
	for _, b := range bars {
		path := s.barPath(b.Symbol, market, res, b.Timestamp)
		period := b.Period
		if period == 0 {
			period = res.Duration()
		}
		groups[path] = append(groups[path], BarRecord{
			Symbol:     strings.ToUpper(b.Symbol),
			Timestamp:  b.Timestamp.UnixMilli(),
			PeriodMs:   period.Milliseconds(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for path, records := range groups {
		existing, err := readParquetFile[BarRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}

// ReadBars reads bars for symbol whose start lies in [start, end). Bars are
// returned in UTC.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market domain.Market, res domain.Resolution, start, end time.Time) ([]domain.Bar, error) {
	if !start.Before(end) {
		return nil, nil
	}

	var bars []domain.Bar
	for _, path := range s.partitions(symbol, market, res, start, end) {
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || !ts.Before(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Period:     time.Duration(r.PeriodMs) * time.Millisecond,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data for the market and
// resolution.
func (s *ParquetStore) ListSymbols(_ context.Context, market domain.Market, res domain.Resolution) ([]string, error) {
	dir := filepath.Join(s.DataDir, string(market), string(res))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	slices.Sort(symbols)
	return symbols, nil
}

// yearly reports whether res is partitioned by year rather than by date.
func yearly(res domain.Resolution) bool {
	return res == domain.ResolutionHour || res == domain.ResolutionDaily
}

// barPath returns the partition file holding the bar starting at t.
func (s *ParquetStore) barPath(symbol string, market domain.Market, res domain.Resolution, t time.Time) string {
	t = t.UTC()
	name := t.Format(util.DateLayout)
	if yearly(res) {
		name = strconv.Itoa(t.Year())
	}
	return filepath.Join(s.DataDir, string(market), string(res), strings.ToUpper(symbol), name+".parquet")
}

// partitions lists the partition files that may hold bars in [start, end).
func (s *ParquetStore) partitions(symbol string, market domain.Market, res domain.Resolution, start, end time.Time) []string {
	start, last := start.UTC(), end.UTC().Add(-time.Nanosecond)

	var paths []string
	if yearly(res) {
		for year := start.Year(); year <= last.Year(); year++ {
			paths = append(paths, s.barPath(symbol, market, res, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)))
		}
		return paths
	}
	for d := util.Midnight(start); !d.After(last); d = util.NextMidnight(d) {
		paths = append(paths, s.barPath(symbol, market, res, d))
	}
	return paths
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns an error wrapping fs.ErrNotExist when path is
// missing.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	slices.SortFunc(merged, func(a, b BarRecord) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	return merged
}
