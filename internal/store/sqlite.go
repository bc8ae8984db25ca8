package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketclock/internal/marketdb"
	"marketclock/internal/util"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ MarketHoursStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS market_hours (
	key                TEXT PRIMARY KEY,
	data_time_zone     TEXT NOT NULL,
	exchange_time_zone TEXT NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS market_hours_segments (
	key        TEXT NOT NULL,
	weekday    INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	end_time   TEXT NOT NULL,
	state      TEXT NOT NULL,
	PRIMARY KEY (key, weekday, position)
);
CREATE TABLE IF NOT EXISTS market_hours_holidays (
	key  TEXT NOT NULL,
	date TEXT NOT NULL,
	PRIMARY KEY (key, date)
);
`

// SQLiteStore implements MarketHoursStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema if needed and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serialises writers and keeps ":memory:" usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveEntry replaces the entry under key. Holiday dates are normalised to
// YYYY-MM-DD.
func (s *SQLiteStore) SaveEntry(ctx context.Context, key string, entry marketdb.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteEntry(ctx, tx, key); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO market_hours (key, data_time_zone, exchange_time_zone, updated_at) VALUES (?, ?, ?, ?)`,
		key, entry.DataTimeZone, entry.ExchangeTimeZone, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("inserting %s: %w", key, err)
	}

	for day := time.Sunday; day <= time.Saturday; day++ {
		for pos, seg := range entry.Day(day) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO market_hours_segments (key, weekday, position, start_time, end_time, state) VALUES (?, ?, ?, ?, ?, ?)`,
				key, int(day), pos, seg.Start, seg.End, seg.State,
			); err != nil {
				return fmt.Errorf("inserting %s %s segment: %w", key, day, err)
			}
		}
	}

	for _, h := range entry.Holidays {
		d, err := util.ParseDate(h, time.UTC)
		if err != nil {
			return fmt.Errorf("entry %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO market_hours_holidays (key, date) VALUES (?, ?)`,
			key, d.Format(util.DateLayout),
		); err != nil {
			return fmt.Errorf("inserting %s holiday: %w", key, err)
		}
	}

	return tx.Commit()
}

// LoadEntries reads every stored entry.
func (s *SQLiteStore) LoadEntries(ctx context.Context) (map[string]marketdb.Entry, error) {
	entries := make(map[string]marketdb.Entry)

	rows, err := s.db.QueryContext(ctx, `SELECT key, data_time_zone, exchange_time_zone FROM market_hours`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key string
		var e marketdb.Entry
		if err := rows.Scan(&key, &e.DataTimeZone, &e.ExchangeTimeZone); err != nil {
			rows.Close()
			return nil, err
		}
		entries[key] = e
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT key, weekday, start_time, end_time, state FROM market_hours_segments ORDER BY key, weekday, position`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key string
		var weekday int
		var seg marketdb.SegmentSpec
		if err := rows.Scan(&key, &weekday, &seg.Start, &seg.End, &seg.State); err != nil {
			rows.Close()
			return nil, err
		}
		e, ok := entries[key]
		if !ok {
			continue
		}
		day := time.Weekday(weekday)
		e.SetDay(day, append(e.Day(day), seg))
		entries[key] = e
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT key, date FROM market_hours_holidays ORDER BY key, date`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var key, date string
		if err := rows.Scan(&key, &date); err != nil {
			rows.Close()
			return nil, err
		}
		if e, ok := entries[key]; ok {
			e.Holidays = append(e.Holidays, date)
			entries[key] = e
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	return entries, nil
}

// DeleteEntry removes the entry stored under key.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteEntry(ctx, tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteEntry(ctx context.Context, tx *sql.Tx, key string) error {
	for _, table := range []string{"market_hours_holidays", "market_hours_segments", "market_hours"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE key = ?`, key); err != nil {
			return fmt.Errorf("deleting %s from %s: %w", key, table, err)
		}
	}
	return nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	return rows.Close()
}
