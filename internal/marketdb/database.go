// Package marketdb loads market hours databases and turns their entries into
// trading calendars. Entries are keyed "<SecurityType>-<market>-<symbol>",
// with "[*]" as the symbol wildcard.
package marketdb

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
	"marketclock/internal/util"
)

// Wildcard matches any symbol of a security type and market.
const Wildcard = "[*]"

// ErrEntryNotFound is returned when neither the symbol key nor its wildcard
// key exists.
var ErrEntryNotFound = errors.New("market hours entry not found")

// Key builds the database key for a security.
func Key(st domain.SecurityType, market domain.Market, symbol string) string {
	if symbol == "" {
		symbol = Wildcard
	}
	if symbol != Wildcard {
		symbol = strings.ToUpper(symbol)
	}
	return fmt.Sprintf("%s-%s-%s", st, strings.ToLower(string(market)), symbol)
}

// file is the on-disk layout shared by the JSON and YAML formats.
type file struct {
	Entries map[string]Entry `json:"entries" yaml:"entries"`
}

// Database is a read-mostly set of entries. Calendars are built on first use
// and cached; they are immutable, so callers may share them freely.
type Database struct {
	entries map[string]Entry
	zones   *ZoneRegistry

	mu        sync.RWMutex
	calendars map[string]*calendar.TradingCalendar
}

// New creates a Database over a copy of entries.
func New(entries map[string]Entry, zones *ZoneRegistry) *Database {
	if zones == nil {
		zones = DefaultZones
	}
	return &Database{
		entries:   maps.Clone(entries),
		zones:     zones,
		calendars: make(map[string]*calendar.TradingCalendar),
	}
}

// Load reads a database file. The format follows the extension: .json, or
// .yaml/.yml.
func Load(path string) (*Database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	db, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return db, nil
}

// Parse decodes database content. format is a file extension with or
// without the leading dot.
func Parse(data []byte, format string) (*Database, error) {
	var f file
	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "json":
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported market hours format %q", format)
	}
	if len(f.Entries) == 0 {
		return nil, fmt.Errorf("no entries")
	}
	return New(f.Entries, nil), nil
}

// Marshal encodes the database as JSON in the same layout Load accepts.
func (db *Database) Marshal() ([]byte, error) {
	return json.MarshalIndent(file{Entries: db.entries}, "", "  ")
}

// Keys returns all entry keys in sorted order.
func (db *Database) Keys() []string {
	return slices.Sorted(maps.Keys(db.entries))
}

// Entries returns a copy of the raw entries.
func (db *Database) Entries() map[string]Entry {
	return maps.Clone(db.entries)
}

// Entry looks up the entry for a security, falling back to the wildcard
// symbol. It also returns the key that matched.
func (db *Database) Entry(st domain.SecurityType, market domain.Market, symbol string) (Entry, string, error) {
	for _, key := range []string{Key(st, market, symbol), Key(st, market, Wildcard)} {
		if e, ok := db.entries[key]; ok {
			return e, key, nil
		}
	}
	return Entry{}, "", fmt.Errorf("%w: %s", ErrEntryNotFound, Key(st, market, symbol))
}

// ExchangeHours returns the trading calendar for a security.
func (db *Database) ExchangeHours(st domain.SecurityType, market domain.Market, symbol string) (*calendar.TradingCalendar, error) {
	_, key, err := db.Entry(st, market, symbol)
	if err != nil {
		return nil, err
	}
	return db.CalendarForKey(key)
}

// CalendarForKey returns the trading calendar for an exact entry key.
func (db *Database) CalendarForKey(key string) (*calendar.TradingCalendar, error) {
	db.mu.RLock()
	cal, ok := db.calendars[key]
	db.mu.RUnlock()
	if ok {
		return cal, nil
	}

	e, ok := db.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}
	cal, err := e.Build(db.zones)
	if err != nil {
		return nil, fmt.Errorf("building calendar %s: %w", key, err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.calendars[key]; ok {
		return existing, nil
	}
	db.calendars[key] = cal
	return cal, nil
}

// DataTimeZone returns the time zone raw data for a security is stored in.
func (db *Database) DataTimeZone(st domain.SecurityType, market domain.Market, symbol string) (*time.Location, error) {
	e, _, err := db.Entry(st, market, symbol)
	if err != nil {
		return nil, err
	}
	return db.zones.Resolve(e.DataTimeZone)
}

// WithHolidays returns a new Database in which the entry for key also closes
// on the given dates. The receiver is left untouched.
func (db *Database) WithHolidays(key string, holidays []time.Time) (*Database, error) {
	e, ok := db.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}

	seen := make(map[string]struct{}, len(e.Holidays)+len(holidays))
	merged := make([]string, 0, len(e.Holidays)+len(holidays))
	add := func(s string) {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	for _, h := range e.Holidays {
		d, err := util.ParseDate(h, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("entry %s holiday: %w", key, err)
		}
		add(d.Format(util.DateLayout))
	}
	for _, h := range holidays {
		add(h.Format(util.DateLayout))
	}
	slices.Sort(merged)
	e.Holidays = merged

	entries := maps.Clone(db.entries)
	entries[key] = e
	return New(entries, db.zones), nil
}

// WithEntries returns a new Database in which entries replace or add to the
// receiver's entries key by key.
func (db *Database) WithEntries(entries map[string]Entry) *Database {
	merged := maps.Clone(db.entries)
	maps.Copy(merged, entries)
	return New(merged, db.zones)
}
