package marketdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
)

func loadTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Load(filepath.Join("testdata", "market-hours.json"))
	require.NoError(t, err)
	return db
}

func TestKey(t *testing.T) {
	assert.Equal(t, "Equity-usa-SPY", Key(domain.SecurityTypeEquity, "USA", "spy"))
	assert.Equal(t, "Forex-fxcm-[*]", Key(domain.SecurityTypeForex, domain.MarketFXCM, ""))
}

func TestLoadJSON(t *testing.T) {
	db := loadTestDB(t)
	assert.Equal(t, []string{"Crypto-gdax-[*]", "Equity-usa-SPY", "Equity-usa-[*]", "Forex-fxcm-[*]"}, db.Keys())

	ny, err := DefaultZones.Resolve("America/New_York")
	require.NoError(t, err)

	cal, err := db.ExchangeHours(domain.SecurityTypeEquity, domain.MarketUSA, "AAPL")
	require.NoError(t, err)
	assert.Same(t, ny, cal.Location(), "zones are shared through the registry")
	assert.True(t, cal.IsOpen(time.Date(2024, 7, 3, 5, 0, 0, 0, ny), true))
	assert.False(t, cal.IsOpen(time.Date(2024, 7, 4, 10, 0, 0, 0, ny), false), "7/4/2024 is a holiday")
	assert.False(t, cal.IsDateOpen(time.Date(2024, 12, 25, 10, 0, 0, 0, ny)))
}

func TestEntrySymbolOverridesWildcard(t *testing.T) {
	db := loadTestDB(t)

	_, key, err := db.Entry(domain.SecurityTypeEquity, domain.MarketUSA, "spy")
	require.NoError(t, err)
	assert.Equal(t, "Equity-usa-SPY", key)

	cal, err := db.ExchangeHours(domain.SecurityTypeEquity, domain.MarketUSA, "SPY")
	require.NoError(t, err)
	ny := cal.Location()
	assert.False(t, cal.IsOpen(time.Date(2024, 7, 3, 5, 0, 0, 0, ny), true), "SPY entry has no extended hours")

	_, key, err = db.Entry(domain.SecurityTypeEquity, domain.MarketUSA, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Equity-usa-[*]", key)

	_, _, err = db.Entry(domain.SecurityTypeOption, domain.MarketUSA, "SPY")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestCalendarForKeyCaches(t *testing.T) {
	db := loadTestDB(t)

	a, err := db.CalendarForKey("Crypto-gdax-[*]")
	require.NoError(t, err)
	b, err := db.CalendarForKey("Crypto-gdax-[*]")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.True(t, a.IsAlwaysOpen())

	_, err = db.CalendarForKey("Future-cme-ES")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestForexEndOfDaySegments(t *testing.T) {
	db := loadTestDB(t)
	cal, err := db.ExchangeHours(domain.SecurityTypeForex, domain.MarketFXCM, "EURUSD")
	require.NoError(t, err)
	ny := cal.Location()

	assert.True(t, cal.IsOpen(time.Date(2024, 7, 7, 23, 59, 0, 0, ny), false))
	assert.True(t, cal.IsOpenBetween(time.Date(2024, 7, 7, 16, 0, 0, 0, ny), time.Date(2024, 7, 8, 1, 0, 0, 0, ny), false))
	assert.False(t, cal.IsOpen(time.Date(2024, 7, 6, 12, 0, 0, 0, ny), false))

	open, err := cal.NextMarketOpen(time.Date(2024, 7, 5, 18, 0, 0, 0, ny), false)
	require.NoError(t, err)
	assert.True(t, open.Equal(time.Date(2024, 7, 7, 17, 0, 0, 0, ny)), "got %s", open)
}

func TestDataTimeZone(t *testing.T) {
	db := loadTestDB(t)
	loc, err := db.DataTimeZone(domain.SecurityTypeCrypto, domain.MarketGDAX, "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoadYAML(t *testing.T) {
	db, err := Load(filepath.Join("testdata", "cn.yaml"))
	require.NoError(t, err)

	cal, err := db.ExchangeHours(domain.SecurityTypeEquity, domain.MarketCN, "600000")
	require.NoError(t, err)
	sh := cal.Location()

	assert.True(t, cal.IsOpen(time.Date(2024, 9, 30, 10, 0, 0, 0, sh), false))
	assert.False(t, cal.IsOpen(time.Date(2024, 9, 30, 12, 0, 0, 0, sh), false), "lunch break")
	assert.False(t, cal.IsOpen(time.Date(2024, 10, 1, 10, 0, 0, 0, sh), false), "holiday")

	next, err := cal.NextMarketOpen(time.Date(2024, 9, 30, 12, 0, 0, 0, sh), false)
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 9, 30, 13, 0, 0, 0, sh)), "got %s", next)
}

func TestBuildRejectsBadEntries(t *testing.T) {
	bad := AlwaysOpenEntry("UTC")
	bad.Monday = []SegmentSpec{{Start: "09:00", End: "12:00"}, {Start: "11:00", End: "13:00"}}
	_, err := bad.Build(DefaultZones)
	assert.ErrorIs(t, err, calendar.ErrInvalidArgument)

	bad = AlwaysOpenEntry("UTC")
	bad.Tuesday = []SegmentSpec{{Start: "9am", End: "12:00"}}
	_, err = bad.Build(DefaultZones)
	assert.ErrorIs(t, err, calendar.ErrInvalidArgument)

	bad = AlwaysOpenEntry("UTC")
	bad.Wednesday = []SegmentSpec{{Start: "09:00", End: "12:00", State: "auction"}}
	_, err = bad.Build(DefaultZones)
	assert.ErrorIs(t, err, calendar.ErrInvalidArgument)

	bad = AlwaysOpenEntry("Mars/Olympus_Mons")
	_, err = bad.Build(DefaultZones)
	assert.Error(t, err)

	bad = AlwaysOpenEntry("UTC")
	bad.Holidays = []string{"someday"}
	_, err = bad.Build(DefaultZones)
	assert.Error(t, err)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse([]byte(`entries: {}`), "toml")
	assert.Error(t, err)
	_, err = Parse([]byte(`{"entries": {}}`), ".json")
	assert.Error(t, err, "empty databases are rejected")
}

func TestWithHolidays(t *testing.T) {
	db := loadTestDB(t)
	key := "Equity-usa-[*]"
	extra := []time.Time{
		time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC),
	}

	updated, err := db.WithHolidays(key, extra)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-07-04", "2024-11-28", "2024-12-25"}, updated.Entries()[key].Holidays)
	assert.Equal(t, []string{"7/4/2024", "2024-12-25"}, db.Entries()[key].Holidays, "original untouched")

	cal, err := updated.CalendarForKey(key)
	require.NoError(t, err)
	assert.False(t, cal.IsDateOpen(time.Date(2024, 11, 28, 12, 0, 0, 0, cal.Location())))

	_, err = db.WithHolidays("Equity-xyz-[*]", extra)
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestMarshalRoundTrip(t *testing.T) {
	db := loadTestDB(t)
	data, err := db.Marshal()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, db.Entries(), again.Entries())
}

func TestHolderSwap(t *testing.T) {
	db, err := Load("testdata/market-hours.json")
	require.NoError(t, err)
	h := NewHolder(db)

	before, err := h.ExchangeHours(domain.SecurityTypeEquity, domain.MarketUSA, "AAPL")
	require.NoError(t, err)
	nov28 := time.Date(2024, 11, 28, 12, 0, 0, 0, before.Location())
	assert.False(t, before.IsHoliday(nov28))

	updated, err := db.WithHolidays("Equity-usa-[*]", []time.Time{time.Date(2024, 11, 28, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	h.Store(updated)

	after, err := h.CalendarForKey("Equity-usa-[*]")
	require.NoError(t, err)
	assert.True(t, after.IsHoliday(nov28))
	assert.Same(t, updated, h.Load())
}

func TestWithEntries(t *testing.T) {
	db := loadTestDB(t)
	overlay := db.WithEntries(map[string]Entry{
		"Equity-usa-SPY": AlwaysOpenEntry("America/New_York"),
		"Index-usa-[*]":  AlwaysOpenEntry("America/New_York"),
	})

	assert.Len(t, overlay.Keys(), len(db.Keys())+1)
	cal, err := overlay.CalendarForKey("Equity-usa-SPY")
	require.NoError(t, err)
	assert.True(t, cal.IsAlwaysOpen())

	orig, err := db.CalendarForKey("Equity-usa-SPY")
	require.NoError(t, err)
	assert.False(t, orig.IsAlwaysOpen())
}
