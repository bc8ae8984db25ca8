package marketdb

import (
	"sync/atomic"
	"time"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
)

// Holder publishes the current Database to concurrent readers. Syncs swap
// in a new Database; readers never see a partially updated one.
type Holder struct {
	db atomic.Pointer[Database]
}

// NewHolder returns a Holder serving db.
func NewHolder(db *Database) *Holder {
	h := &Holder{}
	h.db.Store(db)
	return h
}

// Load returns the current Database.
func (h *Holder) Load() *Database { return h.db.Load() }

// Store replaces the current Database.
func (h *Holder) Store(db *Database) { h.db.Store(db) }

// ExchangeHours resolves a calendar against the current Database.
func (h *Holder) ExchangeHours(st domain.SecurityType, market domain.Market, symbol string) (*calendar.TradingCalendar, error) {
	return h.Load().ExchangeHours(st, market, symbol)
}

// CalendarForKey resolves a calendar by key against the current Database.
func (h *Holder) CalendarForKey(key string) (*calendar.TradingCalendar, error) {
	return h.Load().CalendarForKey(key)
}

// DataTimeZone resolves a data time zone against the current Database.
func (h *Holder) DataTimeZone(st domain.SecurityType, market domain.Market, symbol string) (*time.Location, error) {
	return h.Load().DataTimeZone(st, market, symbol)
}

// Keys lists the entry keys of the current Database.
func (h *Holder) Keys() []string {
	return h.Load().Keys()
}
