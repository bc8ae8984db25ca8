// Package httpapi serves trading calendar queries and bar history as JSON
// over HTTP.
package httpapi

// OpenResponse answers the open and date-open queries.
type OpenResponse struct {
	Key  string `json:"key"`
	Open bool   `json:"open"`
}

// TimeResponse answers the next-open and next-close queries.
type TimeResponse struct {
	Key  string `json:"key"`
	Time string `json:"time"`
}

// StartTimeResponse answers the start-time query.
type StartTimeResponse struct {
	Key   string `json:"key"`
	Start string `json:"start"`
}

// MarketsResponse lists the market hours database keys.
type MarketsResponse struct {
	Markets []string `json:"markets"`
}

// SegmentJSON is one segment of a day's schedule.
type SegmentJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
	State string `json:"state"`
}

// DayJSON is the schedule of one weekday.
type DayJSON struct {
	Day      string        `json:"day"`
	Segments []SegmentJSON `json:"segments"`
}

// CalendarResponse describes a whole trading calendar.
type CalendarResponse struct {
	Key        string    `json:"key"`
	TimeZone   string    `json:"timeZone"`
	AlwaysOpen bool      `json:"alwaysOpen"`
	Holidays   []string  `json:"holidays"`
	Days       []DayJSON `json:"days"`
}

// BarJSON is one OHLCV bar.
type BarJSON struct {
	Time       string  `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     int64   `json:"volume"`
	TradeCount int64   `json:"tradeCount,omitempty"`
	VWAP       float64 `json:"vwap,omitempty"`
}

// BarsResponse answers the bar history query.
type BarsResponse struct {
	Symbol string    `json:"symbol"`
	Start  string    `json:"start"`
	End    string    `json:"end"`
	Bars   []BarJSON `json:"bars"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
