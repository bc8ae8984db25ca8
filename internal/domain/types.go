// Package domain holds the market data types shared by the stores, the
// history provider and the transports.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Market identifies a trading venue group, e.g. "usa" or "fxcm".
type Market string

const (
	MarketUSA    Market = "usa"
	MarketCN     Market = "cn"
	MarketFXCM   Market = "fxcm"
	MarketOanda  Market = "oanda"
	MarketGDAX   Market = "gdax"
	MarketCME    Market = "cme"
	MarketAlways Market = "always"
)

// SecurityType is the asset class of a symbol.
type SecurityType string

const (
	SecurityTypeEquity SecurityType = "Equity"
	SecurityTypeForex  SecurityType = "Forex"
	SecurityTypeCrypto SecurityType = "Crypto"
	SecurityTypeFuture SecurityType = "Future"
	SecurityTypeOption SecurityType = "Option"
	SecurityTypeIndex  SecurityType = "Index"
	SecurityTypeCfd    SecurityType = "Cfd"
	SecurityTypeBase   SecurityType = "Base"
)

var securityTypes = []SecurityType{
	SecurityTypeEquity, SecurityTypeForex, SecurityTypeCrypto, SecurityTypeFuture,
	SecurityTypeOption, SecurityTypeIndex, SecurityTypeCfd, SecurityTypeBase,
}

// ParseSecurityType matches a security type name case-insensitively.
func ParseSecurityType(s string) (SecurityType, error) {
	for _, st := range securityTypes {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown security type %q", s)
}

// Resolution is the bar period of a data subscription.
type Resolution string

const (
	ResolutionTick   Resolution = "tick"
	ResolutionSecond Resolution = "second"
	ResolutionMinute Resolution = "minute"
	ResolutionHour   Resolution = "hour"
	ResolutionDaily  Resolution = "daily"
)

// Duration returns the bar length for the resolution; ticks have none.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// ParseResolution matches a resolution name case-insensitively.
func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(s))
	switch r {
	case ResolutionTick, ResolutionSecond, ResolutionMinute, ResolutionHour, ResolutionDaily:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q", s)
}

// Bar is an OHLCV bar. Timestamp is the bar's start in exchange time; the bar
// covers [Timestamp, Timestamp+Period).
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Period     time.Duration
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// EndTime returns the instant the bar closes.
func (b Bar) EndTime() time.Time {
	return b.Timestamp.Add(b.Period)
}
