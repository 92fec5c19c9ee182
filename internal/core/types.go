package core

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// Period is the length of the historical window to fetch
type Period string

const (
	Period1Mo Period = "1mo"
	Period3Mo Period = "3mo"
	Period6Mo Period = "6mo"
	Period1Y  Period = "1y"
	Period2Y  Period = "2y"
)

// Periods lists the accepted periods in display order
var Periods = []Period{Period1Mo, Period3Mo, Period6Mo, Period1Y, Period2Y}

// Interval is the bar granularity
type Interval string

const (
	Interval1D  Interval = "1d"
	Interval1Wk Interval = "1wk"
	Interval1H  Interval = "1h"
)

// Intervals lists the accepted intervals in display order
var Intervals = []Interval{Interval1D, Interval1Wk, Interval1H}

const (
	DefaultSymbol   = "AAPL"
	DefaultPeriod   = Period3Mo
	DefaultInterval = Interval1D
)

// Valid reports whether p is one of the accepted periods
func (p Period) Valid() bool {
	for _, v := range Periods {
		if p == v {
			return true
		}
	}
	return false
}

// Valid reports whether i is one of the accepted intervals
func (i Interval) Valid() bool {
	for _, v := range Intervals {
		if i == v {
			return true
		}
	}
	return false
}

// Intraday reports whether bars at this interval carry a time of day
func (i Interval) Intraday() bool {
	return i == Interval1H
}

// validSymbol matches tickers like AAPL, BRK.B, BTC-USD, ^GSPC, 0700.HK, EURUSD=X
var validSymbol = regexp.MustCompile(`^\^?[A-Z0-9][A-Z0-9.\-=]{0,19}$`)

// NormalizeSymbol trims and upper-cases a ticker and checks its format
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", WrapError(ErrInvalidRequest, fmt.Errorf("symbol cannot be empty"))
	}
	if !validSymbol.MatchString(s) {
		return "", WrapError(ErrInvalidRequest, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return s, nil
}

// Query identifies one historical window for one symbol
type Query struct {
	Symbol   string
	Period   Period
	Interval Interval
}

// NewQuery normalizes raw user input, applying defaults for empty period and interval
func NewQuery(symbol, period, interval string) (Query, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return Query{}, err
	}

	p := Period(strings.ToLower(strings.TrimSpace(period)))
	if p == "" {
		p = DefaultPeriod
	}
	if !p.Valid() {
		return Query{}, WrapError(ErrInvalidRequest, fmt.Errorf("unsupported period: %s", period))
	}

	i := Interval(strings.ToLower(strings.TrimSpace(interval)))
	if i == "" {
		i = DefaultInterval
	}
	if !i.Valid() {
		return Query{}, WrapError(ErrInvalidRequest, fmt.Errorf("unsupported interval: %s", interval))
	}

	return Query{Symbol: sym, Period: p, Interval: i}, nil
}

// Key returns the cache key for the query
func (q Query) Key() string {
	return q.Symbol + "|" + string(q.Period) + "|" + string(q.Interval)
}

func (q Query) String() string {
	return fmt.Sprintf("%s %s/%s", q.Symbol, q.Period, q.Interval)
}

// Bar is one OHLCV candle. A missing close is NaN.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HasClose reports whether the bar carries a numeric close
func (b Bar) HasClose() bool {
	return !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0)
}

// Row is a bar with its derived indicator columns
type Row struct {
	Bar
	SMA null.Float `json:"sma_14"`
	EMA null.Float `json:"ema_14"`
	RSI null.Float `json:"rsi_14"`
}

// MarshalJSON encodes a missing close as null.
func (r Row) MarshalJSON() ([]byte, error) {
	closePrice := null.Float{}
	if r.HasClose() {
		closePrice = null.FloatFrom(r.Close)
	}
	return json.Marshal(struct {
		Time   time.Time  `json:"time"`
		Open   float64    `json:"open"`
		High   float64    `json:"high"`
		Low    float64    `json:"low"`
		Close  null.Float `json:"close"`
		Volume float64    `json:"volume"`
		SMA    null.Float `json:"sma_14"`
		EMA    null.Float `json:"ema_14"`
		RSI    null.Float `json:"rsi_14"`
	}{r.Time, r.Open, r.High, r.Low, closePrice, r.Volume, r.SMA, r.EMA, r.RSI})
}

// Closes extracts close prices in order
func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
