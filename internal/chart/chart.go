// Package chart shapes an enriched series into the series drawn by the dashboard.
// Undefined indicator values and bars without a close become gaps, not points.
package chart

import (
	"github.com/guregu/null/v6"
	"github.com/newthinker/tadash/internal/core"
)

const (
	Overbought = 70.0
	Oversold   = 30.0
)

// Candle is one OHLC point; Time is unix seconds
type Candle struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Point is one line-series value; Time is unix seconds
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Line is a named, colored line series
type Line struct {
	Name   string  `json:"name"`
	Color  string  `json:"color"`
	Width  int     `json:"width"`
	Points []Point `json:"points"`
}

// Level is a horizontal reference line
type Level struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
	Label string  `json:"label"`
}

// PricePanel is the candlestick chart with moving-average overlays
type PricePanel struct {
	Title   string   `json:"title"`
	Height  int      `json:"height"`
	Candles []Candle `json:"candles"`
	Lines   []Line   `json:"lines"`
}

// RSIPanel is the oscillator chart with its reference levels
type RSIPanel struct {
	Title  string  `json:"title"`
	Height int     `json:"height"`
	Line   Line    `json:"line"`
	Levels []Level `json:"levels"`
}

// Chart holds both panels
type Chart struct {
	Price PricePanel `json:"price"`
	RSI   RSIPanel   `json:"rsi"`
}

// Build converts rows into chart panels for symbol
func Build(symbol string, rows []core.Row) Chart {
	candles := make([]Candle, 0, len(rows))
	sma := make([]Point, 0, len(rows))
	ema := make([]Point, 0, len(rows))
	rsi := make([]Point, 0, len(rows))

	for _, r := range rows {
		ts := r.Time.Unix()
		if r.HasClose() {
			candles = append(candles, Candle{Time: ts, Open: r.Open, High: r.High, Low: r.Low, Close: r.Close})
		}
		sma = appendValid(sma, ts, r.SMA)
		ema = appendValid(ema, ts, r.EMA)
		rsi = appendValid(rsi, ts, r.RSI)
	}

	return Chart{
		Price: PricePanel{
			Title:   symbol + " — Candlestick Chart with SMA & EMA",
			Height:  600,
			Candles: candles,
			Lines: []Line{
				{Name: "SMA 14", Color: "blue", Width: 1, Points: sma},
				{Name: "EMA 14", Color: "orange", Width: 1, Points: ema},
			},
		},
		RSI: RSIPanel{
			Title:  "RSI (Relative Strength Index)",
			Height: 250,
			Line:   Line{Name: "RSI 14", Color: "purple", Width: 2, Points: rsi},
			Levels: []Level{
				{Value: Overbought, Color: "red", Label: "Overbought"},
				{Value: Oversold, Color: "green", Label: "Oversold"},
			},
		},
	}
}

func appendValid(points []Point, ts int64, v null.Float) []Point {
	if !v.Valid {
		return points
	}
	return append(points, Point{Time: ts, Value: v.Float64})
}
