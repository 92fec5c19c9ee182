// Package indicator computes technical indicators over ordered price series.
//
// Every function is pure: output slices are aligned index-for-index with the
// input and undefined positions are invalid null.Float values.
package indicator

import "github.com/newthinker/tadash/internal/core"

// Period is the window used by Enrich for all three indicators
const Period = 14

// Column names used for the derived fields in exports and views
const (
	ColumnSMA = "SMA_14"
	ColumnEMA = "EMA_14"
	ColumnRSI = "RSI_14"
)

// Enrich appends SMA, EMA and RSI columns to bars. The input is not modified.
func Enrich(bars []core.Bar) []core.Row {
	rows := make([]core.Row, len(bars))
	if len(bars) == 0 {
		return rows
	}

	closes := core.Closes(bars)
	sma := SMA(closes, Period)
	ema := EMA(closes, Period)
	rsi := RSI(closes, Period)

	for i, b := range bars {
		rows[i] = core.Row{
			Bar: b,
			SMA: sma[i],
			EMA: ema[i],
			RSI: rsi[i],
		}
	}
	return rows
}
