package analysis

import (
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/newthinker/tadash/internal/core"
)

// Missing is shown in place of an undefined value.
const Missing = "—"

// FormatPrice renders a close price as "$123.45".
func FormatPrice(v null.Float) string {
	if !v.Valid {
		return Missing
	}
	return fmt.Sprintf("$%.2f", v.Float64)
}

// FormatValue renders an indicator value with two decimals.
func FormatValue(v null.Float) string {
	if !v.Valid {
		return Missing
	}
	return fmt.Sprintf("%.2f", v.Float64)
}

// FormatTime renders a bar time for display; intraday bars keep the clock.
func FormatTime(t time.Time, interval core.Interval) string {
	if interval.Intraday() {
		return t.Format("2006-01-02 15:04")
	}
	return t.Format("2006-01-02")
}

// TableRow is one display row of the recent-data table.
type TableRow struct {
	Date  string
	Close string
	SMA   string
	EMA   string
	RSI   string
}

// FormatRow renders r for the recent-data table.
func FormatRow(r core.Row, interval core.Interval) TableRow {
	closePrice := Missing
	if r.HasClose() {
		closePrice = fmt.Sprintf("%.2f", r.Close)
	}
	return TableRow{
		Date:  FormatTime(r.Time, interval),
		Close: closePrice,
		SMA:   FormatValue(r.SMA),
		EMA:   FormatValue(r.EMA),
		RSI:   FormatValue(r.RSI),
	}
}

// FormatRows applies FormatRow to each row in order.
func FormatRows(rows []core.Row, interval core.Interval) []TableRow {
	table := make([]TableRow, 0, len(rows))
	for _, r := range rows {
		table = append(table, FormatRow(r, interval))
	}
	return table
}
