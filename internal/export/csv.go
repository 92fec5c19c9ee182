// Package export serializes enriched series to delimited text.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/guregu/null/v6"
	"github.com/newthinker/tadash/internal/core"
	"github.com/newthinker/tadash/internal/indicator"
)

const (
	ContentType = "text/csv"

	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

// Header is the column order of every export
var Header = []string{"date", "open", "high", "low", "close", "volume",
	indicator.ColumnSMA, indicator.ColumnEMA, indicator.ColumnRSI}

// Filename returns the download name for a symbol's export
func Filename(symbol string) string {
	return symbol + "_technical_analysis.csv"
}

// Write encodes rows with a header line. Undefined values are empty cells.
// Intraday intervals keep the full timestamp; others write the date only.
func Write(w io.Writer, rows []core.Row, interval core.Interval) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return core.WrapError(core.ErrExportFailed, err)
	}

	layout := dateLayout
	if interval.Intraday() {
		layout = dateTimeLayout
	}

	record := make([]string, len(Header))
	for _, r := range rows {
		record[0] = r.Time.Format(layout)
		record[1] = formatFloat(r.Open)
		record[2] = formatFloat(r.High)
		record[3] = formatFloat(r.Low)
		record[4] = formatFloat(r.Close)
		record[5] = strconv.FormatFloat(r.Volume, 'f', -1, 64)
		record[6] = formatNull(r.SMA)
		record[7] = formatNull(r.EMA)
		record[8] = formatNull(r.RSI)
		if err := cw.Write(record); err != nil {
			return core.WrapError(core.ErrExportFailed, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return core.WrapError(core.ErrExportFailed, err)
	}
	return nil
}

// Bytes is Write into a buffer
func Bytes(rows []core.Row, interval core.Interval) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, rows, interval); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Parse decodes an export written by Write back into rows
func Parse(r io.Reader) ([]core.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i, name := range Header {
		if head[i] != name {
			return nil, fmt.Errorf("unexpected column %d: got %q, want %q", i, head[i], name)
		}
	}

	var rows []core.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", line, err)
		}
		row, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRecord(rec []string) (core.Row, error) {
	var row core.Row
	var err error

	if row.Time, err = parseTime(rec[0]); err != nil {
		return row, err
	}
	if row.Open, err = parseFloat(rec[1]); err != nil {
		return row, fmt.Errorf("open: %w", err)
	}
	if row.High, err = parseFloat(rec[2]); err != nil {
		return row, fmt.Errorf("high: %w", err)
	}
	if row.Low, err = parseFloat(rec[3]); err != nil {
		return row, fmt.Errorf("low: %w", err)
	}
	if row.Close, err = parseFloat(rec[4]); err != nil {
		return row, fmt.Errorf("close: %w", err)
	}
	if row.Volume, err = strconv.ParseFloat(rec[5], 64); err != nil {
		return row, fmt.Errorf("volume: %w", err)
	}
	if row.SMA, err = parseNull(rec[6]); err != nil {
		return row, fmt.Errorf("%s: %w", indicator.ColumnSMA, err)
	}
	if row.EMA, err = parseNull(rec[7]); err != nil {
		return row, fmt.Errorf("%s: %w", indicator.ColumnEMA, err)
	}
	if row.RSI, err = parseNull(rec[8]); err != nil {
		return row, fmt.Errorf("%s: %w", indicator.ColumnRSI, err)
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	if strings.Contains(s, "T") {
		return time.Parse(dateTimeLayout, s)
	}
	return time.Parse(dateLayout, s)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatNull(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return formatFloat(v.Float64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseNull(s string) (null.Float, error) {
	if s == "" {
		return null.Float{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	return null.FloatFrom(v), nil
}
