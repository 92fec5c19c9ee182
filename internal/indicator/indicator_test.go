package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/newthinker/tadash/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(closes []float64) []core.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func TestEnrich_Empty(t *testing.T) {
	rows := Enrich(nil)
	assert.Empty(t, rows)
}

func TestEnrich_AscendingScenario(t *testing.T) {
	// closes 10..24, fifteen bars
	bars := barsFromCloses(ramp(10, 1, 15))
	rows := Enrich(bars)
	require.Len(t, rows, 15)

	for i := 0; i < 13; i++ {
		assert.False(t, rows[i].SMA.Valid, "SMA[%d]", i)
		assert.False(t, rows[i].RSI.Valid, "RSI[%d]", i)
	}

	require.True(t, rows[13].SMA.Valid)
	assert.Equal(t, 16.5, rows[13].SMA.Float64)
	assert.Equal(t, 17.5, rows[14].SMA.Float64)

	// only 13 price changes exist at index 13
	assert.False(t, rows[13].RSI.Valid)
	require.True(t, rows[14].RSI.Valid)
	assert.Equal(t, 100.0, rows[14].RSI.Float64)
}

func TestEnrich_EMAStartsAtFirstClose(t *testing.T) {
	bars := barsFromCloses([]float64{187.15, 185.64, 184.25})
	rows := Enrich(bars)

	require.True(t, rows[0].EMA.Valid)
	assert.Equal(t, 187.15, rows[0].EMA.Float64)

	alpha := 2.0 / 15.0
	want := alpha*185.64 + (1-alpha)*187.15
	assert.True(t, almostEqual(rows[1].EMA.Float64, want, 1e-12))
}

func TestEnrich_ShortSeries(t *testing.T) {
	rows := Enrich(barsFromCloses(ramp(50, 0.5, 13)))
	for i, r := range rows {
		assert.False(t, r.SMA.Valid, "SMA[%d]", i)
		assert.False(t, r.RSI.Valid, "RSI[%d]", i)
		assert.True(t, r.EMA.Valid, "EMA[%d]", i)
	}
}

func TestEnrich_PreservesBars(t *testing.T) {
	bars := barsFromCloses(ramp(10, 1, 20))
	before := make([]core.Bar, len(bars))
	copy(before, bars)

	rows := Enrich(bars)

	assert.Equal(t, before, bars, "input must not be modified")
	for i := range rows {
		assert.Equal(t, bars[i], rows[i].Bar)
	}
}

func TestEnrich_NoLookAhead(t *testing.T) {
	closes := []float64{10, 12, 11, 13, 15, 14, 16, 18, 17, 19, 21, 20, 22, 24, 23, 25, 27, 26}
	full := Enrich(barsFromCloses(closes))

	for n := 1; n <= len(closes); n++ {
		prefix := Enrich(barsFromCloses(closes[:n]))
		last := n - 1
		assert.Equal(t, full[last].SMA, prefix[last].SMA, "SMA[%d]", last)
		assert.Equal(t, full[last].EMA, prefix[last].EMA, "EMA[%d]", last)
		assert.Equal(t, full[last].RSI, prefix[last].RSI, "RSI[%d]", last)
	}
}

func TestEnrich_Deterministic(t *testing.T) {
	bars := barsFromCloses([]float64{5, 7, 6, 8, 9, 7, 6, 5, 8, 9, 10, 12, 11, 9, 8, 10})
	assert.Equal(t, Enrich(bars), Enrich(bars))
}

func TestEnrich_MissingCloseStaysUndefined(t *testing.T) {
	closes := ramp(10, 1, 30)
	closes[20] = math.NaN()
	rows := Enrich(barsFromCloses(closes))

	assert.False(t, rows[20].SMA.Valid)
	assert.False(t, rows[20].EMA.Valid)
	assert.False(t, rows[20].RSI.Valid)
	assert.True(t, rows[21].EMA.Valid)
	assert.True(t, rows[19].RSI.Valid)
}
