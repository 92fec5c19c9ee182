package chart

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/newthinker/tadash/internal/core"
	"github.com/newthinker/tadash/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(n int) []core.Row {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]core.Bar, n)
	for i := range bars {
		c := 10 + float64(i%5)
		bars[i] = core.Bar{Time: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	return indicator.Enrich(bars)
}

func TestBuild_OmitsUndefinedPoints(t *testing.T) {
	c := Build("AAPL", rows(20))

	assert.Len(t, c.Price.Candles, 20)
	require.Len(t, c.Price.Lines, 2)
	assert.Len(t, c.Price.Lines[0].Points, 7, "SMA starts at index 13")
	assert.Len(t, c.Price.Lines[1].Points, 20, "EMA has no warm-up")
	assert.Len(t, c.RSI.Line.Points, 6, "RSI starts at index 14")

	first := c.Price.Lines[0].Points[0]
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).Unix(), first.Time)
}

func TestBuild_ReferenceLevels(t *testing.T) {
	c := Build("AAPL", rows(3))

	require.Len(t, c.RSI.Levels, 2)
	assert.Equal(t, 70.0, c.RSI.Levels[0].Value)
	assert.Equal(t, "red", c.RSI.Levels[0].Color)
	assert.Equal(t, 30.0, c.RSI.Levels[1].Value)
	assert.Equal(t, "green", c.RSI.Levels[1].Color)
	assert.Equal(t, "AAPL — Candlestick Chart with SMA & EMA", c.Price.Title)
}

func TestBuild_SkipsMissingClose(t *testing.T) {
	r := rows(5)
	r[2].Close = math.NaN()
	r[2].EMA.Valid = false

	c := Build("AAPL", r)
	assert.Len(t, c.Price.Candles, 4)
	assert.Len(t, c.Price.Lines[1].Points, 4)

	_, err := json.Marshal(c)
	assert.NoError(t, err, "chart must be JSON-safe")
}

func TestBuild_Empty(t *testing.T) {
	c := Build("AAPL", nil)
	assert.Empty(t, c.Price.Candles)
	assert.Empty(t, c.RSI.Line.Points)

	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"candles":[]`)
}
