// Package cache memoizes collector results for a bounded time.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/guregu/null/v6"
	"github.com/newthinker/tadash/internal/core"
)

// DefaultTTL bounds how long a fetched series is served from cache
const DefaultTTL = time.Hour

// Store is a key/value backend for cached bar series
type Store interface {
	// Get returns the bars for key; ok is false on a miss or an expired entry
	Get(ctx context.Context, key string) (bars []core.Bar, ok bool, err error)

	// Set stores bars under key for ttl
	Set(ctx context.Context, key string, bars []core.Bar, ttl time.Duration) error

	Close() error
}

// wireBar is the serialized form of a bar; JSON has no NaN so a missing close is null
type wireBar struct {
	T int64      `json:"t"`
	O float64    `json:"o"`
	H float64    `json:"h"`
	L float64    `json:"l"`
	C null.Float `json:"c"`
	V float64    `json:"v"`
	Z string     `json:"z,omitempty"`
	S int        `json:"s,omitempty"`
}

func encodeBars(bars []core.Bar) ([]byte, error) {
	wire := make([]wireBar, len(bars))
	for i, b := range bars {
		name, offset := b.Time.Zone()
		wire[i] = wireBar{
			T: b.Time.Unix(),
			O: b.Open,
			H: b.High,
			L: b.Low,
			V: b.Volume,
			Z: name,
			S: offset,
		}
		if b.HasClose() {
			wire[i].C = null.FloatFrom(b.Close)
		}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encoding bars: %w", err)
	}
	return data, nil
}

func decodeBars(data []byte) ([]core.Bar, error) {
	var wire []wireBar
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decoding bars: %w", err)
	}
	bars := make([]core.Bar, len(wire))
	for i, w := range wire {
		closePrice := math.NaN()
		if w.C.Valid {
			closePrice = w.C.Float64
		}
		bars[i] = core.Bar{
			Time:   time.Unix(w.T, 0).In(time.FixedZone(w.Z, w.S)),
			Open:   w.O,
			High:   w.H,
			Low:    w.L,
			Close:  closePrice,
			Volume: w.V,
		}
	}
	return bars, nil
}

func cloneBars(bars []core.Bar) []core.Bar {
	out := make([]core.Bar, len(bars))
	copy(out, bars)
	return out
}
