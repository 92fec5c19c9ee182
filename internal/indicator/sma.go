package indicator

import (
	"math"

	"github.com/guregu/null/v6"
)

// SMA calculates Simple Moving Average aligned with prices.
// out[i] is valid once a full window of numeric prices ends at i.
func SMA(prices []float64, period int) []null.Float {
	result := make([]null.Float, len(prices))
	if period <= 0 {
		return result
	}

	for i := period - 1; i < len(prices); i++ {
		sum, ok := windowSum(prices[i-period+1 : i+1])
		if ok {
			result[i] = null.FloatFrom(sum / float64(period))
		}
	}

	return result
}

// EMA calculates the recursive Exponential Moving Average aligned with prices.
// The first numeric price seeds the average, so there is no warm-up gap.
// A missing price leaves its slot invalid and the recursion resumes from the last value.
func EMA(prices []float64, period int) []null.Float {
	result := make([]null.Float, len(prices))
	if period <= 0 {
		return result
	}

	multiplier := 2.0 / float64(period+1)
	var ema float64
	seeded := false

	for i, p := range prices {
		if !isNumber(p) {
			continue
		}
		if !seeded {
			ema = p
			seeded = true
		} else {
			ema = multiplier*p + (1-multiplier)*ema
		}
		result[i] = null.FloatFrom(ema)
	}

	return result
}

// windowSum adds the window; ok is false if any value is missing
func windowSum(window []float64) (float64, bool) {
	var sum float64
	for _, v := range window {
		if !isNumber(v) {
			return 0, false
		}
		sum += v
	}
	return sum, true
}

func isNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
