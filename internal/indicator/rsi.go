package indicator

import "github.com/guregu/null/v6"

// NeutralRSI is reported when a window has neither gains nor losses
const NeutralRSI = 50.0

// RSI calculates the Relative Strength Index over simple-mean gains and losses.
//
// out[i] needs period consecutive price changes ending at i, so the first
// valid index is period. A window without losses saturates at 100; a window
// without gains or losses is NeutralRSI.
func RSI(prices []float64, period int) []null.Float {
	result := make([]null.Float, len(prices))
	if period <= 0 || len(prices) <= period {
		return result
	}

	// gains[i] and losses[i] describe the move from prices[i-1] to prices[i]
	gains := make([]float64, len(prices))
	losses := make([]float64, len(prices))
	defined := make([]bool, len(prices))
	for i := 1; i < len(prices); i++ {
		if !isNumber(prices[i]) || !isNumber(prices[i-1]) {
			continue
		}
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
		defined[i] = true
	}

	for i := period; i < len(prices); i++ {
		var sumGain, sumLoss float64
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if !defined[j] {
				ok = false
				break
			}
			sumGain += gains[j]
			sumLoss += losses[j]
		}
		if !ok {
			continue
		}

		avgGain := sumGain / float64(period)
		avgLoss := sumLoss / float64(period)
		result[i] = null.FloatFrom(rsiValue(avgGain, avgLoss))
	}

	return result
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return NeutralRSI
	case avgLoss == 0:
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
