package indicator

// CalculateRSI computes the Relative Strength Index using Wilder's smoothing.
// The seed value at index period-1 averages the first period-1 price changes
// over period; subsequent values follow the standard Wilder recurrence
// avg = (avg*(period-1) + change) / period. A flat or all-gaining window
// reports 100, an all-losing window reports 0. The first period-1 positions
// are NaN (warm-up).
func CalculateRSI(prices []float64, period int) []float64 {
	rsi := nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return rsi
	}
	var gain, loss float64
	for i := 1; i < period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		rsi[period-1] = 100
	} else {
		rs := avgGain / avgLoss
		rsi[period-1] = 100 - (100 / (1 + rs))
	}
	for i := period; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain = change
			loss = 0
		} else {
			gain = 0
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		if avgLoss == 0 {
			rsi[i] = 100
		} else {
			rs := avgGain / avgLoss
			rsi[i] = 100 - (100 / (1 + rs))
		}
	}
	return rsi
}
