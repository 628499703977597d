package indicator

import "math"

// CalculateBollinger computes Bollinger Bands: the middle band is a simple
// moving average, the upper/lower bands sit mult population standard
// deviations away from it. The first period-1 positions are NaN.
func CalculateBollinger(prices []float64, period int, mult float64) (upper, middle, lower []float64) {
	upper = nanSlice(len(prices))
	middle = CalculateSMA(prices, period)
	lower = nanSlice(len(prices))
	if period <= 0 || len(prices) < period {
		return upper, middle, lower
	}
	for i := period - 1; i < len(prices); i++ {
		mean := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			d := prices[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper[i] = mean + mult*sd
		lower[i] = mean - mult*sd
	}
	return upper, middle, lower
}
