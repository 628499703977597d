package indicator

import "math"

// CalculateStochastic computes the Stochastic Oscillator:
// raw %K = 100 * (close - lowest_low) / (highest_high - lowest_low) over
// periodK bars, smoothed by an SMA of smoothK bars; %D is an SMA of %K over
// periodD bars. A window with no range reports the midpoint 50. Warm-up
// positions are NaN.
func CalculateStochastic(highs, lows, closes []float64, periodK, smoothK, periodD int) (k, d []float64) {
	n := len(closes)
	raw := nanSlice(n)
	for i := periodK - 1; i < n; i++ {
		lowest := lows[i-periodK+1]
		highest := highs[i-periodK+1]
		for j := i - periodK + 2; j <= i; j++ {
			if lows[j] < lowest {
				lowest = lows[j]
			}
			if highs[j] > highest {
				highest = highs[j]
			}
		}
		if highest == lowest {
			raw[i] = 50.0
		} else {
			raw[i] = 100.0 * (closes[i] - lowest) / (highest - lowest)
		}
	}
	k = smaOver(raw, smoothK)
	d = smaOver(k, periodD)
	return k, d
}

// smaOver computes an SMA over a series that itself has a NaN warm-up prefix.
func smaOver(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if period <= 0 || len(values)-start < period {
		return out
	}
	var sum float64
	for i := start; i < len(values); i++ {
		sum += values[i]
		if i >= start+period {
			sum -= values[i-period]
		}
		if i >= start+period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}
