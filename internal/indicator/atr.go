package indicator

import "math"

// CalculateATR computes the Average True Range using Wilder's smoothing, the
// TA-Lib convention: the seed at index period averages the first period true
// ranges, then atr = (atr*(period-1) + tr) / period. The first period
// positions are NaN since the true range needs a previous close.
func CalculateATR(highs, lows, closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) < period+1 {
		return out
	}
	tr := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}
