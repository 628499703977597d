package indicator

import "math"

// CalculateMACD computes the MACD line (EMA(fast) - EMA(slow)), its signal
// line (EMA of the MACD line) and the histogram (macd - signal). The MACD
// line becomes available at index slow-1, the signal line signal-1 bars later.
func CalculateMACD(prices []float64, fast, slow, signal int) (macd, sig, hist []float64) {
	macd = nanSlice(len(prices))
	fastEMA := CalculateEMA(prices, fast)
	slowEMA := CalculateEMA(prices, slow)
	for i := range prices {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			macd[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig = emaOver(macd, signal)
	hist = nanSlice(len(prices))
	for i := range prices {
		if !math.IsNaN(macd[i]) && !math.IsNaN(sig[i]) {
			hist[i] = macd[i] - sig[i]
		}
	}
	return macd, sig, hist
}
