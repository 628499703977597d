package indicator

import (
	"math"

	"github.com/amirphl/backtester/internal/candle"
)

// Candlestick pattern lines report 1 where the pattern is present and 0
// elsewhere, so rule conditions can match them with eq/threshold 1.

func bodySize(c candle.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func totalRange(c candle.Candle) float64 {
	return c.High - c.Low
}

func upperShadow(c candle.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c candle.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// isDoji reports a body under 10% of the candle's range.
func isDoji(c candle.Candle) bool {
	r := totalRange(c)
	if r == 0 {
		return false
	}
	return bodySize(c)/r < 0.1
}

// isHammer reports a small-bodied candle with a lower shadow at least twice
// the body, almost no upper shadow and a close near the high.
func isHammer(c candle.Candle) bool {
	r := totalRange(c)
	body := bodySize(c)
	if r == 0 || body == 0 {
		return false
	}
	if body/r > 0.3 {
		return false
	}
	if lowerShadow(c)/body < 2.0 {
		return false
	}
	if upperShadow(c)/r > 0.1 {
		return false
	}
	return (c.High-c.Close)/r < 0.1
}

// isBullishEngulfing reports a bullish body fully covering the previous
// bearish body.
func isBullishEngulfing(cur, prev candle.Candle) bool {
	if cur.Close <= cur.Open || prev.Close >= prev.Open {
		return false
	}
	return math.Max(cur.Open, cur.Close) >= math.Max(prev.Open, prev.Close) &&
		math.Min(cur.Open, cur.Close) <= math.Min(prev.Open, prev.Close)
}

// isBearishEngulfing is the mirrored case.
func isBearishEngulfing(cur, prev candle.Candle) bool {
	if cur.Close >= cur.Open || prev.Close <= prev.Open {
		return false
	}
	return math.Max(cur.Open, cur.Close) >= math.Max(prev.Open, prev.Close) &&
		math.Min(cur.Open, cur.Close) <= math.Min(prev.Open, prev.Close)
}

// singleCandlePattern evaluates a per-candle predicate into a 0/1 line.
func singleCandlePattern(s *candle.Series, match func(candle.Candle) bool) []float64 {
	out := make([]float64, s.Len())
	for i := 0; i < s.Len(); i++ {
		if match(s.At(i)) {
			out[i] = 1
		}
	}
	return out
}

// twoCandlePattern evaluates a predicate over (current, previous) pairs. The
// first position has no previous candle and stays NaN.
func twoCandlePattern(s *candle.Series, match func(cur, prev candle.Candle) bool) []float64 {
	out := nanSlice(s.Len())
	for i := 1; i < s.Len(); i++ {
		out[i] = 0
		if match(s.At(i), s.At(i-1)) {
			out[i] = 1
		}
	}
	return out
}
