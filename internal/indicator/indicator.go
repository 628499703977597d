// Package indicator provides technical analysis indicators for financial markets
package indicator

import (
	"fmt"
	"math"

	"github.com/amirphl/backtester/internal/candle"
)

// Spec names an indicator and its parameters. Alias, when set, is the key the
// computed line is exposed under, allowing two instances of the same indicator
// with different parameters (e.g. a fast and a slow SMA).
type Spec struct {
	Name   string             `json:"name"`
	Alias  string             `json:"alias,omitempty"`
	Params map[string]float64 `json:"params,omitempty"`
}

// Key returns the name the computed line is registered under.
func (s Spec) Key() string {
	if s.Alias != "" {
		return s.Alias
	}
	return s.Name
}

// Line is a numeric sequence aligned to a candle series. Positions before the
// warm-up window hold NaN; they are explicitly unavailable, never zero.
type Line struct {
	Values []float64
	Warmup int
}

// Valid reports whether the value at index i is available.
func (l Line) Valid(i int) bool {
	return i >= 0 && i < len(l.Values) && i >= l.Warmup && !math.IsNaN(l.Values[i])
}

// At returns the value at index i, or NaN if it is unavailable.
func (l Line) At(i int) float64 {
	if i < 0 || i >= len(l.Values) {
		return math.NaN()
	}
	return l.Values[i]
}

func newLine(values []float64) Line {
	warmup := 0
	for warmup < len(values) && math.IsNaN(values[warmup]) {
		warmup++
	}
	return Line{Values: values, Warmup: warmup}
}

// UnknownIndicatorError is returned when a strategy references an indicator
// this engine does not implement.
type UnknownIndicatorError struct {
	Name string
}

func (e *UnknownIndicatorError) Error() string {
	return fmt.Sprintf("unknown indicator %q", e.Name)
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func intParam(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v)
	}
	return def
}

// Compute evaluates the named indicator over the series and returns a line of
// the same length. It is deterministic and side-effect-free. Unknown names fail
// with *UnknownIndicatorError; non-positive periods fail with a plain error.
func Compute(s *candle.Series, spec Spec) (Line, error) {
	switch spec.Name {
	case "sma":
		period := intParam(spec.Params, "period", 20)
		if period <= 0 {
			return Line{}, fmt.Errorf("sma: period must be positive, got %d", period)
		}
		return newLine(CalculateSMA(s.Closes(), period)), nil
	case "ema":
		period := intParam(spec.Params, "period", 12)
		if period <= 0 {
			return Line{}, fmt.Errorf("ema: period must be positive, got %d", period)
		}
		return newLine(CalculateEMA(s.Closes(), period)), nil
	case "volume_sma":
		period := intParam(spec.Params, "period", 20)
		if period <= 0 {
			return Line{}, fmt.Errorf("volume_sma: period must be positive, got %d", period)
		}
		return newLine(CalculateSMA(s.Volumes(), period)), nil
	case "rsi":
		period := intParam(spec.Params, "period", 14)
		if period <= 0 {
			return Line{}, fmt.Errorf("rsi: period must be positive, got %d", period)
		}
		return newLine(CalculateRSI(s.Closes(), period)), nil
	case "macd", "macd_signal", "macd_hist":
		fast := intParam(spec.Params, "fast", 12)
		slow := intParam(spec.Params, "slow", 26)
		signal := intParam(spec.Params, "signal", 9)
		if fast <= 0 || slow <= 0 || signal <= 0 {
			return Line{}, fmt.Errorf("%s: periods must be positive", spec.Name)
		}
		if fast >= slow {
			return Line{}, fmt.Errorf("%s: fast period %d must be less than slow period %d", spec.Name, fast, slow)
		}
		macd, sig, hist := CalculateMACD(s.Closes(), fast, slow, signal)
		switch spec.Name {
		case "macd":
			return newLine(macd), nil
		case "macd_signal":
			return newLine(sig), nil
		default:
			return newLine(hist), nil
		}
	case "atr":
		period := intParam(spec.Params, "period", 14)
		if period <= 0 {
			return Line{}, fmt.Errorf("atr: period must be positive, got %d", period)
		}
		return newLine(CalculateATR(s.Highs(), s.Lows(), s.Closes(), period)), nil
	case "bollinger_upper", "bollinger_middle", "bollinger_lower":
		period := intParam(spec.Params, "period", 20)
		mult := param(spec.Params, "mult", 2)
		if period <= 0 {
			return Line{}, fmt.Errorf("%s: period must be positive, got %d", spec.Name, period)
		}
		upper, middle, lower := CalculateBollinger(s.Closes(), period, mult)
		switch spec.Name {
		case "bollinger_upper":
			return newLine(upper), nil
		case "bollinger_middle":
			return newLine(middle), nil
		default:
			return newLine(lower), nil
		}
	case "stochastic_k", "stochastic_d":
		periodK := intParam(spec.Params, "period_k", 14)
		smoothK := intParam(spec.Params, "smooth_k", 1)
		periodD := intParam(spec.Params, "period_d", 3)
		if periodK <= 0 || smoothK <= 0 || periodD <= 0 {
			return Line{}, fmt.Errorf("%s: periods must be positive", spec.Name)
		}
		k, d := CalculateStochastic(s.Highs(), s.Lows(), s.Closes(), periodK, smoothK, periodD)
		if spec.Name == "stochastic_k" {
			return newLine(k), nil
		}
		return newLine(d), nil
	case "doji":
		return newLine(singleCandlePattern(s, isDoji)), nil
	case "hammer":
		return newLine(singleCandlePattern(s, isHammer)), nil
	case "bullish_engulfing":
		return newLine(twoCandlePattern(s, isBullishEngulfing)), nil
	case "bearish_engulfing":
		return newLine(twoCandlePattern(s, isBearishEngulfing)), nil
	default:
		return Line{}, &UnknownIndicatorError{Name: spec.Name}
	}
}

// Warmup returns the number of leading candles for which the indicator named
// by spec has no defined value, without computing it. Unknown names fail with
// *UnknownIndicatorError.
func Warmup(spec Spec) (int, error) {
	switch spec.Name {
	case "sma", "volume_sma":
		return intParam(spec.Params, "period", 20) - 1, nil
	case "ema":
		return intParam(spec.Params, "period", 12) - 1, nil
	case "rsi":
		return intParam(spec.Params, "period", 14) - 1, nil
	case "macd":
		return intParam(spec.Params, "slow", 26) - 1, nil
	case "macd_signal", "macd_hist":
		return intParam(spec.Params, "slow", 26) - 1 + intParam(spec.Params, "signal", 9) - 1, nil
	case "atr":
		return intParam(spec.Params, "period", 14), nil
	case "bollinger_upper", "bollinger_middle", "bollinger_lower":
		return intParam(spec.Params, "period", 20) - 1, nil
	case "stochastic_k":
		return intParam(spec.Params, "period_k", 14) - 1 + intParam(spec.Params, "smooth_k", 1) - 1, nil
	case "stochastic_d":
		return intParam(spec.Params, "period_k", 14) - 1 + intParam(spec.Params, "smooth_k", 1) - 1 +
			intParam(spec.Params, "period_d", 3) - 1, nil
	case "doji", "hammer":
		return 0, nil
	case "bullish_engulfing", "bearish_engulfing":
		return 1, nil
	default:
		return 0, &UnknownIndicatorError{Name: spec.Name}
	}
}
