// Package strategy defines trading strategies that turn a candle series into
// entry and exit signals. Strategies come in two flavors: declarative rule
// strategies parsed from a JSON definition, and native strategies registered
// in code. Both produce boolean signal slices aligned to the series, so the
// simulator never needs to know which kind it is running.
package strategy

import (
	"fmt"
	"math"

	"github.com/amirphl/backtester/internal/candle"
	"github.com/amirphl/backtester/internal/indicator"
)

// IndicatorSet holds computed indicator lines keyed by alias. The raw price
// columns (open, high, low, close, volume) are always present so conditions
// can reference them like any other line.
type IndicatorSet map[string]indicator.Line

// Line returns the named line and whether it exists.
func (set IndicatorSet) Line(name string) (indicator.Line, bool) {
	l, ok := set[name]
	return l, ok
}

// Strategy produces entry and exit signals over a candle series.
//
// PopulateIndicators computes every line the strategy needs. PopulateEntry
// and PopulateExit return slices of s.Len() booleans; index i may only depend
// on candles 0..i, never on later data. WithParams returns a re-parameterized
// copy, leaving the receiver untouched.
type Strategy interface {
	Name() string
	WarmupPeriod() int
	PopulateIndicators(s *candle.Series) (IndicatorSet, error)
	PopulateEntry(s *candle.Series, ind IndicatorSet) []bool
	PopulateExit(s *candle.Series, ind IndicatorSet) []bool
	WithParams(params map[string]float64) (Strategy, error)
}

// UnknownStrategyError is returned when a strategy name is not registered.
type UnknownStrategyError struct {
	Name string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q", e.Name)
}

var priceColumns = []string{"open", "high", "low", "close", "volume"}

func isPriceColumn(name string) bool {
	for _, c := range priceColumns {
		if name == c {
			return true
		}
	}
	return false
}

// baseIndicatorSet seeds a set with the raw price columns of the series.
func baseIndicatorSet(s *candle.Series) IndicatorSet {
	set := make(IndicatorSet, len(priceColumns))
	set["open"] = indicator.Line{Values: s.Opens()}
	set["high"] = indicator.Line{Values: s.Highs()}
	set["low"] = indicator.Line{Values: s.Lows()}
	set["close"] = indicator.Line{Values: s.Closes()}
	set["volume"] = indicator.Line{Values: s.Volumes()}
	return set
}

// maxWarmup computes the warm-up over a list of indicator specs.
func maxWarmup(specs []indicator.Spec) (int, error) {
	warmup := 0
	for _, spec := range specs {
		w, err := indicator.Warmup(spec)
		if err != nil {
			return 0, err
		}
		if w > warmup {
			warmup = w
		}
	}
	return warmup, nil
}

// computeAll evaluates every spec over the series and merges the lines into a
// set seeded with the price columns.
func computeAll(s *candle.Series, specs []indicator.Spec) (IndicatorSet, error) {
	set := baseIndicatorSet(s)
	for _, spec := range specs {
		key := spec.Key()
		if _, exists := set[key]; exists {
			return nil, fmt.Errorf("duplicate indicator key %q", key)
		}
		line, err := indicator.Compute(s, spec)
		if err != nil {
			return nil, fmt.Errorf("compute %s: %w", key, err)
		}
		set[key] = line
	}
	return set, nil
}

func valueAt(l indicator.Line, i int) (float64, bool) {
	v := l.At(i)
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
