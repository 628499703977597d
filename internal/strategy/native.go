package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/amirphl/backtester/internal/candle"
	"github.com/amirphl/backtester/internal/indicator"
)

// Rule decides whether a signal fires on candle i. Rules may look at candles
// 0..i only.
type Rule func(s *candle.Series, ind IndicatorSet, i int) bool

// Factory builds a strategy from a flat parameter map. Missing parameters
// take their defaults.
type Factory func(params map[string]float64) (Strategy, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a named strategy factory. Registering a duplicate name panics;
// strategies are registered from init functions, so a duplicate is a
// programming error.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = f
}

// New builds a registered strategy by name.
func New(name string, params map[string]float64) (Strategy, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownStrategyError{Name: name}
	}
	return f(params)
}

// Registered returns the registered strategy names in sorted order.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NativeStrategy wires entry and exit rule functions to a set of indicator
// specs. Re-parameterization goes back through the factory so each parameter
// set gets a fresh, independent strategy value.
type NativeStrategy struct {
	name    string
	specs   []indicator.Spec
	warmup  int
	params  map[string]float64
	entry   Rule
	exit    Rule
	factory Factory
}

// NewNativeStrategy builds a native strategy from rules and the indicator
// specs they read.
func NewNativeStrategy(name string, specs []indicator.Spec, params map[string]float64, entry, exit Rule, factory Factory) (*NativeStrategy, error) {
	if name == "" {
		return nil, fmt.Errorf("native strategy: name is required")
	}
	if entry == nil || exit == nil {
		return nil, fmt.Errorf("strategy %q: entry and exit rules are required", name)
	}
	warmup, err := maxWarmup(specs)
	if err != nil {
		return nil, fmt.Errorf("strategy %q: %w", name, err)
	}
	return &NativeStrategy{
		name:    name,
		specs:   specs,
		warmup:  warmup,
		params:  params,
		entry:   entry,
		exit:    exit,
		factory: factory,
	}, nil
}

func (n *NativeStrategy) Name() string {
	return n.name
}

func (n *NativeStrategy) WarmupPeriod() int {
	return n.warmup
}

func (n *NativeStrategy) PopulateIndicators(s *candle.Series) (IndicatorSet, error) {
	return computeAll(s, n.specs)
}

func (n *NativeStrategy) PopulateEntry(s *candle.Series, ind IndicatorSet) []bool {
	out := make([]bool, s.Len())
	for i := range out {
		out[i] = n.entry(s, ind, i)
	}
	return out
}

func (n *NativeStrategy) PopulateExit(s *candle.Series, ind IndicatorSet) []bool {
	out := make([]bool, s.Len())
	for i := range out {
		out[i] = n.exit(s, ind, i)
	}
	return out
}

// WithParams merges the overrides over the current parameters and rebuilds
// the strategy through its factory.
func (n *NativeStrategy) WithParams(params map[string]float64) (Strategy, error) {
	if n.factory == nil {
		return nil, fmt.Errorf("strategy %q: not re-parameterizable", n.name)
	}
	merged := make(map[string]float64, len(n.params)+len(params))
	for k, v := range n.params {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return n.factory(merged)
}

func pget(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// crossesAbove reports whether line a closed above line b on candle i after
// being at or below it on candle i-1. Undefined values never cross.
func crossesAbove(a, b indicator.Line, i int) bool {
	prevA, ok := valueAt(a, i-1)
	if !ok {
		return false
	}
	prevB, ok := valueAt(b, i-1)
	if !ok {
		return false
	}
	curA, ok := valueAt(a, i)
	if !ok {
		return false
	}
	curB, ok := valueAt(b, i)
	if !ok {
		return false
	}
	return prevA <= prevB && curA > curB
}

func crossesBelow(a, b indicator.Line, i int) bool {
	prevA, ok := valueAt(a, i-1)
	if !ok {
		return false
	}
	prevB, ok := valueAt(b, i-1)
	if !ok {
		return false
	}
	curA, ok := valueAt(a, i)
	if !ok {
		return false
	}
	curB, ok := valueAt(b, i)
	if !ok {
		return false
	}
	return prevA >= prevB && curA < curB
}

func init() {
	Register("rsi_reversion", newRSIReversion)
	Register("sma_cross", newSMACross)
	Register("macd_cross", newMACDCross)
}

// newRSIReversion buys when RSI dips below the oversold level and sells when
// it climbs above the overbought level.
func newRSIReversion(params map[string]float64) (Strategy, error) {
	period := pget(params, "rsi_period", 14)
	oversold := pget(params, "oversold", 30)
	overbought := pget(params, "overbought", 70)
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi_reversion: oversold %.2f must be below overbought %.2f", oversold, overbought)
	}

	specs := []indicator.Spec{
		{Name: "rsi", Params: map[string]float64{"period": period}},
	}
	entry := func(s *candle.Series, ind IndicatorSet, i int) bool {
		v, ok := valueAt(ind["rsi"], i)
		return ok && v < oversold
	}
	exit := func(s *candle.Series, ind IndicatorSet, i int) bool {
		v, ok := valueAt(ind["rsi"], i)
		return ok && v > overbought
	}
	return NewNativeStrategy("rsi_reversion", specs, params, entry, exit, newRSIReversion)
}

// newSMACross buys when the fast SMA crosses above the slow SMA and sells on
// the opposite cross.
func newSMACross(params map[string]float64) (Strategy, error) {
	fast := pget(params, "fast_period", 10)
	slow := pget(params, "slow_period", 30)
	if fast >= slow {
		return nil, fmt.Errorf("sma_cross: fast period %.0f must be below slow period %.0f", fast, slow)
	}

	specs := []indicator.Spec{
		{Name: "sma", Alias: "sma_fast", Params: map[string]float64{"period": fast}},
		{Name: "sma", Alias: "sma_slow", Params: map[string]float64{"period": slow}},
	}
	entry := func(s *candle.Series, ind IndicatorSet, i int) bool {
		return crossesAbove(ind["sma_fast"], ind["sma_slow"], i)
	}
	exit := func(s *candle.Series, ind IndicatorSet, i int) bool {
		return crossesBelow(ind["sma_fast"], ind["sma_slow"], i)
	}
	return NewNativeStrategy("sma_cross", specs, params, entry, exit, newSMACross)
}

// newMACDCross buys when the MACD line crosses above its signal line and
// sells on the opposite cross.
func newMACDCross(params map[string]float64) (Strategy, error) {
	fast := pget(params, "fast_period", 12)
	slow := pget(params, "slow_period", 26)
	signal := pget(params, "signal_period", 9)
	if fast >= slow {
		return nil, fmt.Errorf("macd_cross: fast period %.0f must be below slow period %.0f", fast, slow)
	}

	macdParams := map[string]float64{"fast": fast, "slow": slow, "signal": signal}
	specs := []indicator.Spec{
		{Name: "macd", Params: macdParams},
		{Name: "macd_signal", Params: macdParams},
	}
	entry := func(s *candle.Series, ind IndicatorSet, i int) bool {
		return crossesAbove(ind["macd"], ind["macd_signal"], i)
	}
	exit := func(s *candle.Series, ind IndicatorSet, i int) bool {
		return crossesBelow(ind["macd"], ind["macd_signal"], i)
	}
	return NewNativeStrategy("macd_cross", specs, params, entry, exit, newMACDCross)
}
