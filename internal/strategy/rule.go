package strategy

import (
	"encoding/json"
	"fmt"

	"github.com/amirphl/backtester/internal/candle"
	"github.com/amirphl/backtester/internal/indicator"
)

// Condition compares an indicator line against a constant threshold or
// another line. Param, when set, names a tunable parameter that can override
// Threshold through WithParams.
type Condition struct {
	Indicator  string  `json:"indicator"`
	Comparator string  `json:"comparator"`
	Threshold  float64 `json:"threshold,omitempty"`
	Other      string  `json:"other,omitempty"`
	Param      string  `json:"param,omitempty"`
}

// Definition is the declarative form of a rule strategy. Entry and Exit are
// conjunctions: every condition must hold on the same candle for the signal
// to fire.
type Definition struct {
	Name       string           `json:"name"`
	Indicators []indicator.Spec `json:"indicators"`
	Entry      []Condition      `json:"entry"`
	Exit       []Condition      `json:"exit"`
}

var comparators = map[string]bool{
	"lt":            true,
	"gt":            true,
	"le":            true,
	"ge":            true,
	"eq":            true,
	"crosses_above": true,
	"crosses_below": true,
}

// ParseDefinition decodes and validates a JSON strategy definition.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parse strategy definition: %w", err)
	}
	if err := def.validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("strategy definition: name is required")
	}
	if len(d.Entry) == 0 {
		return fmt.Errorf("strategy %q: at least one entry condition is required", d.Name)
	}
	if len(d.Exit) == 0 {
		return fmt.Errorf("strategy %q: at least one exit condition is required", d.Name)
	}

	keys := map[string]bool{}
	for _, c := range priceColumns {
		keys[c] = true
	}
	for _, spec := range d.Indicators {
		key := spec.Key()
		if keys[key] {
			return fmt.Errorf("strategy %q: duplicate indicator key %q", d.Name, key)
		}
		if _, err := indicator.Warmup(spec); err != nil {
			return fmt.Errorf("strategy %q: %w", d.Name, err)
		}
		keys[key] = true
	}

	check := func(kind string, conds []Condition) error {
		for _, c := range conds {
			if !keys[c.Indicator] {
				return fmt.Errorf("strategy %q: %s condition references unknown line %q", d.Name, kind, c.Indicator)
			}
			if !comparators[c.Comparator] {
				return fmt.Errorf("strategy %q: unknown comparator %q", d.Name, c.Comparator)
			}
			if c.Other != "" && !keys[c.Other] {
				return fmt.Errorf("strategy %q: %s condition references unknown line %q", d.Name, kind, c.Other)
			}
		}
		return nil
	}
	if err := check("entry", d.Entry); err != nil {
		return err
	}
	return check("exit", d.Exit)
}

// RuleStrategy evaluates a declarative Definition.
type RuleStrategy struct {
	def    Definition
	warmup int
}

// NewRuleStrategy validates the definition and computes the combined
// indicator warm-up.
func NewRuleStrategy(def Definition) (*RuleStrategy, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	warmup, err := maxWarmup(def.Indicators)
	if err != nil {
		return nil, err
	}
	return &RuleStrategy{def: def, warmup: warmup}, nil
}

func (r *RuleStrategy) Name() string {
	return r.def.Name
}

func (r *RuleStrategy) WarmupPeriod() int {
	return r.warmup
}

// Definition returns a deep copy of the underlying definition.
func (r *RuleStrategy) Definition() Definition {
	return r.def.clone()
}

func (r *RuleStrategy) PopulateIndicators(s *candle.Series) (IndicatorSet, error) {
	return computeAll(s, r.def.Indicators)
}

func (r *RuleStrategy) PopulateEntry(s *candle.Series, ind IndicatorSet) []bool {
	return evalConditions(r.def.Entry, ind, s.Len())
}

func (r *RuleStrategy) PopulateExit(s *candle.Series, ind IndicatorSet) []bool {
	return evalConditions(r.def.Exit, ind, s.Len())
}

// WithParams re-parameterizes the strategy. Indicator parameters are addressed
// as "<key>_<param>" (e.g. "rsi_period"), condition thresholds by the name in
// their Param field. Unknown parameter names are ignored so one flat parameter
// map can drive several strategies.
func (r *RuleStrategy) WithParams(params map[string]float64) (Strategy, error) {
	def := r.def.clone()
	for i := range def.Indicators {
		spec := &def.Indicators[i]
		for pk := range spec.Params {
			if v, ok := params[spec.Key()+"_"+pk]; ok {
				spec.Params[pk] = v
			}
		}
	}
	reparam := func(conds []Condition) {
		for i := range conds {
			if conds[i].Param == "" {
				continue
			}
			if v, ok := params[conds[i].Param]; ok {
				conds[i].Threshold = v
			}
		}
	}
	reparam(def.Entry)
	reparam(def.Exit)
	return NewRuleStrategy(def)
}

func (d Definition) clone() Definition {
	cp := Definition{Name: d.Name}
	cp.Indicators = make([]indicator.Spec, len(d.Indicators))
	for i, spec := range d.Indicators {
		params := make(map[string]float64, len(spec.Params))
		for k, v := range spec.Params {
			params[k] = v
		}
		cp.Indicators[i] = indicator.Spec{Name: spec.Name, Alias: spec.Alias, Params: params}
	}
	cp.Entry = append([]Condition(nil), d.Entry...)
	cp.Exit = append([]Condition(nil), d.Exit...)
	return cp
}

func evalConditions(conds []Condition, ind IndicatorSet, n int) []bool {
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		fire := true
		for _, c := range conds {
			if !evalCondition(c, ind, i) {
				fire = false
				break
			}
		}
		out[i] = fire
	}
	return out
}

// evalCondition evaluates one condition on candle i. Undefined (NaN) operands
// never fire, which keeps warm-up candles silent without special casing.
func evalCondition(c Condition, ind IndicatorSet, i int) bool {
	lhsLine, ok := ind.Line(c.Indicator)
	if !ok {
		return false
	}
	lhs, ok := valueAt(lhsLine, i)
	if !ok {
		return false
	}

	rhsAt := func(j int) (float64, bool) {
		if c.Other == "" {
			return c.Threshold, true
		}
		line, ok := ind.Line(c.Other)
		if !ok {
			return 0, false
		}
		return valueAt(line, j)
	}

	rhs, ok := rhsAt(i)
	if !ok {
		return false
	}

	switch c.Comparator {
	case "lt":
		return lhs < rhs
	case "gt":
		return lhs > rhs
	case "le":
		return lhs <= rhs
	case "ge":
		return lhs >= rhs
	case "eq":
		return lhs == rhs
	case "crosses_above", "crosses_below":
		if i == 0 {
			return false
		}
		prevLHS, ok := valueAt(lhsLine, i-1)
		if !ok {
			return false
		}
		prevRHS, ok := rhsAt(i - 1)
		if !ok {
			return false
		}
		if c.Comparator == "crosses_above" {
			return prevLHS <= prevRHS && lhs > rhs
		}
		return prevLHS >= prevRHS && lhs < rhs
	default:
		return false
	}
}
