// Package optimize searches a strategy's parameter space for the best-scoring
// configuration, either by exhaustive grid enumeration or by seeded random
// sampling when the grid is too large.
package optimize

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// Dimension describes the candidate values of one parameter: either an
// explicit Values list, or an inclusive [Min, Max] range stepped by Step.
type Dimension struct {
	Min    float64   `json:"min,omitempty"`
	Max    float64   `json:"max,omitempty"`
	Step   float64   `json:"step,omitempty"`
	Values []float64 `json:"values,omitempty"`
}

// Expand lists every candidate value of the dimension. Range endpoints are
// inclusive; a small epsilon keeps binary representation drift from dropping
// the final step.
func (d Dimension) Expand() ([]float64, error) {
	if len(d.Values) > 0 {
		return append([]float64(nil), d.Values...), nil
	}
	if d.Step <= 0 {
		return nil, fmt.Errorf("dimension step must be positive, got %f", d.Step)
	}
	if d.Max < d.Min {
		return nil, fmt.Errorf("dimension max %f below min %f", d.Max, d.Min)
	}
	count := int(math.Floor((d.Max-d.Min)/d.Step+1e-9)) + 1
	out := make([]float64, count)
	for i := range out {
		out[i] = d.Min + float64(i)*d.Step
	}
	return out, nil
}

// Space maps parameter names to their dimensions.
type Space map[string]Dimension

// Cardinality returns the size of the full grid.
func (sp Space) Cardinality() (int, error) {
	if len(sp) == 0 {
		return 0, fmt.Errorf("parameter space is empty")
	}
	total := 1
	for name, d := range sp {
		values, err := d.Expand()
		if err != nil {
			return 0, fmt.Errorf("dimension %q: %w", name, err)
		}
		if len(values) == 0 {
			return 0, fmt.Errorf("dimension %q has no values", name)
		}
		total *= len(values)
	}
	return total, nil
}

func (sp Space) names() []string {
	names := make([]string, 0, len(sp))
	for name := range sp {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Combinations enumerates the full grid in a deterministic order: parameter
// names sorted, the last name varying fastest.
func (sp Space) Combinations() ([]map[string]float64, error) {
	card, err := sp.Cardinality()
	if err != nil {
		return nil, err
	}
	names := sp.names()
	expanded := make([][]float64, len(names))
	for i, name := range names {
		expanded[i], _ = sp[name].Expand()
	}

	out := make([]map[string]float64, 0, card)
	idx := make([]int, len(names))
	for {
		combo := make(map[string]float64, len(names))
		for i, name := range names {
			combo[name] = expanded[i][idx[i]]
		}
		out = append(out, combo)

		pos := len(names) - 1
		for pos >= 0 {
			idx[pos]++
			if idx[pos] < len(expanded[pos]) {
				break
			}
			idx[pos] = 0
			pos--
		}
		if pos < 0 {
			return out, nil
		}
	}
}

// SampleN draws n parameter sets uniformly from the grid, avoiding duplicates
// on a best-effort basis. The rng makes the draw reproducible for a fixed
// seed.
func (sp Space) SampleN(rng *rand.Rand, n int) ([]map[string]float64, error) {
	if _, err := sp.Cardinality(); err != nil {
		return nil, err
	}
	names := sp.names()
	expanded := make([][]float64, len(names))
	for i, name := range names {
		expanded[i], _ = sp[name].Expand()
	}

	out := make([]map[string]float64, 0, n)
	seen := make(map[string]bool, n)
	for attempts := 0; len(out) < n && attempts < 20*n; attempts++ {
		combo := make(map[string]float64, len(names))
		key := ""
		for i, name := range names {
			v := expanded[i][rng.Intn(len(expanded[i]))]
			combo[name] = v
			key += fmt.Sprintf("%s=%g;", name, v)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, combo)
	}
	return out, nil
}
