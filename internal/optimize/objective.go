package optimize

import (
	"fmt"
	"sort"

	"github.com/amirphl/backtester/internal/backtest"
)

// UnknownObjectiveError is returned when an optimization objective name is
// not recognized.
type UnknownObjectiveError struct {
	Name string
}

func (e *UnknownObjectiveError) Error() string {
	return fmt.Sprintf("unknown optimization objective %q", e.Name)
}

// Every objective is maximized; metrics where smaller is better are negated.
var objectives = map[string]func(backtest.Metrics) float64{
	"profit_pct":    func(m backtest.Metrics) float64 { return m.ProfitPct },
	"total_profit":  func(m backtest.Metrics) float64 { return m.TotalProfit },
	"win_rate":      func(m backtest.Metrics) float64 { return m.WinRate },
	"sharpe_ratio":  func(m backtest.Metrics) float64 { return m.Sharpe },
	"sortino_ratio": func(m backtest.Metrics) float64 { return m.Sortino },
	"calmar_ratio":  func(m backtest.Metrics) float64 { return m.Calmar },
	"max_drawdown":  func(m backtest.Metrics) float64 { return -m.MaxDrawdownPct },
	"profit_factor": func(m backtest.Metrics) float64 { return float64(m.ProfitFactor) },
	"expectancy":    func(m backtest.Metrics) float64 { return m.Expectancy },
}

// Score maps a metrics snapshot to the named objective's value.
func Score(name string, m backtest.Metrics) (float64, error) {
	f, ok := objectives[name]
	if !ok {
		return 0, &UnknownObjectiveError{Name: name}
	}
	return f(m), nil
}

// ValidObjective reports whether the objective name is recognized.
func ValidObjective(name string) bool {
	_, ok := objectives[name]
	return ok
}

// Objectives returns the supported objective names in sorted order.
func Objectives() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
