package backtest

import (
	"math"
	"strconv"
	"time"

	"github.com/amirphl/backtester/internal/tfutils"
)

// Float64 marshals NaN and infinities as JSON null instead of failing, so
// sentinel values like an infinite profit factor survive serialization.
type Float64 float64

func (f Float64) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Float64(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = Float64(v)
	return nil
}

// Metrics summarizes a backtest run. Ratio metrics that have no defined value
// for the run (no trades, flat equity, no losses) are reported as 0, except
// ProfitFactor which keeps its +Inf sentinel and serializes as null.
type Metrics struct {
	TotalTrades      int           `json:"total_trades"`
	WinningTrades    int           `json:"winning_trades"`
	LosingTrades     int           `json:"losing_trades"`
	TotalProfit      float64       `json:"total_profit"`
	ProfitPct        float64       `json:"profit_pct"`
	WinRate          float64       `json:"win_rate"` // percentage, 0..100
	MaxDrawdownPct   float64       `json:"max_drawdown"`
	Sharpe           float64       `json:"sharpe_ratio"`
	Sortino          float64       `json:"sortino_ratio"`
	Calmar           float64       `json:"calmar_ratio"`
	ProfitFactor     Float64       `json:"profit_factor"`
	Expectancy       float64       `json:"expectancy"`
	BestTrade        float64       `json:"best_trade"`
	WorstTrade       float64       `json:"worst_trade"`
	AvgTradeDuration time.Duration `json:"avg_trade_duration"`
	TotalFees        float64       `json:"total_fees"`
	FinalEquity      float64       `json:"final_equity"`
}

// ComputeMetrics scores a run from its closed trades and per-candle equity
// curve. The timeframe sets the annualization factor for the ratio metrics.
func ComputeMetrics(trades []Trade, equity []float64, initialCapital float64, timeframe string) Metrics {
	m := Metrics{FinalEquity: initialCapital}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1]
	}
	if initialCapital > 0 {
		m.ProfitPct = (m.FinalEquity - initialCapital) / initialCapital * 100
	}

	var grossProfit, grossLoss, totalPnL float64
	var totalDuration time.Duration
	for i, t := range trades {
		m.TotalTrades++
		m.TotalFees += t.Fees
		totalPnL += t.PnL
		totalDuration += t.Duration
		if t.PnL > 0 {
			m.WinningTrades++
			grossProfit += t.PnL
		} else {
			m.LosingTrades++
			grossLoss += -t.PnL
		}
		if i == 0 || t.PnL > m.BestTrade {
			m.BestTrade = t.PnL
		}
		if i == 0 || t.PnL < m.WorstTrade {
			m.WorstTrade = t.PnL
		}
	}
	m.TotalProfit = totalPnL
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades) * 100
		m.Expectancy = totalPnL / float64(m.TotalTrades)
		m.AvgTradeDuration = totalDuration / time.Duration(m.TotalTrades)
	}
	switch {
	case grossProfit == 0 && grossLoss == 0:
		// Covers zero trades and all-break-even runs alike.
		m.ProfitFactor = 0
	case grossLoss == 0:
		m.ProfitFactor = Float64(math.Inf(1))
	default:
		m.ProfitFactor = Float64(grossProfit / grossLoss)
	}

	m.MaxDrawdownPct = maxDrawdown(equity)

	returns := perBarReturns(equity)
	annualize := math.Sqrt(tfutils.BarsPerYear(timeframe))
	m.Sharpe = sharpe(returns) * annualize
	m.Sortino = sortino(returns) * annualize
	m.Calmar = calmar(equity, initialCapital, m.MaxDrawdownPct, tfutils.BarsPerYear(timeframe))

	return m
}

// maxDrawdown returns the largest peak-to-trough equity decline as a positive
// percentage.
func maxDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			dd := (peak - e) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func perBarReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, equity[i]/equity[i-1]-1)
	}
	return out
}

// sharpe is the per-bar Sharpe ratio with a zero risk-free rate; callers
// annualize it. Zero variance yields 0.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(len(returns)))
	if sd == 0 {
		return 0
	}
	return mean / sd
}

// sortino divides the mean return by the downside deviation, the RMS of the
// negative returns over all bars. No downside yields 0.
func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := meanOf(returns)
	var downside float64
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	dd := math.Sqrt(downside / float64(len(returns)))
	if dd == 0 {
		return 0
	}
	return mean / dd
}

// calmar divides the annualized return by the maximum drawdown fraction.
// A run with no drawdown yields 0.
func calmar(equity []float64, initialCapital, maxDDPct, barsPerYear float64) float64 {
	if maxDDPct == 0 || len(equity) == 0 || initialCapital <= 0 || barsPerYear <= 0 {
		return 0
	}
	final := equity[len(equity)-1]
	if final <= 0 {
		return -1 / (maxDDPct / 100)
	}
	annualized := math.Pow(final/initialCapital, barsPerYear/float64(len(equity))) - 1
	return annualized / (maxDDPct / 100)
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
