package backtest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/backtester/internal/candle"
	"github.com/amirphl/backtester/internal/strategy"
)

// Result is the outcome of one strategy run over one series. Config is the
// simulation configuration the run used, with defaults filled in, so the
// result names its own inputs wherever it travels.
type Result struct {
	Pair        string    `json:"pair"`
	Timeframe   string    `json:"timeframe"`
	Strategy    string    `json:"strategy"`
	Config      SimConfig `json:"config"`
	Trades      []Trade   `json:"trades"`
	EquityCurve []float64 `json:"equity_curve"`
	Metrics     Metrics   `json:"metrics"`
}

// Engine runs strategies through the execution simulator. It holds no
// per-run state, so one engine can serve concurrent runs.
type Engine struct {
	log *zap.Logger
}

func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log}
}

// Run computes the strategy's indicators and signals over the series,
// suppresses signals inside the indicator warm-up window, simulates
// execution and scores the result. A series too short for the warm-up
// produces a zero-trade result rather than an error.
func (e *Engine) Run(ctx context.Context, s *candle.Series, strat strategy.Strategy, cfg SimConfig) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	warmup := strat.WarmupPeriod()
	sig := Signals{
		Enter: make([]bool, s.Len()),
		Exit:  make([]bool, s.Len()),
	}

	if s.Len() > warmup {
		ind, err := strat.PopulateIndicators(s)
		if err != nil {
			return nil, fmt.Errorf("populate indicators for %s: %w", strat.Name(), err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sig.Enter = strat.PopulateEntry(s, ind)
		sig.Exit = strat.PopulateExit(s, ind)
		for i := 0; i < warmup && i < s.Len(); i++ {
			sig.Enter[i] = false
			sig.Exit[i] = false
		}
	} else {
		e.log.Warn("series shorter than strategy warm-up, no trades possible",
			zap.String("pair", s.Pair()),
			zap.String("strategy", strat.Name()),
			zap.Int("candles", s.Len()),
			zap.Int("warmup", warmup))
	}

	trades, equity, err := Simulate(s, sig, cfg)
	if err != nil {
		return nil, fmt.Errorf("simulate %s on %s: %w", strat.Name(), s.Pair(), err)
	}

	metrics := ComputeMetrics(trades, equity, cfg.InitialCapital, s.Timeframe())
	e.log.Info("backtest finished",
		zap.String("pair", s.Pair()),
		zap.String("timeframe", s.Timeframe()),
		zap.String("strategy", strat.Name()),
		zap.Int("trades", metrics.TotalTrades),
		zap.Float64("profit_pct", metrics.ProfitPct),
		zap.Float64("max_drawdown", metrics.MaxDrawdownPct))

	return &Result{
		Pair:        s.Pair(),
		Timeframe:   s.Timeframe(),
		Strategy:    strat.Name(),
		Config:      cfg,
		Trades:      trades,
		EquityCurve: equity,
		Metrics:     metrics,
	}, nil
}
