package backtest

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/backtester/internal/strategy"
)

func oscillatingCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 20*math.Sin(float64(i)/6)
	}
	return closes
}

func TestEngineRun(t *testing.T) {
	s := seriesFromCloses(t, oscillatingCloses(300))
	strat, err := strategy.New("rsi_reversion", map[string]float64{
		"oversold":   40,
		"overbought": 60,
	})
	require.NoError(t, err)

	engine := NewEngine(nil)
	res, err := engine.Run(context.Background(), s, strat, SimConfig{InitialCapital: 1000, FeeRate: 0.001})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", res.Pair)
	assert.Equal(t, "1h", res.Timeframe)
	assert.Equal(t, "rsi_reversion", res.Strategy)
	require.Len(t, res.EquityCurve, 300)
	assert.NotEmpty(t, res.Trades, "oscillating prices should trade")

	for _, tr := range res.Trades {
		assert.GreaterOrEqual(t, tr.ExitIndex, tr.EntryIndex)
		assert.GreaterOrEqual(t, tr.EntryIndex, strat.WarmupPeriod(), "no trades inside warm-up")
	}
	assert.Equal(t, len(res.Trades), res.Metrics.TotalTrades)
	assert.InDelta(t, res.EquityCurve[299], res.Metrics.FinalEquity, 1e-9)
}

func TestEngineRunResultCarriesConfig(t *testing.T) {
	// The result must name the configuration that produced it, with the
	// simulator's defaults filled in, so downstream consumers never have to
	// look the run parameters up elsewhere.
	s := seriesFromCloses(t, oscillatingCloses(100))
	strat, err := strategy.New("rsi_reversion", nil)
	require.NoError(t, err)

	cfg := SimConfig{InitialCapital: 1000, FeeRate: 0.001, StopLossPct: 0.05}
	res, err := NewEngine(nil).Run(context.Background(), s, strat, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, res.Config.InitialCapital)
	assert.Equal(t, 0.001, res.Config.FeeRate)
	assert.Equal(t, 0.05, res.Config.StopLossPct)
	assert.Equal(t, 1.0, res.Config.Leverage, "defaults are filled before the run")
	assert.Equal(t, 1.0, res.Config.PositionPct)
}

func TestEngineRunDeterministic(t *testing.T) {
	s := seriesFromCloses(t, oscillatingCloses(300))
	strat, err := strategy.New("sma_cross", nil)
	require.NoError(t, err)

	engine := NewEngine(nil)
	cfg := SimConfig{InitialCapital: 1000, FeeRate: 0.001, Slippage: 0.0005}

	a, err := engine.Run(context.Background(), s, strat, cfg)
	require.NoError(t, err)
	b, err := engine.Run(context.Background(), s, strat, cfg)
	require.NoError(t, err)
	require.Equal(t, a, b, "same inputs must produce identical results")
}

func TestEngineRunInsufficientData(t *testing.T) {
	// Ten candles cannot warm up a 14-period RSI: no trades, flat equity,
	// and no error.
	s := seriesFromCloses(t, oscillatingCloses(10))
	strat, err := strategy.New("rsi_reversion", nil)
	require.NoError(t, err)

	res, err := NewEngine(nil).Run(context.Background(), s, strat, SimConfig{InitialCapital: 1000})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 0, res.Metrics.TotalTrades)
	require.Len(t, res.EquityCurve, 10)
	for _, e := range res.EquityCurve {
		assert.InDelta(t, 1000, e, 1e-9)
	}
}

func TestEngineRunFlatSeriesNoTrades(t *testing.T) {
	// Constant prices never move RSI below the oversold level, so the
	// reversion strategy stays out of the market entirely.
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100
	}
	s := seriesFromCloses(t, closes)
	strat, err := strategy.New("rsi_reversion", nil)
	require.NoError(t, err)

	res, err := NewEngine(nil).Run(context.Background(), s, strat, SimConfig{InitialCapital: 1000})
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Equal(t, 0.0, res.Metrics.MaxDrawdownPct)
}

func TestEngineRunCancelled(t *testing.T) {
	s := seriesFromCloses(t, oscillatingCloses(50))
	strat, err := strategy.New("rsi_reversion", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewEngine(nil).Run(ctx, s, strat, SimConfig{InitialCapital: 1000})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineRunInvalidConfig(t *testing.T) {
	s := seriesFromCloses(t, oscillatingCloses(50))
	strat, err := strategy.New("rsi_reversion", nil)
	require.NoError(t, err)

	_, err = NewEngine(nil).Run(context.Background(), s, strat, SimConfig{})
	assert.Error(t, err)
}

func TestEngineRunForcedCloseOnTrendingSeries(t *testing.T) {
	// A V-shaped series crosses the averages upward once and never back
	// down, leaving the position open until the data runs out.
	closes := make([]float64, 120)
	for i := range closes {
		if i < 60 {
			closes[i] = 100 - float64(i)*0.2
		} else {
			closes[i] = 88 + float64(i-60)*0.5
		}
	}
	s := seriesFromCloses(t, closes)
	strat, err := strategy.New("sma_cross", map[string]float64{"fast_period": 5, "slow_period": 20})
	require.NoError(t, err)

	res, err := NewEngine(nil).Run(context.Background(), s, strat, SimConfig{InitialCapital: 1000})
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	last := res.Trades[len(res.Trades)-1]
	assert.True(t, last.ForcedExit)
	assert.Equal(t, ExitEndOfData, last.ExitReason)
	assert.Equal(t, 119, last.ExitIndex)
}
