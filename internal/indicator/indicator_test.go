package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/backtester/internal/candle"
)

func seriesFromCloses(t *testing.T, closes []float64) *candle.Series {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]candle.Candle, len(closes))
	for i, c := range closes {
		candles[i] = candle.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	s, err := candle.NewSeries("BTCUSDT", "1m", candles)
	require.NoError(t, err)
	return s
}

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name     string
		prices   []float64
		period   int
		expected []float64
	}{
		{
			name:     "basic",
			prices:   []float64{1, 2, 3, 4, 5},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 2, 3, 4},
		},
		{
			name:     "period one",
			prices:   []float64{5, 7, 9},
			period:   1,
			expected: []float64{5, 7, 9},
		},
		{
			name:     "insufficient data",
			prices:   []float64{1, 2},
			period:   5,
			expected: []float64{math.NaN(), math.NaN()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSMA(tt.prices, tt.period)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
				} else {
					assert.InDelta(t, tt.expected[i], got[i], 1e-9, "index %d", i)
				}
			}
		})
	}
}

func TestCalculateEMA(t *testing.T) {
	// Seed at index period-1 is the SMA of the first period values, then the
	// standard recurrence with k = 2/(period+1).
	got := CalculateEMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, got, 5)
	assert.True(t, math.IsNaN(got[0]))
	assert.True(t, math.IsNaN(got[1]))
	assert.InDelta(t, 2.0, got[2], 1e-9)
	assert.InDelta(t, 3.0, got[3], 1e-9)
	assert.InDelta(t, 4.0, got[4], 1e-9)
}

func TestCalculateEMAInsufficientData(t *testing.T) {
	got := CalculateEMA([]float64{1, 2}, 5)
	require.Len(t, got, 2)
	for i := range got {
		assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
	}
}

func TestCalculateRSI(t *testing.T) {
	t.Run("all gains", func(t *testing.T) {
		prices := make([]float64, 30)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		got := CalculateRSI(prices, 14)
		require.Len(t, got, 30)
		for i := 0; i < 13; i++ {
			assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
		}
		for i := 13; i < 30; i++ {
			assert.InDelta(t, 100.0, got[i], 1e-9, "index %d", i)
		}
	})

	t.Run("all losses", func(t *testing.T) {
		prices := make([]float64, 30)
		for i := range prices {
			prices[i] = 200 - float64(i)
		}
		got := CalculateRSI(prices, 14)
		for i := 13; i < 30; i++ {
			assert.InDelta(t, 0.0, got[i], 1e-9, "index %d", i)
		}
	})

	t.Run("flat prices report 100", func(t *testing.T) {
		prices := make([]float64, 20)
		for i := range prices {
			prices[i] = 50
		}
		got := CalculateRSI(prices, 14)
		for i := 13; i < 20; i++ {
			assert.InDelta(t, 100.0, got[i], 1e-9, "index %d", i)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		prices := []float64{44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83,
			45.10, 45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28}
		got := CalculateRSI(prices, 14)
		for i := 13; i < len(got); i++ {
			assert.GreaterOrEqual(t, got[i], 0.0, "index %d", i)
			assert.LessOrEqual(t, got[i], 100.0, "index %d", i)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		got := CalculateRSI([]float64{1, 2, 3}, 14)
		require.Len(t, got, 3)
		for i := range got {
			assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
		}
	})
}

func TestCalculateMACD(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + math.Sin(float64(i)/5)*10
	}
	macd, sig, hist := CalculateMACD(prices, 12, 26, 9)
	require.Len(t, macd, 60)
	require.Len(t, sig, 60)
	require.Len(t, hist, 60)

	// MACD line becomes available at slow-1, the signal line signal-1 later.
	for i := 0; i < 25; i++ {
		assert.True(t, math.IsNaN(macd[i]), "macd index %d should be NaN", i)
	}
	assert.False(t, math.IsNaN(macd[25]))
	for i := 0; i < 33; i++ {
		assert.True(t, math.IsNaN(sig[i]), "signal index %d should be NaN", i)
	}
	assert.False(t, math.IsNaN(sig[33]))

	for i := 33; i < 60; i++ {
		assert.InDelta(t, macd[i]-sig[i], hist[i], 1e-9, "hist index %d", i)
	}
}

func TestCalculateATR(t *testing.T) {
	// Constant 2-point range around a flat close keeps the true range at 2.
	n := 20
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 10
		highs[i] = 11
		lows[i] = 9
	}
	got := CalculateATR(highs, lows, closes, 14)
	require.Len(t, got, n)
	for i := 0; i < 14; i++ {
		assert.True(t, math.IsNaN(got[i]), "index %d should be NaN", i)
	}
	for i := 14; i < n; i++ {
		assert.InDelta(t, 2.0, got[i], 1e-9, "index %d", i)
	}
}

func TestCalculateBollinger(t *testing.T) {
	t.Run("flat prices collapse to the middle band", func(t *testing.T) {
		prices := make([]float64, 25)
		for i := range prices {
			prices[i] = 100
		}
		upper, middle, lower := CalculateBollinger(prices, 20, 2)
		for i := 19; i < 25; i++ {
			assert.InDelta(t, 100.0, upper[i], 1e-9)
			assert.InDelta(t, 100.0, middle[i], 1e-9)
			assert.InDelta(t, 100.0, lower[i], 1e-9)
		}
	})

	t.Run("population stddev", func(t *testing.T) {
		upper, middle, lower := CalculateBollinger([]float64{1, 3}, 2, 2)
		assert.True(t, math.IsNaN(upper[0]))
		assert.InDelta(t, 2.0, middle[1], 1e-9)
		assert.InDelta(t, 4.0, upper[1], 1e-9)
		assert.InDelta(t, 0.0, lower[1], 1e-9)
	})
}

func TestCalculateStochastic(t *testing.T) {
	t.Run("close at the window high pins k at 100", func(t *testing.T) {
		n := 25
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			closes[i] = 100 + float64(i)
			highs[i] = closes[i]
			lows[i] = closes[i] - 2
		}
		k, d := CalculateStochastic(highs, lows, closes, 14, 1, 3)
		for i := 0; i < 13; i++ {
			assert.True(t, math.IsNaN(k[i]), "k index %d should be NaN", i)
		}
		for i := 13; i < n; i++ {
			assert.InDelta(t, 100.0, k[i], 1e-9, "k index %d", i)
		}
		for i := 0; i < 15; i++ {
			assert.True(t, math.IsNaN(d[i]), "d index %d should be NaN", i)
		}
		for i := 15; i < n; i++ {
			assert.InDelta(t, 100.0, d[i], 1e-9, "d index %d", i)
		}
	})

	t.Run("flat range defaults to 50", func(t *testing.T) {
		n := 20
		highs := make([]float64, n)
		lows := make([]float64, n)
		closes := make([]float64, n)
		for i := 0; i < n; i++ {
			highs[i] = 10
			lows[i] = 10
			closes[i] = 10
		}
		k, _ := CalculateStochastic(highs, lows, closes, 14, 1, 3)
		for i := 13; i < n; i++ {
			assert.InDelta(t, 50.0, k[i], 1e-9, "k index %d", i)
		}
	})
}

func TestCompute(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/4)*5
	}
	s := seriesFromCloses(t, closes)

	specs := []Spec{
		{Name: "sma", Params: map[string]float64{"period": 10}},
		{Name: "ema", Params: map[string]float64{"period": 10}},
		{Name: "volume_sma", Params: map[string]float64{"period": 10}},
		{Name: "rsi", Params: map[string]float64{"period": 14}},
		{Name: "macd"},
		{Name: "macd_signal"},
		{Name: "macd_hist"},
		{Name: "atr", Params: map[string]float64{"period": 14}},
		{Name: "bollinger_upper"},
		{Name: "bollinger_middle"},
		{Name: "bollinger_lower"},
		{Name: "stochastic_k"},
		{Name: "stochastic_d"},
		{Name: "doji"},
		{Name: "hammer"},
		{Name: "bullish_engulfing"},
		{Name: "bearish_engulfing"},
	}

	for _, spec := range specs {
		t.Run(spec.Name, func(t *testing.T) {
			line, err := Compute(s, spec)
			require.NoError(t, err)
			require.Len(t, line.Values, s.Len())

			want, err := Warmup(spec)
			require.NoError(t, err)
			assert.Equal(t, want, line.Warmup, "warm-up mismatch")

			for i := line.Warmup; i < s.Len(); i++ {
				assert.False(t, math.IsNaN(line.Values[i]), "index %d should be defined", i)
			}
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 100 + math.Cos(float64(i)/3)*7
	}
	s := seriesFromCloses(t, closes)
	spec := Spec{Name: "rsi", Params: map[string]float64{"period": 14}}

	a, err := Compute(s, spec)
	require.NoError(t, err)
	b, err := Compute(s, spec)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestComputeUnknownIndicator(t *testing.T) {
	s := seriesFromCloses(t, []float64{10, 11, 12})
	_, err := Compute(s, Spec{Name: "supertrend"})
	require.Error(t, err)

	var unknown *UnknownIndicatorError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "supertrend", unknown.Name)

	_, err = Warmup(Spec{Name: "supertrend"})
	require.True(t, errors.As(err, &unknown))
}

func TestComputeInvalidPeriod(t *testing.T) {
	s := seriesFromCloses(t, []float64{10, 11, 12})

	_, err := Compute(s, Spec{Name: "sma", Params: map[string]float64{"period": 0}})
	assert.Error(t, err)

	_, err = Compute(s, Spec{Name: "macd", Params: map[string]float64{"fast": 26, "slow": 12}})
	assert.Error(t, err)
}

func TestComputeShortSeries(t *testing.T) {
	// Not enough candles for the window: the line degrades to all-NaN rather
	// than failing, so callers see zero valid values instead of an error.
	s := seriesFromCloses(t, []float64{10, 11, 12})
	line, err := Compute(s, Spec{Name: "sma", Params: map[string]float64{"period": 20}})
	require.NoError(t, err)
	require.Len(t, line.Values, 3)
	assert.Equal(t, 3, line.Warmup)
	for i := range line.Values {
		assert.False(t, line.Valid(i), "index %d should be invalid", i)
	}
}

func TestSpecKey(t *testing.T) {
	assert.Equal(t, "sma", Spec{Name: "sma"}.Key())
	assert.Equal(t, "sma_fast", Spec{Name: "sma", Alias: "sma_fast"}.Key())
}

func TestLineValidAt(t *testing.T) {
	line := newLine([]float64{math.NaN(), math.NaN(), 3, 4})
	assert.Equal(t, 2, line.Warmup)
	assert.False(t, line.Valid(-1))
	assert.False(t, line.Valid(0))
	assert.True(t, line.Valid(2))
	assert.False(t, line.Valid(4))
	assert.True(t, math.IsNaN(line.At(0)))
	assert.True(t, math.IsNaN(line.At(10)))
	assert.Equal(t, 4.0, line.At(3))
}
