package candle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCandle(ts time.Time) Candle {
	return Candle{
		Timestamp: ts,
		Open:      100,
		High:      105,
		Low:       95,
		Close:     102,
		Volume:    1000,
	}
}

func TestCandleValidate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*Candle)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Candle) {}, wantErr: false},
		{name: "zero timestamp", mutate: func(c *Candle) { c.Timestamp = time.Time{} }, wantErr: true},
		{name: "non-positive price", mutate: func(c *Candle) { c.Open = 0 }, wantErr: true},
		{name: "high below low", mutate: func(c *Candle) { c.High = 90 }, wantErr: true},
		{name: "open above high", mutate: func(c *Candle) { c.Open = 110 }, wantErr: true},
		{name: "close below low", mutate: func(c *Candle) { c.Close = 90 }, wantErr: true},
		{name: "negative volume", mutate: func(c *Candle) { c.Volume = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandle(base)
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewSeries(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{
		validCandle(base),
		validCandle(base.Add(time.Hour)),
		validCandle(base.Add(2 * time.Hour)),
	}

	s, err := NewSeries("BTCUSDT", "1h", candles)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", s.Pair())
	assert.Equal(t, "1h", s.Timeframe())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, candles[2], s.Last())
	assert.Equal(t, candles[1], s.At(1))
}

func TestNewSeriesEmptyPair(t *testing.T) {
	_, err := NewSeries("", "1h", nil)
	assert.Error(t, err)

	_, err = NewSeries("BTCUSDT", "", nil)
	assert.Error(t, err)
}

func TestNewSeriesRejectsInvalidCandle(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := validCandle(base.Add(time.Hour))
	bad.High = 1 // below low

	_, err := NewSeries("BTCUSDT", "1h", []Candle{validCandle(base), bad})
	require.Error(t, err)

	var invalid *InvalidCandleError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, 1, invalid.Index)
}

func TestNewSeriesRejectsUnorderedTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("out of order", func(t *testing.T) {
		_, err := NewSeries("BTCUSDT", "1h", []Candle{
			validCandle(base.Add(time.Hour)),
			validCandle(base),
		})
		var invalid *InvalidCandleError
		require.True(t, errors.As(err, &invalid))
		assert.Equal(t, 1, invalid.Index)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := NewSeries("BTCUSDT", "1h", []Candle{
			validCandle(base),
			validCandle(base),
		})
		assert.Error(t, err)
	})
}

func TestSeriesIsImmutable(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []Candle{validCandle(base), validCandle(base.Add(time.Hour))}

	s, err := NewSeries("BTCUSDT", "1h", candles)
	require.NoError(t, err)

	// Mutating the caller's slice must not leak into the series.
	candles[0].Close = 1
	candles[0].Low = 1
	assert.Equal(t, 102.0, s.At(0).Close)

	// Mutating a returned copy must not either.
	cp := s.Candles()
	cp[1].Close = 1
	assert.Equal(t, 102.0, s.At(1).Close)
}

func TestSeriesColumns(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c1 := validCandle(base)
	c2 := validCandle(base.Add(time.Hour))
	c2.Open, c2.High, c2.Low, c2.Close, c2.Volume = 102, 108, 101, 107, 2000

	s, err := NewSeries("BTCUSDT", "1h", []Candle{c1, c2})
	require.NoError(t, err)

	assert.Equal(t, []float64{100, 102}, s.Opens())
	assert.Equal(t, []float64{105, 108}, s.Highs())
	assert.Equal(t, []float64{95, 101}, s.Lows())
	assert.Equal(t, []float64{102, 107}, s.Closes())
	assert.Equal(t, []float64{1000, 2000}, s.Volumes())
}
