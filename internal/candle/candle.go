// Package candle
package candle

import (
	"fmt"
	"time"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// InvalidCandleError reports a malformed candle and the index it was found at.
type InvalidCandleError struct {
	Index  int
	Reason string
}

func (e *InvalidCandleError) Error() string {
	return fmt.Sprintf("invalid candle at index %d: %s", e.Index, e.Reason)
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return fmt.Errorf("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return fmt.Errorf("candle prices must be positive")
	}
	if c.High < c.Low {
		return fmt.Errorf("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle volume cannot be negative")
	}
	return nil
}

// Series is an immutable, time-ordered sequence of candles for one (pair, timeframe).
// Once constructed it is safe to share across goroutines without locking.
type Series struct {
	pair      string
	timeframe string
	candles   []Candle
}

// NewSeries validates the given candles and wraps them into a Series.
// The slice is copied, so the caller keeps ownership of its own data.
// Validation failures return an *InvalidCandleError naming the offending index.
func NewSeries(pair, timeframe string, candles []Candle) (*Series, error) {
	if pair == "" {
		return nil, fmt.Errorf("series pair cannot be empty")
	}
	if timeframe == "" {
		return nil, fmt.Errorf("series timeframe cannot be empty")
	}

	cp := make([]Candle, len(candles))
	copy(cp, candles)

	for i := range cp {
		if err := cp[i].Validate(); err != nil {
			return nil, &InvalidCandleError{Index: i, Reason: err.Error()}
		}
		if i > 0 && !cp[i].Timestamp.After(cp[i-1].Timestamp) {
			return nil, &InvalidCandleError{Index: i, Reason: "timestamp not strictly increasing"}
		}
	}

	return &Series{pair: pair, timeframe: timeframe, candles: cp}, nil
}

func (s *Series) Pair() string      { return s.pair }
func (s *Series) Timeframe() string { return s.timeframe }
func (s *Series) Len() int          { return len(s.candles) }

// At returns the candle at index i.
func (s *Series) At(i int) Candle { return s.candles[i] }

// Last returns the final candle of the series. Panics on an empty series.
func (s *Series) Last() Candle { return s.candles[len(s.candles)-1] }

// Candles returns a copy of the underlying candles.
func (s *Series) Candles() []Candle {
	cp := make([]Candle, len(s.candles))
	copy(cp, s.candles)
	return cp
}

// Closes returns the close prices as an aligned slice.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Close
	}
	return out
}

// Opens returns the open prices as an aligned slice.
func (s *Series) Opens() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Open
	}
	return out
}

// Highs returns the high prices as an aligned slice.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.High
	}
	return out
}

// Lows returns the low prices as an aligned slice.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Low
	}
	return out
}

// Volumes returns the volumes as an aligned slice.
func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.candles))
	for i, c := range s.candles {
		out[i] = c.Volume
	}
	return out
}
