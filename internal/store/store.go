// Package store provides candle sources: an in-memory store for tests and
// CSV-loaded data, and a Postgres-backed store for real history.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/backtester/internal/candle"
)

// Source serves historical candles for one pair and timeframe in the
// half-open interval [start, end), oldest first.
type Source interface {
	GetCandles(ctx context.Context, pair, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// NoDataError reports that a source holds nothing for the requested window.
type NoDataError struct {
	Pair      string
	Timeframe string
}

func (e *NoDataError) Error() string {
	return fmt.Sprintf("no candles for %s %s", e.Pair, e.Timeframe)
}

type memoryKey struct {
	pair      string
	timeframe string
}

// Memory is an in-memory Source. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[memoryKey][]candle.Candle
}

func NewMemory() *Memory {
	return &Memory{data: make(map[memoryKey][]candle.Candle)}
}

// Add stores candles for a pair and timeframe, keeping the set sorted by
// timestamp. Repeated calls append.
func (m *Memory) Add(pair, timeframe string, candles []candle.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memoryKey{pair: pair, timeframe: timeframe}
	merged := append(m.data[key], candles...)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	m.data[key] = merged
}

func (m *Memory) GetCandles(ctx context.Context, pair, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	all, ok := m.data[memoryKey{pair: pair, timeframe: timeframe}]
	if !ok {
		return nil, &NoDataError{Pair: pair, Timeframe: timeframe}
	}

	var out []candle.Candle
	for _, c := range all {
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
