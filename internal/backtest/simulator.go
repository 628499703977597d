// Package backtest simulates strategy execution over historical candles and
// scores the outcome.
package backtest

import (
	"fmt"
	"time"

	"github.com/amirphl/backtester/internal/candle"
)

// Exit reasons recorded on closed trades.
const (
	ExitSignal       = "signal"
	ExitStopLoss     = "stop-loss"
	ExitTrailingStop = "trailing-stop"
	ExitEndOfData    = "end-of-data"
)

// SideLong is the only side the simulator opens; shorting is not modeled.
const SideLong = "long"

// SimConfig controls the execution simulation. Percentages are fractions:
// a 2% stop-loss is 0.02.
type SimConfig struct {
	InitialCapital float64 `json:"initial_capital"`
	FeeRate        float64 `json:"fee_rate"`
	Slippage       float64 `json:"slippage,omitempty"`
	Leverage       float64 `json:"leverage"`
	PositionPct    float64 `json:"position_pct"` // fraction of cash committed per trade
	StopLossPct    float64 `json:"stop_loss_pct,omitempty"`     // 0 disables
	TrailingPct    float64 `json:"trailing_stop_pct,omitempty"` // 0 disables
}

// Validate checks the configuration and fills defaults for zero-valued
// leverage and position sizing.
func (c *SimConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("sim config: initial capital must be positive, got %f", c.InitialCapital)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("sim config: fee rate must be in [0, 1), got %f", c.FeeRate)
	}
	if c.Slippage < 0 || c.Slippage >= 1 {
		return fmt.Errorf("sim config: slippage must be in [0, 1), got %f", c.Slippage)
	}
	if c.Leverage == 0 {
		c.Leverage = 1
	}
	if c.Leverage < 1 {
		return fmt.Errorf("sim config: leverage must be at least 1, got %f", c.Leverage)
	}
	if c.PositionPct == 0 {
		c.PositionPct = 1
	}
	if c.PositionPct < 0 || c.PositionPct > 1 {
		return fmt.Errorf("sim config: position size must be in (0, 1], got %f", c.PositionPct)
	}
	if c.StopLossPct < 0 || c.StopLossPct >= 1 {
		return fmt.Errorf("sim config: stop-loss must be in [0, 1), got %f", c.StopLossPct)
	}
	if c.TrailingPct < 0 || c.TrailingPct >= 1 {
		return fmt.Errorf("sim config: trailing stop must be in [0, 1), got %f", c.TrailingPct)
	}
	return nil
}

// Signals are the aligned entry/exit decisions a strategy produced for a
// series.
type Signals struct {
	Enter []bool
	Exit  []bool
}

// Trade is one completed round trip. PnLPct is the net profit relative to the
// margin committed, and Duration is the wall-clock time between entry and exit
// candles.
type Trade struct {
	Pair       string        `json:"pair"`
	Side       string        `json:"side"`
	EntryIndex int           `json:"entry_index"`
	ExitIndex  int           `json:"exit_index"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Amount     float64       `json:"amount"`
	PnL        float64       `json:"pnl"`
	PnLPct     float64       `json:"pnl_pct"`
	Fees       float64       `json:"fees"`
	Duration   time.Duration `json:"duration"`
	ExitReason string        `json:"exit_reason"`
	ForcedExit bool          `json:"forced_exit,omitempty"`
}

// position is the single open long while the simulator walks the series.
type position struct {
	entryIndex int
	entryPrice float64
	cost       float64 // margin taken from cash
	amount     float64 // base asset quantity (cost * leverage / entryPrice)
	entryFee   float64
	trailHigh  float64 // highest high seen up to the previous candle
}

// Simulate replays the signals over the series and returns the closed trades
// plus the mark-to-market equity after each candle. At most one position is
// open at a time; protective stops are evaluated against the candle's range
// before the exit signal, and any position still open after the last candle
// is force-closed at its close.
func Simulate(s *candle.Series, sig Signals, cfg SimConfig) ([]Trade, []float64, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	n := s.Len()
	if len(sig.Enter) != n || len(sig.Exit) != n {
		return nil, nil, fmt.Errorf("signal length %d/%d does not match series length %d", len(sig.Enter), len(sig.Exit), n)
	}

	cash := cfg.InitialCapital
	equity := make([]float64, n)
	var trades []Trade
	var pos *position

	closeAt := func(i int, price float64, reason string, forced bool) {
		exitFee := cfg.FeeRate * pos.amount * price
		pnl := pos.amount*(price-pos.entryPrice) - pos.entryFee - exitFee
		cash += pos.cost + pos.amount*(price-pos.entryPrice) - exitFee
		entryTime := s.At(pos.entryIndex).Timestamp
		exitTime := s.At(i).Timestamp
		var pnlPct float64
		if pos.cost > 0 {
			pnlPct = pnl / pos.cost * 100
		}
		trades = append(trades, Trade{
			Pair:       s.Pair(),
			Side:       SideLong,
			EntryIndex: pos.entryIndex,
			ExitIndex:  i,
			EntryTime:  entryTime,
			ExitTime:   exitTime,
			EntryPrice: pos.entryPrice,
			ExitPrice:  price,
			Amount:     pos.amount,
			PnL:        pnl,
			PnLPct:     pnlPct,
			Fees:       pos.entryFee + exitFee,
			Duration:   exitTime.Sub(entryTime),
			ExitReason: reason,
			ForcedExit: forced,
		})
		pos = nil
	}

	for i := 0; i < n; i++ {
		c := s.At(i)

		if pos != nil {
			// Protective stops look at the candle's low and fill at the stop
			// price, as a resting order would. The trailing reference only
			// includes highs up to the previous candle so the stop cannot
			// react to the very excursion that triggers it.
			stopped := false
			if cfg.StopLossPct > 0 {
				stop := pos.entryPrice * (1 - cfg.StopLossPct)
				if c.Low <= stop {
					closeAt(i, stop*(1-cfg.Slippage), ExitStopLoss, false)
					stopped = true
				}
			}
			if !stopped && cfg.TrailingPct > 0 {
				stop := pos.trailHigh * (1 - cfg.TrailingPct)
				if c.Low <= stop {
					closeAt(i, stop*(1-cfg.Slippage), ExitTrailingStop, false)
					stopped = true
				}
			}
			if !stopped && sig.Exit[i] {
				closeAt(i, c.Close*(1-cfg.Slippage), ExitSignal, false)
				stopped = true
			}
			if !stopped {
				if c.High > pos.trailHigh {
					pos.trailHigh = c.High
				}
			}
		} else if sig.Enter[i] && i < n-1 {
			entryPrice := c.Close * (1 + cfg.Slippage)
			// The allocation covers both the margin and the entry fee, so a
			// full-size position always remains affordable.
			alloc := cash * cfg.PositionPct
			cost := alloc / (1 + cfg.FeeRate*cfg.Leverage)
			notional := cost * cfg.Leverage
			entryFee := cfg.FeeRate * notional
			if cost > 0 && entryPrice > 0 {
				cash -= cost + entryFee
				pos = &position{
					entryIndex: i,
					entryPrice: entryPrice,
					cost:       cost,
					amount:     notional / entryPrice,
					entryFee:   entryFee,
					trailHigh:  c.High,
				}
			}
		}

		if pos != nil && i == n-1 {
			closeAt(i, c.Close*(1-cfg.Slippage), ExitEndOfData, true)
		}

		if pos != nil {
			equity[i] = cash + pos.cost + pos.amount*(c.Close-pos.entryPrice)
		} else {
			equity[i] = cash
		}
	}

	return trades, equity, nil
}
