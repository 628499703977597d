package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

var tradeCSVHeader = []string{
	"pair", "side", "entry_time", "exit_time", "entry_price", "exit_price",
	"amount", "pnl", "pnl_pct", "fees", "duration", "exit_reason", "forced_exit",
}

// WriteTradesCSV writes the closed trades as CSV, one row per round trip.
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeCSVHeader); err != nil {
		return fmt.Errorf("write trades header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			t.Pair,
			t.Side,
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			strconv.FormatFloat(t.EntryPrice, 'f', -1, 64),
			strconv.FormatFloat(t.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(t.Amount, 'f', -1, 64),
			strconv.FormatFloat(t.PnL, 'f', -1, 64),
			strconv.FormatFloat(t.PnLPct, 'f', -1, 64),
			strconv.FormatFloat(t.Fees, 'f', -1, 64),
			t.Duration.String(),
			t.ExitReason,
			strconv.FormatBool(t.ForcedExit),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write trade row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveTradesCSV writes the trades to a file.
func SaveTradesCSV(path string, trades []Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	if err := WriteTradesCSV(f, trades); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
