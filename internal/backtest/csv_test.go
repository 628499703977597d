package backtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTradesCSV(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []Trade{
		{
			Pair:       "BTCUSDT",
			Side:       SideLong,
			EntryTime:  base,
			ExitTime:   base.Add(3 * time.Hour),
			EntryPrice: 100,
			ExitPrice:  110,
			Amount:     2,
			PnL:        20,
			PnLPct:     10,
			Fees:       0.5,
			Duration:   3 * time.Hour,
			ExitReason: ExitSignal,
		},
		{
			Pair:       "BTCUSDT",
			Side:       SideLong,
			EntryTime:  base.Add(5 * time.Hour),
			ExitTime:   base.Add(9 * time.Hour),
			EntryPrice: 110,
			ExitPrice:  105,
			Amount:     2,
			PnL:        -10,
			PnLPct:     -4.5,
			Fees:       0.5,
			Duration:   4 * time.Hour,
			ExitReason: ExitEndOfData,
			ForcedExit: true,
		},
	}

	var sb strings.Builder
	require.NoError(t, WriteTradesCSV(&sb, trades))

	records, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, tradeCSVHeader, records[0])
	assert.Equal(t, SideLong, records[1][1])
	assert.Equal(t, "2024-01-01T00:00:00Z", records[1][2])
	assert.Equal(t, "20", records[1][7])
	assert.Equal(t, "3h0m0s", records[1][10])
	assert.Equal(t, ExitSignal, records[1][11])
	assert.Equal(t, "true", records[2][12])
}

func TestSaveTradesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, SaveTradesCSV(path, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(tradeCSVHeader, ",")+"\n", string(data))
}
