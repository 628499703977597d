package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/backtester/internal/candle"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSVFile reads candles from a CSV file with the header
// timestamp,open,high,low,close,volume. Timestamps are RFC 3339 strings or
// unix milliseconds.
func LoadCSVFile(path string) ([]candle.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle file: %w", err)
	}
	defer f.Close()
	candles, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// ReadCSV parses candles from CSV data.
func ReadCSV(r io.Reader) ([]candle.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) < len(csvHeader) {
		return nil, fmt.Errorf("csv header has %d columns, want %d", len(header), len(csvHeader))
	}
	for i, want := range csvHeader {
		if strings.ToLower(strings.TrimSpace(header[i])) != want {
			return nil, fmt.Errorf("csv column %d is %q, want %q", i, header[i], want)
		}
	}

	var candles []candle.Candle
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			return candles, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		fields := make([]float64, 5)
		for i := 0; i < 5; i++ {
			fields[i], err = strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, csvHeader[i+1], err)
			}
		}
		candles = append(candles, candle.Candle{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
		})
	}
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
