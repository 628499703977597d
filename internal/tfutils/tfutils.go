// Package tfutils
package tfutils

import (
	"errors"
	"time"
)

// ParseTimeframe parses a timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, errors.New("unsupported timeframe")
	}
}

// GetTimeframeDuration returns the duration for a given timeframe, or 0 if unsupported.
func GetTimeframeDuration(timeframe string) time.Duration {
	d, err := ParseTimeframe(timeframe)
	if err != nil {
		return 0
	}
	return d
}

// IsValidTimeframe reports whether the timeframe string is supported.
func IsValidTimeframe(timeframe string) bool {
	_, err := ParseTimeframe(timeframe)
	return err == nil
}

// GetSupportedTimeframes returns all supported timeframes
func GetSupportedTimeframes() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}
}

// BarsPerYear returns how many bars of the given timeframe fit into a year,
// used to annualize per-bar return statistics. Unsupported timeframes return 0.
func BarsPerYear(timeframe string) float64 {
	d := GetTimeframeDuration(timeframe)
	if d <= 0 {
		return 0
	}
	return float64(365*24*time.Hour) / float64(d)
}
