package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/amirphl/backtester/internal/candle"
)

// Postgres serves candles from a candles table keyed by (symbol, timeframe,
// timestamp).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to the database and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// GetCandles fetches candles in [start, end), oldest first.
func (p *Postgres) GetCandles(ctx context.Context, pair, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC`,
		pair, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles for %s %s: %w", pair, timeframe, err)
	}
	defer rows.Close()

	var candles []candle.Candle
	for rows.Next() {
		var c candle.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, &NoDataError{Pair: pair, Timeframe: timeframe}
	}
	return candles, nil
}

// SaveCandles upserts candles inside one transaction, so a partial import
// never leaves the table half-written.
func (p *Postgres) SaveCandles(ctx context.Context, pair, timeframe string, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return &candle.InvalidCandleError{Index: i, Reason: err.Error()}
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (symbol, timeframe, timestamp) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, pair, timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save candle for %s %s at %s: %w", pair, timeframe, c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candles: %w", err)
	}
	return nil
}
