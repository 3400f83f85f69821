package database

import (
	"context"
	"fmt"
	"strings"

	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/marketdata"
)

// CandleRepository stores candle history and serves it as a market data source
type CandleRepository struct {
	q querier
}

// NewCandleRepository creates a candle repository on the pool
func NewCandleRepository(db *DB) *CandleRepository {
	return &CandleRepository{q: db.Pool}
}

// Candles returns the latest limit candles in ascending time order
func (r *CandleRepository) Candles(ctx context.Context, symbol string, tf market.Timeframe, limit int) (market.Series, error) {
	if limit <= 0 {
		limit = marketdata.DefaultLimit
	}
	query := `
		SELECT time, open, high, low, close, volume
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY time DESC
		LIMIT $3
	`
	rows, err := r.q.Query(ctx, query, strings.ToUpper(symbol), string(tf), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out market.Series
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, marketdata.ErrNoData
	}

	// Rows arrive newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpsertCandles stores candles, replacing bars that already exist
func (r *CandleRepository) UpsertCandles(ctx context.Context, symbol string, tf market.Timeframe, candles market.Series) error {
	query := `
		INSERT INTO candles (symbol, timeframe, time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume
	`
	symbol = strings.ToUpper(symbol)
	for _, c := range candles {
		if _, err := r.q.Exec(ctx, query, symbol, string(tf), c.Time, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return fmt.Errorf("failed to store %s %s candle at %s: %w", symbol, tf, c.Time, err)
		}
	}
	return nil
}
