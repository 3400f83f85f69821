package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"forex-signal-engine/internal/signal"
)

// SignalRepository persists generated signals and their lifecycle
type SignalRepository struct {
	q querier
}

// NewSignalRepository creates a signal repository on the pool
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{q: db.Pool}
}

// SaveSignal inserts or replaces a signal
func (r *SignalRepository) SaveSignal(ctx context.Context, s *signal.Signal) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode signal: %w", err)
	}
	query := `
		INSERT INTO signals (id, symbol, direction, grade, status, timeframe, entry, stop_loss,
			take_profit_1, take_profit_2, take_profit_3, confluence, confidence, lots, last_price,
			source, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			last_price = EXCLUDED.last_price,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`
	_, err = r.q.Exec(
		ctx, query,
		s.ID, s.Symbol, string(s.Direction), string(s.Grade), string(s.Status), string(s.Timeframe),
		s.Entry, s.StopLoss, s.TakeProfit1, nullable(s.TakeProfit2), nullable(s.TakeProfit3),
		s.ConfluenceScore, s.Confidence, s.Sizing.Lots, nullable(s.LastPrice),
		s.Source, payload, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

// UpdateSignalStatus records a lifecycle transition
func (r *SignalRepository) UpdateSignalStatus(ctx context.Context, id string, status signal.SignalStatus, price float64, at time.Time) error {
	query := `
		UPDATE signals
		SET status = $2, last_price = $3, updated_at = $4,
			payload = payload || jsonb_build_object('status', $2::text, 'lastPrice', $3::float8, 'updatedAt', $4::timestamptz)
		WHERE id = $1
	`
	tag, err := r.q.Exec(ctx, query, id, string(status), price, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, signal.ErrSignalNotFound)
	}
	return nil
}

// GetSignal loads one signal by ID
func (r *SignalRepository) GetSignal(ctx context.Context, id string) (*signal.Signal, error) {
	var payload []byte
	err := r.q.QueryRow(ctx, `SELECT payload FROM signals WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, signal.ErrSignalNotFound)
	}
	if err != nil {
		return nil, err
	}
	var s signal.Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, fmt.Errorf("failed to decode signal %s: %w", id, err)
	}
	return &s, nil
}

// ListSignals returns signals newest first, optionally filtered by symbol and status
func (r *SignalRepository) ListSignals(ctx context.Context, symbol string, status signal.SignalStatus, limit int) ([]signal.Signal, error) {
	query, args := listSignalsQuery(symbol, status, limit)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []signal.Signal
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var s signal.Signal
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("failed to decode signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ActiveSignals loads every non-terminal signal, used to rebuild the registry on start
func (r *SignalRepository) ActiveSignals(ctx context.Context) ([]signal.Signal, error) {
	all, err := r.ListSignals(ctx, "", "", 0)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if !s.Status.IsTerminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

func listSignalsQuery(symbol string, status signal.SignalStatus, limit int) (string, []any) {
	var where []string
	var args []any
	if symbol != "" {
		args = append(args, strings.ToUpper(symbol))
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if status != "" {
		args = append(args, string(status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT payload FROM signals"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

func nullable(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
