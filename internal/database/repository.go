package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"binance-signal-engine/internal/risk"
	"binance-signal-engine/internal/strategy"
)

// SignalRecord is a persisted signal row
type SignalRecord struct {
	ID                 string    `json:"id"`
	Symbol             string    `json:"symbol"`
	Side               string    `json:"side"`
	Strategy           string    `json:"strategy"`
	Entry              float64   `json:"entry"`
	StopLoss           float64   `json:"stop_loss"`
	TakeProfit1        float64   `json:"take_profit_1"`
	TakeProfit2        float64   `json:"take_profit_2"`
	TakeProfit3        float64   `json:"take_profit_3"`
	PositionSize       float64   `json:"position_size"`
	Leverage           float64   `json:"leverage"`
	RiskAmount         float64   `json:"risk_amount"`
	Confidence         int       `json:"confidence"`
	WeightedConfidence int       `json:"weighted_confidence"`
	Regime             string    `json:"regime"`
	ATR                float64   `json:"atr"`
	CurrentPrice       float64   `json:"current_price"`
	Reasons            []string  `json:"reasons"`
	CreatedAt          time.Time `json:"created_at"`
}

// Repository handles signal and trade persistence
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveSignal persists a generated signal
func (r *Repository) SaveSignal(ctx context.Context, sig *strategy.Signal) error {
	query := `
		INSERT INTO signals (
			id, symbol, side, strategy, entry, stop_loss,
			take_profit_1, take_profit_2, take_profit_3,
			position_size, leverage, risk_amount,
			confidence, weighted_confidence, regime, atr, current_price,
			reasons, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.db.Pool.Exec(ctx, query,
		sig.ID, sig.Symbol, string(sig.Side), sig.Strategy,
		sig.Entry, sig.StopLoss,
		sig.TakeProfit1, sig.TakeProfit2, sig.TakeProfit3,
		sig.PositionSize, sig.Leverage, sig.RiskAmount,
		sig.Confidence, sig.WeightedConfidence, sig.Regime,
		sig.ATR, sig.CurrentPrice,
		strings.Join(sig.Reasons, ";"), sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save signal: %w", err)
	}
	return nil
}

// ListSignals returns the most recent signals, optionally filtered by symbol
func (r *Repository) ListSignals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, symbol, side, strategy, entry, stop_loss,
			take_profit_1, take_profit_2, take_profit_3,
			COALESCE(position_size, 0), COALESCE(leverage, 0), COALESCE(risk_amount, 0),
			confidence, weighted_confidence,
			COALESCE(regime, ''), COALESCE(atr, 0), COALESCE(current_price, 0),
			COALESCE(reasons, ''), created_at
		FROM signals`
	args := []interface{}{}
	if symbol != "" {
		query += ` WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, symbol, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var records []SignalRecord
	for rows.Next() {
		var rec SignalRecord
		var reasons string
		if err := rows.Scan(
			&rec.ID, &rec.Symbol, &rec.Side, &rec.Strategy,
			&rec.Entry, &rec.StopLoss,
			&rec.TakeProfit1, &rec.TakeProfit2, &rec.TakeProfit3,
			&rec.PositionSize, &rec.Leverage, &rec.RiskAmount,
			&rec.Confidence, &rec.WeightedConfidence,
			&rec.Regime, &rec.ATR, &rec.CurrentPrice,
			&reasons, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		if reasons != "" {
			rec.Reasons = strings.Split(reasons, ";")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DailySignalCount returns the number of signals generated on the given UTC day
func (r *Repository) DailySignalCount(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM signals WHERE created_at >= $1 AND created_at < $2`,
		start, end,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count daily signals: %w", err)
	}
	return count, nil
}

// SaveTrade persists a tracked trade. signalID and strategyName may be empty
// when the trade was opened manually rather than from an arbiter signal.
func (r *Repository) SaveTrade(ctx context.Context, t *risk.Trade, signalID, strategyName string) error {
	query := `
		INSERT INTO trades (
			id, signal_id, symbol, side, strategy, entry, stop_loss,
			take_profit_1, take_profit_2, take_profit_3,
			quantity, leverage, status, pnl_percent, opened_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	var sigID interface{}
	if signalID != "" {
		sigID = signalID
	}

	_, err := r.db.Pool.Exec(ctx, query,
		t.ID, sigID, t.Symbol, string(t.Side), strategyName,
		t.Entry, t.StopLoss,
		t.TP1, t.TP2, t.TP3,
		t.PositionSize, t.Leverage, string(t.Status), t.UnrealizedPnL, t.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// UpdateTrade updates a trade's status and PnL
func (r *Repository) UpdateTrade(ctx context.Context, id string, status risk.TradeStatus, pnlPercent float64) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE trades SET status = $1, pnl_percent = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $3`,
		string(status), pnlPercent, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update trade: %w", err)
	}
	return nil
}

// StrategyBreakdown returns total signal counts grouped by strategy
func (r *Repository) StrategyBreakdown(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT strategy, COUNT(*) FROM signals GROUP BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, fmt.Errorf("failed to scan breakdown row: %w", err)
		}
		breakdown[name] = count
	}
	return breakdown, rows.Err()
}
