package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const tradeColumns = `id, portfolio_id, signal_id, timestamp, market_id, market_question, side,
	amount, entry_price, confidence, reason, status, event_id, event_title, event_end_date, realized_pnl`

func scanTrade(row scanner) (domain.Trade, error) {
	var (
		t                domain.Trade
		ts, side, status string
		endDate          sql.NullString
		realized         sql.NullFloat64
	)
	err := row.Scan(
		&t.ID, &t.PortfolioID, &t.SignalID, &ts, &t.MarketID, &t.MarketQuestion, &side,
		&t.Amount, &t.EntryPrice, &t.Confidence, &t.Reason, &status, &t.EventID, &t.EventTitle,
		&endDate, &realized,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Side = domain.Side(side)
	t.Status = domain.PositionStatus(status)
	t.RealizedPnL = nullFloat(realized)
	if t.Timestamp, err = parseTime(ts); err != nil {
		return domain.Trade{}, fmt.Errorf("timestamp: %w", err)
	}
	if t.EventEndDate, err = parseNullTime(endDate); err != nil {
		return domain.Trade{}, fmt.Errorf("event_end_date: %w", err)
	}
	return t, nil
}

func (s *SQLStorage) insertTrade(ctx context.Context, tx *sql.Tx, t domain.Trade) error {
	_, err := s.exec(ctx, tx, `
		INSERT INTO trades (id, portfolio_id, signal_id, timestamp, market_id, market_question, side,
		                    amount, entry_price, confidence, reason, status, event_id, event_title,
		                    event_end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', ?, ?, ?)`,
		t.ID, t.PortfolioID, t.SignalID, formatTime(t.Timestamp), t.MarketID, t.MarketQuestion,
		string(t.Side), t.Amount, t.EntryPrice, t.Confidence, t.Reason, t.EventID, t.EventTitle,
		formatTimePtr(t.EventEndDate),
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// Trades returns the portfolio's trade records, newest first.
func (s *SQLStorage) Trades(ctx context.Context, portfolioID string, status domain.PositionStatus, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE portfolio_id = ?`
	args := []any{portfolioID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY timestamp DESC, id DESC`
	lim, limArgs := limitClause(limit)
	query += lim
	args = append(args, limArgs...)

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Trades: %w", err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.Trades: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
