package storage

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

// SaveSnapshot appends a history row.
func (s *SQLStorage) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.exec(ctx, s.db, `
		INSERT INTO portfolio_history (id, portfolio_id, snapshot_date, timestamp, balance,
		                               total_invested, total_profit_loss, total_value,
		                               open_positions, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PortfolioID, snap.SnapshotDate, formatTime(snap.Timestamp), snap.Balance,
		snap.TotalInvested, snap.TotalProfitLoss, snap.TotalValue,
		snap.OpenPositions, snap.TradeCount,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// History returns the portfolio's snapshots, newest first.
func (s *SQLStorage) History(ctx context.Context, portfolioID string, limit int) ([]domain.Snapshot, error) {
	query := `
		SELECT id, portfolio_id, snapshot_date, timestamp, balance, total_invested,
		       total_profit_loss, total_value, open_positions, trade_count
		FROM portfolio_history
		WHERE portfolio_id = ?
		ORDER BY timestamp DESC, id DESC`
	args := []any{portfolioID}
	lim, limArgs := limitClause(limit)
	query += lim
	args = append(args, limArgs...)

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.History: %w", err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var (
			snap domain.Snapshot
			ts   string
		)
		if err := rows.Scan(
			&snap.ID, &snap.PortfolioID, &snap.SnapshotDate, &ts, &snap.Balance, &snap.TotalInvested,
			&snap.TotalProfitLoss, &snap.TotalValue, &snap.OpenPositions, &snap.TradeCount,
		); err != nil {
			return nil, fmt.Errorf("storage.History: scan: %w", err)
		}
		if snap.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("storage.History: timestamp: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
