package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const signalColumns = `id, portfolio_id, created_at, market_id, market_question, side,
	target_price, amount, confidence, reason, yes_price, no_price,
	market_liquidity, market_volume, event_id, event_title, event_end_date,
	expires_at, executed, executed_at, trade_id`

func scanSignal(row scanner) (domain.Signal, error) {
	var (
		sig                          domain.Signal
		side, created                string
		endDate, expires, executedAt sql.NullString
		tradeID                      sql.NullString
		executed                     int
	)
	err := row.Scan(
		&sig.ID, &sig.PortfolioID, &created, &sig.MarketID, &sig.MarketQuestion, &side,
		&sig.TargetPrice, &sig.Amount, &sig.Confidence, &sig.Reason, &sig.YesPrice, &sig.NoPrice,
		&sig.MarketLiquidity, &sig.MarketVolume, &sig.EventID, &sig.EventTitle, &endDate,
		&expires, &executed, &executedAt, &tradeID,
	)
	if err != nil {
		return domain.Signal{}, err
	}
	sig.Side = domain.Side(side)
	sig.Executed = executed != 0
	sig.TradeID = tradeID.String
	if sig.CreatedAt, err = parseTime(created); err != nil {
		return domain.Signal{}, fmt.Errorf("created_at: %w", err)
	}
	if sig.EventEndDate, err = parseNullTime(endDate); err != nil {
		return domain.Signal{}, fmt.Errorf("event_end_date: %w", err)
	}
	if sig.ExpiresAt, err = parseNullTime(expires); err != nil {
		return domain.Signal{}, fmt.Errorf("expires_at: %w", err)
	}
	if sig.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return domain.Signal{}, fmt.Errorf("executed_at: %w", err)
	}
	return sig, nil
}

// SaveSignals stores strategy output. All rows land or none do.
func (s *SQLStorage) SaveSignals(ctx context.Context, signals []domain.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, sig := range signals {
			_, err := s.exec(ctx, tx, `
				INSERT INTO signals (id, portfolio_id, created_at, market_id, market_question, side,
				                     target_price, amount, confidence, reason, yes_price, no_price,
				                     market_liquidity, market_volume, event_id, event_title, event_end_date,
				                     expires_at, executed)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
				sig.ID, sig.PortfolioID, formatTime(sig.CreatedAt), sig.MarketID, sig.MarketQuestion,
				string(sig.Side), sig.TargetPrice, sig.Amount, sig.Confidence, sig.Reason,
				sig.YesPrice, sig.NoPrice, sig.MarketLiquidity, sig.MarketVolume,
				sig.EventID, sig.EventTitle, formatTimePtr(sig.EventEndDate), formatTimePtr(sig.ExpiresAt),
			)
			if err != nil {
				return fmt.Errorf("insert %s: %w", sig.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage.SaveSignals: %w", err)
	}
	return nil
}

// GetSignal loads one signal of the portfolio.
func (s *SQLStorage) GetSignal(ctx context.Context, portfolioID, signalID string) (domain.Signal, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT `+signalColumns+` FROM signals WHERE id = ? AND portfolio_id = ?`), signalID, portfolioID)
	sig, err := scanSignal(row)
	if err != nil {
		return domain.Signal{}, fmt.Errorf("storage.GetSignal: %w", notFound(err, domain.ErrSignalNotFound, signalID))
	}
	return sig, nil
}

// PendingSignals lists unexecuted signals in the order they were produced.
func (s *SQLStorage) PendingSignals(ctx context.Context, portfolioID string) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`
		SELECT `+signalColumns+` FROM signals
		WHERE portfolio_id = ? AND executed = 0
		ORDER BY created_at, id`), portfolioID)
	if err != nil {
		return nil, fmt.Errorf("storage.PendingSignals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.PendingSignals: scan: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// claimSignal marks the signal executed inside tx. Losing the race to
// another executor reads as domain.ErrSignalExecuted.
func (s *SQLStorage) claimSignal(ctx context.Context, tx *sql.Tx, exec domain.Execution) error {
	n, err := s.exec(ctx, tx, `
		UPDATE signals SET executed = 1, executed_at = ?, trade_id = ?
		WHERE id = ? AND portfolio_id = ? AND executed = 0`,
		formatTime(exec.Trade.Timestamp), exec.Trade.ID, exec.Signal.ID, exec.Signal.PortfolioID,
	)
	if err != nil {
		return fmt.Errorf("claim signal: %w", err)
	}
	if n == 1 {
		return nil
	}

	var count int
	err = tx.QueryRowContext(ctx, s.d.rebind(`
		SELECT COUNT(*) FROM signals WHERE id = ? AND portfolio_id = ?`),
		exec.Signal.ID, exec.Signal.PortfolioID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("claim signal: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSignalNotFound, exec.Signal.ID)
	}
	return fmt.Errorf("%w: %s", domain.ErrSignalExecuted, exec.Signal.ID)
}
