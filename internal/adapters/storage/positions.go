package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const positionColumns = `id, portfolio_id, market_id, market_question, side, amount, entry_price,
	entry_timestamp, status, current_pnl, realized_pnl, exit_price, exit_timestamp`

func scanPosition(row scanner) (domain.Position, error) {
	var (
		p                   domain.Position
		side, status, entry string
		realized, exit      sql.NullFloat64
		exitAt              sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.PortfolioID, &p.MarketID, &p.MarketQuestion, &side, &p.Amount, &p.EntryPrice,
		&entry, &status, &p.CurrentPnL, &realized, &exit, &exitAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.RealizedPnL = nullFloat(realized)
	p.ExitPrice = nullFloat(exit)
	if p.EntryTimestamp, err = parseTime(entry); err != nil {
		return domain.Position{}, fmt.Errorf("entry_timestamp: %w", err)
	}
	if p.ExitTimestamp, err = parseNullTime(exitAt); err != nil {
		return domain.Position{}, fmt.Errorf("exit_timestamp: %w", err)
	}
	return p, nil
}

// ExecuteTrade opens a position from a signal. In one transaction it locks
// the portfolio, claims the signal, debits cash, and records the position
// and its trade. Any rejection leaves every row untouched.
func (s *SQLStorage) ExecuteTrade(ctx context.Context, exec domain.Execution) error {
	pid := exec.Signal.PortfolioID
	amount := exec.Position.Amount
	at := exec.Trade.Timestamp

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.lockPortfolio(ctx, tx, pid)
		if err != nil {
			return err
		}
		if !p.IsActive() {
			return fmt.Errorf("%w: %s is %s", domain.ErrPortfolioInactive, pid, p.Status)
		}
		if err := s.claimSignal(ctx, tx, exec); err != nil {
			return err
		}
		if p.CurrentBalance < amount {
			return &domain.InsufficientBalanceError{Required: amount, Available: p.CurrentBalance}
		}

		p.CurrentBalance = domain.SubMoney(p.CurrentBalance, amount)
		p.TotalInvested = domain.AddMoney(p.TotalInvested, amount)
		p.TradeCount++

		n, err := s.exec(ctx, tx, `
			UPDATE portfolios
			SET current_balance = ?, total_invested = ?, trade_count = ?, last_trade_at = ?
			WHERE id = ? AND status = 'active' AND current_balance >= ?`,
			p.CurrentBalance, p.TotalInvested, p.TradeCount, formatTime(at),
			pid, amount,
		)
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		if n == 0 {
			return &domain.InsufficientBalanceError{Required: amount, Available: domain.AddMoney(p.CurrentBalance, amount)}
		}

		if err := s.insertPosition(ctx, tx, exec.Position); err != nil {
			return err
		}
		if err := s.insertTrade(ctx, tx, exec.Trade); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, p, at, false)
	})
	if err != nil {
		return fmt.Errorf("storage.ExecuteTrade: %w", err)
	}
	return nil
}

func (s *SQLStorage) insertPosition(ctx context.Context, tx *sql.Tx, p domain.Position) error {
	_, err := s.exec(ctx, tx, `
		INSERT INTO positions (id, portfolio_id, market_id, market_question, side, amount,
		                       entry_price, entry_timestamp, status, current_pnl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open', 0)`,
		p.ID, p.PortfolioID, p.MarketID, p.MarketQuestion, string(p.Side), p.Amount,
		p.EntryPrice, formatTime(p.EntryTimestamp),
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// GetPosition loads one position of the portfolio.
func (s *SQLStorage) GetPosition(ctx context.Context, portfolioID, positionID string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`
		SELECT `+positionColumns+` FROM positions WHERE id = ? AND portfolio_id = ?`), positionID, portfolioID)
	p, err := scanPosition(row)
	if err != nil {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %w", notFound(err, domain.ErrPositionNotFound, positionID))
	}
	return p, nil
}

// Positions lists the portfolio's positions in entry order.
func (s *SQLStorage) Positions(ctx context.Context, portfolioID string, status domain.PositionStatus) ([]domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE portfolio_id = ?`
	args := []any{portfolioID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY entry_timestamp, id`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.Positions: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApplyMarks writes a repricing pass for one portfolio. Positions closed
// since the pass read them are left alone.
func (s *SQLStorage) ApplyMarks(ctx context.Context, portfolioID string, marks []domain.Mark, at time.Time) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.lockPortfolio(ctx, tx, portfolioID)
		if err != nil {
			return err
		}
		for _, m := range marks {
			_, err := s.exec(ctx, tx, `
				UPDATE positions SET current_pnl = ?
				WHERE id = ? AND portfolio_id = ? AND status = 'open'`,
				m.CurrentPnL, m.PositionID, portfolioID,
			)
			if err != nil {
				return fmt.Errorf("mark %s: %w", m.PositionID, err)
			}
		}
		return s.refreshTotals(ctx, tx, p, at, true)
	})
	if err != nil {
		return fmt.Errorf("storage.ApplyMarks: %w", err)
	}
	return nil
}

// SettlePosition closes the position at its resolved price and credits the
// portfolio. Only the first caller to flip the position from open wins; the
// rest get (false, nil) and write nothing.
func (s *SQLStorage) SettlePosition(ctx context.Context, st domain.Settlement) (bool, error) {
	applied := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.lockPortfolio(ctx, tx, st.PortfolioID)
		if err != nil {
			return err
		}

		n, err := s.exec(ctx, tx, `
			UPDATE positions
			SET status = 'closed', exit_price = ?, exit_timestamp = ?, realized_pnl = ?, current_pnl = ?
			WHERE id = ? AND portfolio_id = ? AND status = 'open'`,
			st.ExitPrice, formatTime(st.At), st.RealizedPnL, st.RealizedPnL,
			st.PositionID, st.PortfolioID,
		)
		if err != nil {
			return fmt.Errorf("close position: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := s.exec(ctx, tx, `
			UPDATE trades SET status = 'closed', realized_pnl = ?
			WHERE id = ? AND portfolio_id = ?`,
			st.RealizedPnL, st.PositionID, st.PortfolioID,
		); err != nil {
			return fmt.Errorf("close trade: %w", err)
		}

		p.CurrentBalance = domain.AddMoney(p.CurrentBalance, st.CashReturned)
		p.TotalInvested = domain.SubMoney(p.TotalInvested, st.Amount)
		p.RealizedPnL = domain.AddMoney(p.RealizedPnL, st.RealizedPnL)
		switch {
		case st.RealizedPnL > 0:
			p.WinningTrades++
		case st.RealizedPnL < 0:
			p.LosingTrades++
		}

		if _, err := s.exec(ctx, tx, `
			UPDATE portfolios
			SET current_balance = ?, total_invested = ?, realized_pnl = ?,
			    winning_trades = ?, losing_trades = ?
			WHERE id = ?`,
			p.CurrentBalance, p.TotalInvested, p.RealizedPnL,
			p.WinningTrades, p.LosingTrades, p.ID,
		); err != nil {
			return fmt.Errorf("credit portfolio: %w", err)
		}
		if err := s.refreshTotals(ctx, tx, p, st.At, false); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("storage.SettlePosition: %w", err)
	}
	return applied, nil
}
