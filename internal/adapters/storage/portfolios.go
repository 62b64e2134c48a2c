package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const portfolioColumns = `id, name, strategy_type, strategy_config, status,
	initial_balance, current_balance, total_invested, realized_pnl, total_profit_loss,
	trade_count, winning_trades, losing_trades, avg_trade_pnl,
	created_at, last_updated, last_trade_at, last_price_update`

func scanPortfolio(row scanner) (domain.Portfolio, error) {
	var (
		p                    domain.Portfolio
		cfg, status          string
		created, updated     string
		lastTrade, lastPrice sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.StrategyType, &cfg, &status,
		&p.InitialBalance, &p.CurrentBalance, &p.TotalInvested, &p.RealizedPnL, &p.TotalProfitLoss,
		&p.TradeCount, &p.WinningTrades, &p.LosingTrades, &p.AvgTradePnL,
		&created, &updated, &lastTrade, &lastPrice,
	)
	if err != nil {
		return domain.Portfolio{}, err
	}
	p.Status = domain.PortfolioStatus(status)
	p.StrategyConfig = json.RawMessage(cfg)
	if p.CreatedAt, err = parseTime(created); err != nil {
		return domain.Portfolio{}, fmt.Errorf("created_at: %w", err)
	}
	if p.LastUpdated, err = parseTime(updated); err != nil {
		return domain.Portfolio{}, fmt.Errorf("last_updated: %w", err)
	}
	if p.LastTradeAt, err = parseNullTime(lastTrade); err != nil {
		return domain.Portfolio{}, fmt.Errorf("last_trade_at: %w", err)
	}
	if p.LastPriceUpdate, err = parseNullTime(lastPrice); err != nil {
		return domain.Portfolio{}, fmt.Errorf("last_price_update: %w", err)
	}
	return p, nil
}

// CreatePortfolio inserts a new portfolio. Cash starts equal to the initial balance.
func (s *SQLStorage) CreatePortfolio(ctx context.Context, p domain.Portfolio) error {
	cfg := string(p.StrategyConfig)
	if cfg == "" {
		cfg = "{}"
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO portfolios (id, name, strategy_type, strategy_config, status,
		                        initial_balance, current_balance, total_invested, realized_pnl,
		                        total_profit_loss, trade_count, winning_trades, losing_trades,
		                        avg_trade_pnl, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, 0, 0, 0, ?, ?)`,
		p.ID, p.Name, p.StrategyType, cfg, string(p.Status),
		p.InitialBalance, p.InitialBalance,
		formatTime(p.CreatedAt), formatTime(p.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("storage.CreatePortfolio: %w", err)
	}
	return nil
}

// GetPortfolio loads one portfolio by id.
func (s *SQLStorage) GetPortfolio(ctx context.Context, id string) (domain.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`), id)
	p, err := scanPortfolio(row)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("storage.GetPortfolio: %w", notFound(err, domain.ErrPortfolioNotFound, id))
	}
	return p, nil
}

// ListPortfolios returns portfolios in creation order, optionally by status.
func (s *SQLStorage) ListPortfolios(ctx context.Context, status domain.PortfolioStatus) ([]domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, s.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPortfolios: %w", err)
	}
	defer rows.Close()

	var out []domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.ListPortfolios: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePortfolio applies an allow-listed patch under the portfolio lock.
func (s *SQLStorage) UpdatePortfolio(ctx context.Context, id string, patch domain.PortfolioPatch, at time.Time) (domain.Portfolio, error) {
	var updated domain.Portfolio
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.lockPortfolio(ctx, tx, id)
		if err != nil {
			return err
		}
		if updated, err = patch.Apply(p); err != nil {
			return err
		}
		updated.LastUpdated = at.UTC()
		_, err = s.exec(ctx, tx, `
			UPDATE portfolios
			SET name = ?, strategy_type = ?, strategy_config = ?, status = ?, last_updated = ?
			WHERE id = ?`,
			updated.Name, updated.StrategyType, string(updated.StrategyConfig), string(updated.Status),
			formatTime(at), id,
		)
		return err
	})
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("storage.UpdatePortfolio: %w", err)
	}
	return updated, nil
}

// PurgePortfolio removes a portfolio and every row it owns in one transaction.
func (s *SQLStorage) PurgePortfolio(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.lockPortfolio(ctx, tx, id); err != nil {
			return err
		}
		for _, table := range []string{"portfolio_history", "trades", "positions", "signals"} {
			if _, err := s.exec(ctx, tx, `DELETE FROM `+table+` WHERE portfolio_id = ?`, id); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		_, err := s.exec(ctx, tx, `DELETE FROM portfolios WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("storage.PurgePortfolio: %w", err)
	}
	return nil
}

// lockPortfolio reads the portfolio inside tx, taking its row lock where the
// backend has one.
func (s *SQLStorage) lockPortfolio(ctx context.Context, tx *sql.Tx, id string) (domain.Portfolio, error) {
	row := tx.QueryRowContext(ctx, s.d.rebind(`SELECT `+portfolioColumns+` FROM portfolios WHERE id = ?`+s.d.forUpdate), id)
	p, err := scanPortfolio(row)
	if err != nil {
		return domain.Portfolio{}, notFound(err, domain.ErrPortfolioNotFound, id)
	}
	return p, nil
}

// refreshTotals recomputes total_profit_loss and avg_trade_pnl from the
// portfolio's realized P&L and the current marks of its open positions.
// priceUpdate also stamps last_price_update.
func (s *SQLStorage) refreshTotals(ctx context.Context, tx *sql.Tx, p domain.Portfolio, at time.Time, priceUpdate bool) error {
	rows, err := tx.QueryContext(ctx, s.d.rebind(`
		SELECT current_pnl FROM positions WHERE portfolio_id = ? AND status = 'open'`), p.ID)
	if err != nil {
		return fmt.Errorf("open marks: %w", err)
	}
	values := []float64{p.RealizedPnL}
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("open marks: scan: %w", err)
		}
		values = append(values, v)
	}
	// rows must be closed before the next statement on this tx (pgx: conn busy)
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	total := domain.SumPnL(values...)
	avg := domain.AvgPnL(total, p.TradeCount)

	query := `UPDATE portfolios SET total_profit_loss = ?, avg_trade_pnl = ?, last_updated = ?`
	args := []any{total, avg, formatTime(at)}
	if priceUpdate {
		query += `, last_price_update = ?`
		args = append(args, formatTime(at))
	}
	query += ` WHERE id = ?`
	args = append(args, p.ID)

	if _, err := s.exec(ctx, tx, query, args...); err != nil {
		return fmt.Errorf("update totals: %w", err)
	}
	return nil
}
