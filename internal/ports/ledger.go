package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

// Ledger is the durable portfolio store and position ledger. Every call is
// scoped by an explicit portfolio id; rows of other portfolios are invisible.
// Multi-row mutations are atomic: either every write of the call lands or none.
type Ledger interface {
	CreatePortfolio(ctx context.Context, p domain.Portfolio) error
	// GetPortfolio returns domain.ErrPortfolioNotFound when id is unknown.
	GetPortfolio(ctx context.Context, id string) (domain.Portfolio, error)
	// ListPortfolios filters by status; empty status lists all.
	ListPortfolios(ctx context.Context, status domain.PortfolioStatus) ([]domain.Portfolio, error)
	// UpdatePortfolio applies an allow-listed patch and stamps last_updated.
	UpdatePortfolio(ctx context.Context, id string, patch domain.PortfolioPatch, at time.Time) (domain.Portfolio, error)
	// PurgePortfolio deletes the portfolio and everything it owns.
	PurgePortfolio(ctx context.Context, id string) error

	SaveSignals(ctx context.Context, signals []domain.Signal) error
	GetSignal(ctx context.Context, portfolioID, signalID string) (domain.Signal, error)
	// PendingSignals returns unexecuted signals, oldest first.
	PendingSignals(ctx context.Context, portfolioID string) ([]domain.Signal, error)

	// ExecuteTrade claims the signal, debits the balance and records the
	// position and trade in one transaction. It rejects with
	// domain.ErrPortfolioInactive, domain.ErrSignalExecuted or
	// *domain.InsufficientBalanceError without writing anything.
	ExecuteTrade(ctx context.Context, exec domain.Execution) error

	GetPosition(ctx context.Context, portfolioID, positionID string) (domain.Position, error)
	// Positions filters by status; empty status lists all.
	Positions(ctx context.Context, portfolioID string, status domain.PositionStatus) ([]domain.Position, error)
	// ApplyMarks writes unrealized P&L for positions still open, recomputes
	// the portfolio totals and stamps last_price_update.
	ApplyMarks(ctx context.Context, portfolioID string, marks []domain.Mark, at time.Time) error
	// SettlePosition closes an open position and credits the portfolio.
	// It returns false without writing when the position is no longer open.
	SettlePosition(ctx context.Context, s domain.Settlement) (bool, error)

	// Trades returns trade records newest first; limit <= 0 means no limit.
	Trades(ctx context.Context, portfolioID string, status domain.PositionStatus, limit int) ([]domain.Trade, error)

	SaveSnapshot(ctx context.Context, s domain.Snapshot) error
	// History returns snapshots newest first; limit <= 0 means no limit.
	History(ctx context.Context, portfolioID string, limit int) ([]domain.Snapshot, error)

	Close() error
}
