package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/google/uuid"
)

// Config holds ledger behaviour that is not per portfolio.
type Config struct {
	// RepriceWorkers bounds how many portfolios are repriced in parallel.
	RepriceWorkers int
	// RequireClosedForSettlement settles an extreme price only when the
	// venue also reports the market closed.
	RequireClosedForSettlement bool
}

// Service is the ledger core: portfolio lifecycle, trade execution,
// repricing and settlement. It keeps no balances or positions in memory;
// every operation reads and writes through the store.
type Service struct {
	store  ports.Ledger
	quotes ports.QuoteProvider
	cfg    Config
	now    func() time.Time
	newID  func() string
}

// New creates a ledger service.
func New(store ports.Ledger, quotes ports.QuoteProvider, cfg Config) *Service {
	if cfg.RepriceWorkers <= 0 {
		cfg.RepriceWorkers = runtime.NumCPU()
	}
	return &Service{
		store:  store,
		quotes: quotes,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.New().String() },
	}
}

// WithClock replaces the time source. Tests use it to pin timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PortfolioView is a portfolio together with its open positions.
type PortfolioView struct {
	domain.Portfolio
	OpenPositions []domain.Position `json:"open_positions"`
}

// CreatePortfolio opens a new active portfolio with cash equal to its
// initial balance.
func (s *Service) CreatePortfolio(ctx context.Context, in domain.NewPortfolio) (domain.Portfolio, error) {
	if err := in.Validate(); err != nil {
		return domain.Portfolio{}, fmt.Errorf("ledger.CreatePortfolio: %w", err)
	}
	now := s.now()
	p := domain.Portfolio{
		ID:             s.newID(),
		Name:           in.Name,
		StrategyType:   in.StrategyType,
		StrategyConfig: in.StrategyConfig,
		Status:         domain.PortfolioActive,
		InitialBalance: in.InitialBalance,
		CurrentBalance: in.InitialBalance,
		CreatedAt:      now,
		LastUpdated:    now,
	}
	if err := s.store.CreatePortfolio(ctx, p); err != nil {
		return domain.Portfolio{}, fmt.Errorf("ledger.CreatePortfolio: %w", err)
	}
	slog.Info("ledger: portfolio created",
		"portfolio_id", p.ID,
		"name", p.Name,
		"strategy", p.StrategyType,
		"initial_balance", p.InitialBalance,
	)
	return p, nil
}

// GetPortfolio returns the portfolio and its open positions.
func (s *Service) GetPortfolio(ctx context.Context, id string) (PortfolioView, error) {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("ledger.GetPortfolio: %w", err)
	}
	open, err := s.store.Positions(ctx, id, domain.PositionOpen)
	if err != nil {
		return PortfolioView{}, fmt.Errorf("ledger.GetPortfolio: %w", err)
	}
	return PortfolioView{Portfolio: p, OpenPositions: open}, nil
}

// ListPortfolios lists portfolios, optionally filtered by status.
func (s *Service) ListPortfolios(ctx context.Context, status domain.PortfolioStatus) ([]domain.Portfolio, error) {
	list, err := s.store.ListPortfolios(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("ledger.ListPortfolios: %w", err)
	}
	return list, nil
}

// UpdatePortfolio applies an allow-listed patch.
func (s *Service) UpdatePortfolio(ctx context.Context, id string, patch domain.PortfolioPatch) (domain.Portfolio, error) {
	p, err := s.store.UpdatePortfolio(ctx, id, patch, s.now())
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("ledger.UpdatePortfolio: %w", err)
	}
	if patch.Status != nil {
		slog.Info("ledger: portfolio status changed", "portfolio_id", id, "status", p.Status)
	}
	return p, nil
}

// PurgePortfolio deletes a portfolio and everything it owns.
func (s *Service) PurgePortfolio(ctx context.Context, id string) error {
	if err := s.store.PurgePortfolio(ctx, id); err != nil {
		return fmt.Errorf("ledger.PurgePortfolio: %w", err)
	}
	slog.Warn("ledger: portfolio purged", "portfolio_id", id)
	return nil
}

// SubmitSignals stores strategy output for later execution. Ids and
// creation times are assigned when missing; every signal is validated
// before anything is stored.
func (s *Service) SubmitSignals(ctx context.Context, portfolioID string, signals []domain.Signal) ([]domain.Signal, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, fmt.Errorf("ledger.SubmitSignals: %w", err)
	}
	now := s.now()
	out := make([]domain.Signal, 0, len(signals))
	for i, sig := range signals {
		if sig.ID == "" {
			sig.ID = s.newID()
		}
		if sig.CreatedAt.IsZero() {
			// keep submission order stable for execution
			sig.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		}
		sig.PortfolioID = portfolioID
		sig.Executed = false
		sig.ExecutedAt = nil
		sig.TradeID = ""
		if err := sig.Validate(); err != nil {
			return nil, fmt.Errorf("ledger.SubmitSignals: signal %d: %w", i, err)
		}
		out = append(out, sig)
	}
	if err := s.store.SaveSignals(ctx, out); err != nil {
		return nil, fmt.Errorf("ledger.SubmitSignals: %w", err)
	}
	slog.Debug("ledger: signals stored", "portfolio_id", portfolioID, "count", len(out))
	return out, nil
}

// PendingSignals lists the portfolio's unexecuted signals.
func (s *Service) PendingSignals(ctx context.Context, portfolioID string) ([]domain.Signal, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, fmt.Errorf("ledger.PendingSignals: %w", err)
	}
	sigs, err := s.store.PendingSignals(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("ledger.PendingSignals: %w", err)
	}
	return sigs, nil
}

// Trades returns the portfolio's trade records, newest first.
func (s *Service) Trades(ctx context.Context, portfolioID string, status domain.PositionStatus, limit int) ([]domain.Trade, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, fmt.Errorf("ledger.Trades: %w", err)
	}
	trades, err := s.store.Trades(ctx, portfolioID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.Trades: %w", err)
	}
	return trades, nil
}

// Positions returns the portfolio's positions.
func (s *Service) Positions(ctx context.Context, portfolioID string, status domain.PositionStatus) ([]domain.Position, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, fmt.Errorf("ledger.Positions: %w", err)
	}
	positions, err := s.store.Positions(ctx, portfolioID, status)
	if err != nil {
		return nil, fmt.Errorf("ledger.Positions: %w", err)
	}
	return positions, nil
}

// History returns the portfolio's snapshots, newest first.
func (s *Service) History(ctx context.Context, portfolioID string, limit int) ([]domain.Snapshot, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, fmt.Errorf("ledger.History: %w", err)
	}
	history, err := s.store.History(ctx, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger.History: %w", err)
	}
	return history, nil
}

// Snapshot appends a history row with the portfolio's current aggregates.
func (s *Service) Snapshot(ctx context.Context, portfolioID string) (domain.Snapshot, error) {
	view, err := s.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("ledger.Snapshot: %w", err)
	}
	snap := domain.NewSnapshot(s.newID(), view.Portfolio, len(view.OpenPositions), s.now())
	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("ledger.Snapshot: %w", err)
	}
	return snap, nil
}

// SnapshotAll snapshots every active portfolio. A failing portfolio is
// logged and does not stop the others.
func (s *Service) SnapshotAll(ctx context.Context) ([]domain.Snapshot, error) {
	portfolios, err := s.store.ListPortfolios(ctx, domain.PortfolioActive)
	if err != nil {
		return nil, fmt.Errorf("ledger.SnapshotAll: %w", err)
	}
	out := make([]domain.Snapshot, 0, len(portfolios))
	for _, p := range portfolios {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("ledger.SnapshotAll: %w", err)
		}
		snap, err := s.Snapshot(ctx, p.ID)
		if err != nil {
			slog.Warn("ledger: snapshot failed", "portfolio_id", p.ID, "err", err)
			continue
		}
		out = append(out, snap)
	}
	slog.Info("ledger: snapshots taken", "count", len(out))
	return out, nil
}
