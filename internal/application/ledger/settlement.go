package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/metrics"
)

// SettlementResult reports what a settlement call did. Applied is false when
// the position was already closed and nothing changed.
type SettlementResult struct {
	PositionID   string  `json:"position_id"`
	Applied      bool    `json:"applied"`
	ExitPrice    float64 `json:"exit_price"`
	RealizedPnL  float64 `json:"realized_pnl"`
	CashReturned float64 `json:"cash_returned"`
	Won          bool    `json:"won"`
}

// Settle closes an open position of the portfolio at a resolved price
// (0 or 1). Settling a closed position is a no-op.
func (s *Service) Settle(ctx context.Context, portfolioID, positionID string, exitPrice float64) (SettlementResult, error) {
	if !domain.IsResolvedPrice(exitPrice) {
		return SettlementResult{}, fmt.Errorf("ledger.Settle: %w: %v", domain.ErrInvalidExitPrice, exitPrice)
	}
	pos, err := s.store.GetPosition(ctx, portfolioID, positionID)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("ledger.Settle: %w", err)
	}
	res, err := s.settle(ctx, pos, exitPrice)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("ledger.Settle: %w", err)
	}
	return res, nil
}

func (s *Service) settle(ctx context.Context, pos domain.Position, exitPrice float64) (SettlementResult, error) {
	res := SettlementResult{PositionID: pos.ID, ExitPrice: exitPrice}
	if !pos.IsOpen() {
		return res, nil
	}

	st, err := domain.NewSettlement(pos, exitPrice, s.now())
	if err != nil {
		return res, err
	}
	applied, err := s.store.SettlePosition(ctx, st)
	if err != nil {
		return res, err
	}
	if !applied {
		// closed concurrently by another pass
		return res, nil
	}

	res.Applied = true
	res.RealizedPnL = st.RealizedPnL
	res.CashReturned = st.CashReturned
	res.Won = st.Won

	outcome := "lost"
	if st.Won {
		outcome = "won"
	}
	metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
	slog.Info("ledger: position settled",
		"portfolio_id", pos.PortfolioID,
		"position_id", pos.ID,
		"market_id", pos.MarketID,
		"side", pos.Side,
		"exit_price", exitPrice,
		"realized_pnl", st.RealizedPnL,
		"cash_returned", st.CashReturned,
	)
	return res, nil
}
