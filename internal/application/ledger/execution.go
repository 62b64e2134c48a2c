package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/metrics"
)

// ExecuteSignals executes every pending signal of the portfolio, oldest
// first. A rejected signal is recorded and the batch moves on; a storage
// failure stops the batch and is returned with the results so far.
// Signals already executed stay executed, so a retry only sees the rest.
func (s *Service) ExecuteSignals(ctx context.Context, portfolioID string) (domain.ExecutionSummary, error) {
	summary := domain.ExecutionSummary{PortfolioID: portfolioID}

	p, err := s.store.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return summary, fmt.Errorf("ledger.ExecuteSignals: %w", err)
	}
	if !p.IsActive() {
		return summary, fmt.Errorf("ledger.ExecuteSignals: %w: %s is %s", domain.ErrPortfolioInactive, p.ID, p.Status)
	}

	pending, err := s.store.PendingSignals(ctx, portfolioID)
	if err != nil {
		return summary, fmt.Errorf("ledger.ExecuteSignals: %w", err)
	}

	for _, sig := range pending {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ledger.ExecuteSignals: %w", err)
		}
		res, err := s.execute(ctx, sig)
		if err != nil {
			return summary, fmt.Errorf("ledger.ExecuteSignals: signal %s: %w", sig.ID, err)
		}
		summary.Add(res)
	}

	slog.Info("ledger: signals executed",
		"portfolio_id", portfolioID,
		"executed", summary.Executed,
		"rejected", summary.Rejected,
		"invested", summary.TotalInvested,
	)
	return summary, nil
}

// ExecuteSignal executes one stored signal. Business rejections come back
// as a non-executed result with a reason, not as an error.
func (s *Service) ExecuteSignal(ctx context.Context, portfolioID, signalID string) (domain.ExecutionResult, error) {
	sig, err := s.store.GetSignal(ctx, portfolioID, signalID)
	if err != nil {
		if domain.IsRejection(err) {
			metrics.SignalsTotal.WithLabelValues("rejected").Inc()
			return domain.ExecutionResult{SignalID: signalID, Reason: rejectionReason(err)}, nil
		}
		return domain.ExecutionResult{}, fmt.Errorf("ledger.ExecuteSignal: %w", err)
	}
	res, err := s.execute(ctx, sig)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("ledger.ExecuteSignal: %w", err)
	}
	return res, nil
}

// execute validates the signal and hands the whole trade to the store as
// one atomic unit. The returned error is reserved for infrastructure
// failures.
func (s *Service) execute(ctx context.Context, sig domain.Signal) (domain.ExecutionResult, error) {
	res := domain.ExecutionResult{SignalID: sig.ID, MarketID: sig.MarketID, Amount: sig.Amount}

	now := s.now()
	err := sig.Validate()
	if err == nil && sig.Expired(now) {
		err = fmt.Errorf("%w: %s", domain.ErrSignalExpired, sig.ID)
	}
	if err == nil {
		exec := domain.NewExecution(sig, s.newID(), now)
		if err = s.store.ExecuteTrade(ctx, exec); err == nil {
			res.Executed = true
			res.TradeID = exec.Trade.ID
			metrics.SignalsTotal.WithLabelValues("executed").Inc()
			metrics.InvestedTotal.Add(sig.Amount)
			slog.Info("ledger: trade executed",
				"portfolio_id", sig.PortfolioID,
				"trade_id", exec.Trade.ID,
				"market_id", sig.MarketID,
				"side", sig.Side,
				"amount", sig.Amount,
				"entry_price", sig.TargetPrice,
			)
			return res, nil
		}
	}

	if !domain.IsRejection(err) {
		metrics.SignalsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	res.Reason = rejectionReason(err)
	metrics.SignalsTotal.WithLabelValues("rejected").Inc()
	slog.Info("ledger: signal rejected",
		"portfolio_id", sig.PortfolioID,
		"signal_id", sig.ID,
		"market_id", sig.MarketID,
		"reason", res.Reason,
	)
	return res, nil
}

// rejectionReason strips the storage wrapping and keeps the message a
// strategy can act on.
func rejectionReason(err error) string {
	var insufficient *domain.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return insufficient.Error()
	}
	for _, target := range []error{
		domain.ErrPortfolioNotFound,
		domain.ErrPortfolioInactive,
		domain.ErrSignalNotFound,
		domain.ErrSignalExecuted,
		domain.ErrSignalExpired,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}
