package ledger

// repricing.go: mark-to-market and resolution detection.
//
// One pass: read open positions of every target portfolio, fetch quotes
// once for the union of their markets, then fan the portfolios out to a
// worker pool. Each portfolio is its own unit of work: its marks land in
// one transaction and each resolved position settles in its own, so a
// failure in one portfolio never rolls back another.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/metrics"
)

// Reprice runs one repricing pass over the given portfolios, or over every
// active portfolio when none are named. Named portfolios are repriced
// whatever their status, so paused ones keep marking and settling their
// open positions. A quote fetch failure aborts the
// pass before anything is written. Per-portfolio failures are reported in
// the result and joined into the returned error.
func (s *Service) Reprice(ctx context.Context, portfolioIDs ...string) (domain.RepriceReport, error) {
	start := s.now()
	report := domain.RepriceReport{StartedAt: start}

	targets, err := s.repriceTargets(ctx, portfolioIDs)
	if err != nil {
		return report, fmt.Errorf("ledger.Reprice: %w", err)
	}

	open := make(map[string][]domain.Position, len(targets))
	var marketIDs []string
	seen := make(map[string]bool)
	for _, p := range targets {
		positions, err := s.store.Positions(ctx, p.ID, domain.PositionOpen)
		if err != nil {
			return report, fmt.Errorf("ledger.Reprice: %s: %w", p.ID, err)
		}
		open[p.ID] = positions
		for _, pos := range positions {
			if !seen[pos.MarketID] {
				seen[pos.MarketID] = true
				marketIDs = append(marketIDs, pos.MarketID)
			}
		}
	}
	sort.Strings(marketIDs)
	report.Markets = len(marketIDs)

	quotes := map[string]domain.Quote{}
	if len(marketIDs) > 0 {
		quotes, err = s.quotes.FetchQuotes(ctx, marketIDs)
		if err != nil {
			metrics.RepriceFailures.Inc()
			return report, fmt.Errorf("ledger.Reprice: %w: %v", domain.ErrQuotesUnavailable, err)
		}
	}
	report.Quotes = len(quotes)

	report.Portfolios = s.repriceConcurrent(ctx, targets, open, quotes)

	report.Duration = s.now().Sub(start)
	metrics.RepriceDuration.Observe(report.Duration.Seconds())

	marked, settled, skipped, failed := report.Totals()
	slog.Info("ledger: reprice complete",
		"portfolios", len(report.Portfolios),
		"markets", report.Markets,
		"quotes", report.Quotes,
		"marked", marked,
		"settled", settled,
		"skipped", skipped,
		"failed", failed,
		"duration", report.Duration,
	)

	var errs []error
	for _, r := range report.Portfolios {
		if r.Error != "" {
			errs = append(errs, fmt.Errorf("%s: %s", r.PortfolioID, r.Error))
		}
	}
	if len(errs) > 0 {
		return report, fmt.Errorf("ledger.Reprice: %w", errors.Join(errs...))
	}
	return report, nil
}

func (s *Service) repriceTargets(ctx context.Context, ids []string) ([]domain.Portfolio, error) {
	if len(ids) == 0 {
		return s.store.ListPortfolios(ctx, domain.PortfolioActive)
	}
	targets := make([]domain.Portfolio, 0, len(ids))
	for _, id := range ids {
		p, err := s.store.GetPortfolio(ctx, id)
		if err != nil {
			return nil, err
		}
		targets = append(targets, p)
	}
	return targets, nil
}

// repriceConcurrent processes portfolios on a bounded worker pool. Results
// come back in the order of targets.
func (s *Service) repriceConcurrent(
	ctx context.Context,
	targets []domain.Portfolio,
	open map[string][]domain.Position,
	quotes map[string]domain.Quote,
) []domain.PortfolioRepricing {
	workers := min(s.cfg.RepriceWorkers, len(targets))
	results := make([]domain.PortfolioRepricing, len(targets))

	workCh := make(chan int, len(targets))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workCh {
				p := targets[i]
				if err := ctx.Err(); err != nil {
					results[i] = domain.PortfolioRepricing{PortfolioID: p.ID, Error: err.Error()}
					continue
				}
				results[i] = s.repricePortfolio(ctx, p.ID, open[p.ID], quotes)
			}
		}()
	}
	for i := range targets {
		workCh <- i
	}
	close(workCh)
	wg.Wait()
	return results
}

// repricePortfolio marks every quoted open position and settles those whose
// price reached a terminal value.
func (s *Service) repricePortfolio(
	ctx context.Context,
	portfolioID string,
	positions []domain.Position,
	quotes map[string]domain.Quote,
) domain.PortfolioRepricing {
	res := domain.PortfolioRepricing{PortfolioID: portfolioID}

	type resolution struct {
		pos   domain.Position
		price float64
	}
	var (
		marks    []domain.Mark
		resolved []resolution
	)
	for _, pos := range positions {
		q, ok := quotes[pos.MarketID]
		if !ok {
			res.Skipped++
			slog.Debug("ledger: no quote for position",
				"portfolio_id", portfolioID,
				"position_id", pos.ID,
				"market_id", pos.MarketID,
			)
			continue
		}
		price := q.PriceFor(pos.Side)
		if s.isResolved(q, price) {
			resolved = append(resolved, resolution{pos: pos, price: price})
			continue
		}
		marks = append(marks, domain.Mark{
			PositionID: pos.ID,
			CurrentPnL: domain.UnrealizedPnL(pos.EntryPrice, price, pos.Amount),
		})
	}

	if err := s.store.ApplyMarks(ctx, portfolioID, marks, s.now()); err != nil {
		res.Error = err.Error()
		slog.Error("ledger: marks failed", "portfolio_id", portfolioID, "err", err)
		return res
	}
	res.Marked = len(marks)
	metrics.PositionsMarked.Add(float64(len(marks)))
	metrics.PositionsSkipped.Add(float64(res.Skipped))

	var settleErrs []error
	for _, r := range resolved {
		out, err := s.settle(ctx, r.pos, r.price)
		if err != nil {
			// left open, the next pass retries it
			settleErrs = append(settleErrs, err)
			slog.Error("ledger: settlement failed",
				"portfolio_id", portfolioID,
				"position_id", r.pos.ID,
				"err", err,
			)
			continue
		}
		if out.Applied {
			res.Settled++
			res.RealizedPnL = domain.AddMoney(res.RealizedPnL, out.RealizedPnL)
		}
	}
	if len(settleErrs) > 0 {
		res.Error = errors.Join(settleErrs...).Error()
	}

	if p, err := s.store.GetPortfolio(ctx, portfolioID); err == nil {
		res.TotalProfitLoss = p.TotalProfitLoss
	}
	return res
}

// isResolved applies the resolution rule: an exact 0 or 1, optionally
// confirmed by the venue's closed flag.
func (s *Service) isResolved(q domain.Quote, price float64) bool {
	if !domain.IsResolvedPrice(price) {
		return false
	}
	return !s.cfg.RequireClosedForSettlement || q.Closed
}
