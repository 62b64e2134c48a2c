package domain

import "time"

// ExecutionResult is the outcome of one signal in a batch.
type ExecutionResult struct {
	SignalID string  `json:"signal_id"`
	MarketID string  `json:"market_id"`
	Amount   float64 `json:"amount"`
	Executed bool    `json:"executed"`
	TradeID  string  `json:"trade_id,omitempty"`
	Reason   string  `json:"reason,omitempty"`
}

// ExecutionSummary aggregates a batch execution for one portfolio.
type ExecutionSummary struct {
	PortfolioID   string            `json:"portfolio_id"`
	Executed      int               `json:"executed"`
	Rejected      int               `json:"rejected"`
	TotalInvested float64           `json:"total_invested"`
	Results       []ExecutionResult `json:"results"`
}

// Add records one result in the summary.
func (s *ExecutionSummary) Add(r ExecutionResult) {
	s.Results = append(s.Results, r)
	if r.Executed {
		s.Executed++
		s.TotalInvested = AddMoney(s.TotalInvested, r.Amount)
		return
	}
	s.Rejected++
}

// PortfolioRepricing is what one repricing pass did to one portfolio.
type PortfolioRepricing struct {
	PortfolioID     string  `json:"portfolio_id"`
	Marked          int     `json:"marked"`
	Settled         int     `json:"settled"`
	Skipped         int     `json:"skipped"` // no quote this pass
	RealizedPnL     float64 `json:"realized_pnl"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	Error           string  `json:"error,omitempty"`
}

// RepriceReport aggregates one repricing pass.
type RepriceReport struct {
	StartedAt  time.Time            `json:"started_at"`
	Duration   time.Duration        `json:"duration"`
	Markets    int                  `json:"markets"`
	Quotes     int                  `json:"quotes"`
	Portfolios []PortfolioRepricing `json:"portfolios"`
}

// Totals sums the per-portfolio counters.
func (r RepriceReport) Totals() (marked, settled, skipped, failed int) {
	for _, p := range r.Portfolios {
		marked += p.Marked
		settled += p.Settled
		skipped += p.Skipped
		if p.Error != "" {
			failed++
		}
	}
	return marked, settled, skipped, failed
}
