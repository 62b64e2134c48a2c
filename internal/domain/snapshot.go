package domain

import "time"

// Snapshot is an append-only point-in-time copy of a portfolio's aggregates.
type Snapshot struct {
	ID              string    `json:"id"`
	PortfolioID     string    `json:"portfolio_id"`
	SnapshotDate    string    `json:"snapshot_date"` // YYYY-MM-DD, UTC
	Timestamp       time.Time `json:"timestamp"`
	Balance         float64   `json:"balance"`
	TotalInvested   float64   `json:"total_invested"`
	TotalProfitLoss float64   `json:"total_profit_loss"`
	TotalValue      float64   `json:"total_value"`
	OpenPositions   int       `json:"open_positions"`
	TradeCount      int       `json:"trade_count"`
}

// NewSnapshot captures p at the given instant.
func NewSnapshot(id string, p Portfolio, openPositions int, at time.Time) Snapshot {
	at = at.UTC()
	return Snapshot{
		ID:              id,
		PortfolioID:     p.ID,
		SnapshotDate:    at.Format(time.DateOnly),
		Timestamp:       at,
		Balance:         p.CurrentBalance,
		TotalInvested:   p.TotalInvested,
		TotalProfitLoss: p.TotalProfitLoss,
		TotalValue:      p.TotalValue(),
		OpenPositions:   openPositions,
		TradeCount:      p.TradeCount,
	}
}

// TruncateQuestion shortens a market question for table output.
func TruncateQuestion(question, marketID string, maxLen int) string {
	if question == "" {
		question = marketID
	}
	r := []rune(question)
	if len(r) <= maxLen || maxLen < 4 {
		return question
	}
	return string(r[:maxLen-3]) + "..."
}
