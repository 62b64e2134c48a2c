package domain

import "time"

// Trade is the audit record of an execution. It shares its ID with the
// position it opened; only Status and RealizedPnL change, at settlement.
type Trade struct {
	ID             string         `json:"id"`
	PortfolioID    string         `json:"portfolio_id"`
	SignalID       string         `json:"signal_id"`
	Timestamp      time.Time      `json:"timestamp"`
	MarketID       string         `json:"market_id"`
	MarketQuestion string         `json:"market_question"`
	Side           Side           `json:"side"`
	Amount         float64        `json:"amount"`
	EntryPrice     float64        `json:"entry_price"`
	Confidence     float64        `json:"confidence"`
	Reason         string         `json:"reason"`
	Status         PositionStatus `json:"status"`
	EventID        string         `json:"event_id,omitempty"`
	EventTitle     string         `json:"event_title,omitempty"`
	EventEndDate   *time.Time     `json:"event_end_date,omitempty"`
	RealizedPnL    *float64       `json:"realized_pnl,omitempty"`
}

// Execution is everything the ledger writes atomically when a signal fills.
type Execution struct {
	Signal   Signal
	Position Position
	Trade    Trade
}

// NewExecution builds the position and trade a signal opens at entry price
// target_price. No slippage, no partial fills.
func NewExecution(sig Signal, id string, at time.Time) Execution {
	pos := Position{
		ID:             id,
		PortfolioID:    sig.PortfolioID,
		MarketID:       sig.MarketID,
		MarketQuestion: sig.MarketQuestion,
		Side:           sig.Side,
		Amount:         sig.Amount,
		EntryPrice:     sig.TargetPrice,
		EntryTimestamp: at,
		Status:         PositionOpen,
	}
	tr := Trade{
		ID:             id,
		PortfolioID:    sig.PortfolioID,
		SignalID:       sig.ID,
		Timestamp:      at,
		MarketID:       sig.MarketID,
		MarketQuestion: sig.MarketQuestion,
		Side:           sig.Side,
		Amount:         sig.Amount,
		EntryPrice:     sig.TargetPrice,
		Confidence:     sig.Confidence,
		Reason:         sig.Reason,
		Status:         PositionOpen,
		EventID:        sig.EventID,
		EventTitle:     sig.EventTitle,
		EventEndDate:   sig.EventEndDate,
	}
	return Execution{Signal: sig, Position: pos, Trade: tr}
}
