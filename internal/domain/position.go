package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the outcome a position holds.
type Side string

const (
	BuyYes Side = "buy_yes"
	BuyNo  Side = "buy_no"
)

// ParseSide accepts the canonical names plus the upper-case aliases strategies
// tend to emit.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy_yes", "yes":
		return BuyYes, nil
	case "buy_no", "no":
		return BuyNo, nil
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, s)
	}
}

// PositionStatus is open until settlement, then closed for good.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ParsePositionStatus validates a status filter. Empty means "any".
func ParsePositionStatus(s string) (PositionStatus, error) {
	switch st := PositionStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", PositionOpen, PositionClosed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown position status %q", ErrInvalidFilter, s)
	}
}

// Position is capital committed to one side of one market.
// While open, RealizedPnL, ExitPrice and ExitTimestamp are nil.
type Position struct {
	ID             string         `json:"id"`
	PortfolioID    string         `json:"portfolio_id"`
	MarketID       string         `json:"market_id"`
	MarketQuestion string         `json:"market_question"`
	Side           Side           `json:"side"`
	Amount         float64        `json:"amount"`
	EntryPrice     float64        `json:"entry_price"`
	EntryTimestamp time.Time      `json:"entry_timestamp"`
	Status         PositionStatus `json:"status"`
	CurrentPnL     float64        `json:"current_pnl"`
	RealizedPnL    *float64       `json:"realized_pnl,omitempty"`
	ExitPrice      *float64       `json:"exit_price,omitempty"`
	ExitTimestamp  *time.Time     `json:"exit_timestamp,omitempty"`
}

// IsOpen reports whether the position still carries market risk.
func (p Position) IsOpen() bool { return p.Status == PositionOpen }

// Mark is a new unrealized P&L for an open position.
type Mark struct {
	PositionID string
	CurrentPnL float64
}

// Settlement is the full effect of closing one position at a resolved price.
type Settlement struct {
	PortfolioID  string
	PositionID   string
	Amount       float64
	ExitPrice    float64
	RealizedPnL  float64
	CashReturned float64
	Won          bool
	At           time.Time
}

// NewSettlement derives the settlement of p at exit (0 or 1).
func NewSettlement(p Position, exit float64, at time.Time) (Settlement, error) {
	if exit != 0 && exit != 1 {
		return Settlement{}, fmt.Errorf("%w: %v", ErrInvalidExitPrice, exit)
	}
	return Settlement{
		PortfolioID:  p.PortfolioID,
		PositionID:   p.ID,
		Amount:       p.Amount,
		ExitPrice:    exit,
		RealizedPnL:  RealizedPnL(p.EntryPrice, exit, p.Amount),
		CashReturned: CashReturned(p.Amount, exit),
		Won:          exit == 1,
		At:           at,
	}, nil
}
