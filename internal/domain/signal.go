package domain

import (
	"fmt"
	"strings"
	"time"
)

// Signal is a trade intent produced by a strategy for one portfolio.
// It is consumed at most once: Executed flips inside the execution transaction.
type Signal struct {
	ID              string     `json:"id"`
	PortfolioID     string     `json:"portfolio_id"`
	CreatedAt       time.Time  `json:"created_at"`
	MarketID        string     `json:"market_id"`
	MarketQuestion  string     `json:"market_question"`
	Side            Side       `json:"side"`
	TargetPrice     float64    `json:"target_price"`
	Amount          float64    `json:"amount"`
	Confidence      float64    `json:"confidence"`
	Reason          string     `json:"reason"`
	YesPrice        float64    `json:"yes_price"`
	NoPrice         float64    `json:"no_price"`
	MarketLiquidity float64    `json:"market_liquidity"`
	MarketVolume    float64    `json:"market_volume"`
	EventID         string     `json:"event_id,omitempty"`
	EventTitle      string     `json:"event_title,omitempty"`
	EventEndDate    *time.Time `json:"event_end_date,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Executed        bool       `json:"executed"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
	TradeID         string     `json:"trade_id,omitempty"`
}

// Validate checks the intent itself; balances and state are the ledger's job.
func (s Signal) Validate() error {
	if strings.TrimSpace(s.MarketID) == "" {
		return fmt.Errorf("%w: market_id is required", ErrInvalidSignal)
	}
	if s.Side != BuyYes && s.Side != BuyNo {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidSignal, s.Side)
	}
	if s.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidSignal, s.Amount)
	}
	if !IsCents(s.Amount) {
		return fmt.Errorf("%w: amount must be a whole number of cents, got %v", ErrInvalidSignal, s.Amount)
	}
	if s.TargetPrice < 0 || s.TargetPrice > 1 {
		return fmt.Errorf("%w: target_price must be within [0,1], got %v", ErrInvalidSignal, s.TargetPrice)
	}
	return nil
}

// Expired reports whether the signal can no longer be executed at now.
func (s Signal) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}
