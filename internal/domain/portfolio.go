package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PortfolioStatus is the lifecycle of a portfolio. Only active portfolios trade.
type PortfolioStatus string

const (
	PortfolioActive   PortfolioStatus = "active"
	PortfolioPaused   PortfolioStatus = "paused"
	PortfolioArchived PortfolioStatus = "archived"
)

// DefaultStrategyType is used when a portfolio is created without one.
const DefaultStrategyType = "manual"

// ParsePortfolioStatus validates a status string. Empty means "any".
func ParsePortfolioStatus(s string) (PortfolioStatus, error) {
	switch st := PortfolioStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case "", PortfolioActive, PortfolioPaused, PortfolioArchived:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidPortfolio, s)
	}
}

// CanTransition reports whether a portfolio may move from s to next.
// archived is terminal.
func (s PortfolioStatus) CanTransition(next PortfolioStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PortfolioActive:
		return next == PortfolioPaused || next == PortfolioArchived
	case PortfolioPaused:
		return next == PortfolioActive || next == PortfolioArchived
	default:
		return false
	}
}

// Portfolio is an isolated virtual account. Aggregates are kept in sync by
// the ledger on every execution, mark and settlement.
type Portfolio struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	StrategyType    string          `json:"strategy_type"`
	StrategyConfig  json.RawMessage `json:"strategy_config"`
	Status          PortfolioStatus `json:"status"`
	InitialBalance  float64         `json:"initial_balance"`
	CurrentBalance  float64         `json:"current_balance"`
	TotalInvested   float64         `json:"total_invested"`
	RealizedPnL     float64         `json:"realized_pnl"`
	TotalProfitLoss float64         `json:"total_profit_loss"` // realized + open unrealized
	TradeCount      int             `json:"trade_count"`
	WinningTrades   int             `json:"winning_trades"`
	LosingTrades    int             `json:"losing_trades"`
	AvgTradePnL     float64         `json:"avg_trade_pnl"`
	CreatedAt       time.Time       `json:"created_at"`
	LastUpdated     time.Time       `json:"last_updated"`
	LastTradeAt     *time.Time      `json:"last_trade_at,omitempty"`
	LastPriceUpdate *time.Time      `json:"last_price_update,omitempty"`
}

// IsActive reports whether the portfolio accepts trades.
func (p Portfolio) IsActive() bool { return p.Status == PortfolioActive }

// TotalValue is cash plus capital at risk marked to market.
func (p Portfolio) TotalValue() float64 {
	unrealized := SubMoney(p.TotalProfitLoss, p.RealizedPnL)
	return SumPnL(p.CurrentBalance, p.TotalInvested, unrealized)
}

// AvailableCash is what the portfolio can still commit to new trades.
// Paused and archived portfolios cannot trade, so they have none.
func (p Portfolio) AvailableCash() float64 {
	if !p.IsActive() {
		return 0
	}
	return p.CurrentBalance
}

// ReturnPct is total P&L relative to the initial balance.
func (p Portfolio) ReturnPct() float64 {
	if p.InitialBalance <= 0 {
		return 0
	}
	return p.TotalProfitLoss / p.InitialBalance * 100
}

// WinRate is the share of decided (non-breakeven) closed trades that won.
func (p Portfolio) WinRate() float64 {
	decided := p.WinningTrades + p.LosingTrades
	if decided == 0 {
		return 0
	}
	return float64(p.WinningTrades) / float64(decided) * 100
}

// NewPortfolio is the input of portfolio creation.
type NewPortfolio struct {
	Name           string          `json:"name"`
	StrategyType   string          `json:"strategy_type"`
	InitialBalance float64         `json:"initial_balance"`
	StrategyConfig json.RawMessage `json:"strategy_config"`
}

// Validate fills defaults and checks the creation request.
func (n *NewPortfolio) Validate() error {
	n.Name = strings.TrimSpace(n.Name)
	if n.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidPortfolio)
	}
	if n.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial_balance must be positive", ErrInvalidPortfolio)
	}
	if !IsCents(n.InitialBalance) {
		return fmt.Errorf("%w: initial_balance must be a whole number of cents", ErrInvalidPortfolio)
	}
	if strings.TrimSpace(n.StrategyType) == "" {
		n.StrategyType = DefaultStrategyType
	}
	cfg, err := normalizeConfig(n.StrategyConfig)
	if err != nil {
		return err
	}
	n.StrategyConfig = cfg
	return nil
}

// PortfolioPatch is an allow-listed partial update. Nil fields are unchanged.
type PortfolioPatch struct {
	Name           *string
	StrategyType   *string
	Status         *PortfolioStatus
	StrategyConfig json.RawMessage
}

// IsEmpty reports whether the patch changes nothing.
func (p PortfolioPatch) IsEmpty() bool {
	return p.Name == nil && p.StrategyType == nil && p.Status == nil && p.StrategyConfig == nil
}

var restrictedFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"initial_balance": true,
}

// ledger-owned aggregates, only the ledger writes them.
var ledgerFields = map[string]bool{
	"current_balance":   true,
	"total_invested":    true,
	"realized_pnl":      true,
	"total_profit_loss": true,
	"trade_count":       true,
	"winning_trades":    true,
	"losing_trades":     true,
	"avg_trade_pnl":     true,
	"last_updated":      true,
	"last_trade_at":     true,
	"last_price_update": true,
}

// ParsePortfolioPatch turns a decoded JSON object into a patch. Identity and
// ledger-owned fields are refused by name; anything not on the allow-list is
// unknown.
func ParsePortfolioPatch(fields map[string]json.RawMessage) (PortfolioPatch, error) {
	var patch PortfolioPatch

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := fields[k]
		switch {
		case restrictedFields[k], ledgerFields[k]:
			return PortfolioPatch{}, &FieldError{Field: k, Err: ErrRestrictedField}
		case k == "name":
			var name string
			if err := json.Unmarshal(raw, &name); err != nil || strings.TrimSpace(name) == "" {
				return PortfolioPatch{}, fmt.Errorf("%w: name must be a non-empty string", ErrInvalidPortfolio)
			}
			name = strings.TrimSpace(name)
			patch.Name = &name
		case k == "strategy_type":
			var st string
			if err := json.Unmarshal(raw, &st); err != nil || strings.TrimSpace(st) == "" {
				return PortfolioPatch{}, fmt.Errorf("%w: strategy_type must be a non-empty string", ErrInvalidPortfolio)
			}
			st = strings.TrimSpace(st)
			patch.StrategyType = &st
		case k == "status":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return PortfolioPatch{}, fmt.Errorf("%w: status must be a string", ErrInvalidPortfolio)
			}
			st, err := ParsePortfolioStatus(s)
			if err != nil || st == "" {
				return PortfolioPatch{}, fmt.Errorf("%w: unknown status %q", ErrInvalidPortfolio, s)
			}
			patch.Status = &st
		case k == "strategy_config":
			cfg, err := normalizeConfig(raw)
			if err != nil {
				return PortfolioPatch{}, err
			}
			patch.StrategyConfig = cfg
		default:
			return PortfolioPatch{}, &FieldError{Field: k, Err: ErrUnknownField}
		}
	}
	return patch, nil
}

// Apply returns p with the patch applied, validating the status transition.
func (patch PortfolioPatch) Apply(p Portfolio) (Portfolio, error) {
	if patch.Status != nil {
		if !p.Status.CanTransition(*patch.Status) {
			return Portfolio{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, *patch.Status)
		}
		p.Status = *patch.Status
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.StrategyType != nil {
		p.StrategyType = *patch.StrategyType
	}
	if patch.StrategyConfig != nil {
		p.StrategyConfig = patch.StrategyConfig
	}
	return p, nil
}

// normalizeConfig accepts a JSON object (or nothing) and returns it compacted.
func normalizeConfig(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: strategy_config must be a JSON object", ErrInvalidPortfolio)
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: strategy_config: %v", ErrInvalidPortfolio, err)
	}
	return out, nil
}
