package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFields(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	return m
}

func TestParsePortfolioPatch_AllowedFields(t *testing.T) {
	patch, err := ParsePortfolioPatch(rawFields(t, `{"name":" Momentum ","status":"paused","strategy_type":"momentum","strategy_config":{"k":1}}`))
	require.NoError(t, err)
	require.NotNil(t, patch.Name)
	assert.Equal(t, "Momentum", *patch.Name)
	assert.Equal(t, PortfolioPaused, *patch.Status)
	assert.Equal(t, "momentum", *patch.StrategyType)
	assert.JSONEq(t, `{"k":1}`, string(patch.StrategyConfig))
}

func TestParsePortfolioPatch_RestrictedField(t *testing.T) {
	for _, field := range []string{"id", "created_at", "initial_balance", "current_balance", "trade_count"} {
		_, err := ParsePortfolioPatch(rawFields(t, `{"`+field+`": 1}`))
		require.Error(t, err, field)
		assert.True(t, errors.Is(err, ErrRestrictedField), field)
		assert.Contains(t, err.Error(), field)
	}
}

func TestParsePortfolioPatch_UnknownField(t *testing.T) {
	_, err := ParsePortfolioPatch(rawFields(t, `{"nickname":"x"}`))
	assert.True(t, errors.Is(err, ErrUnknownField))
}

func TestParsePortfolioPatch_BadStatus(t *testing.T) {
	_, err := ParsePortfolioPatch(rawFields(t, `{"status":"deleted"}`))
	assert.True(t, errors.Is(err, ErrInvalidPortfolio))
}

func TestPortfolioPatch_ApplyTransitions(t *testing.T) {
	archived := PortfolioArchived
	active := PortfolioActive

	p, err := PortfolioPatch{Status: &archived}.Apply(Portfolio{Status: PortfolioPaused})
	require.NoError(t, err)
	assert.Equal(t, PortfolioArchived, p.Status)

	_, err = PortfolioPatch{Status: &active}.Apply(p)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestNewPortfolio_Validate(t *testing.T) {
	n := NewPortfolio{Name: "A", InitialBalance: 1000}
	require.NoError(t, n.Validate())
	assert.Equal(t, DefaultStrategyType, n.StrategyType)
	assert.JSONEq(t, `{}`, string(n.StrategyConfig))

	bad := NewPortfolio{Name: "A", InitialBalance: 0}
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidPortfolio))

	noName := NewPortfolio{Name: "  ", InitialBalance: 10}
	assert.True(t, errors.Is(noName.Validate(), ErrInvalidPortfolio))

	badCfg := NewPortfolio{Name: "A", InitialBalance: 10, StrategyConfig: json.RawMessage(`[1,2]`)}
	assert.True(t, errors.Is(badCfg.Validate(), ErrInvalidPortfolio))

	subCent := NewPortfolio{Name: "A", InitialBalance: 100.005}
	assert.True(t, errors.Is(subCent.Validate(), ErrInvalidPortfolio))

	cents := NewPortfolio{Name: "A", InitialBalance: 100.07}
	assert.NoError(t, cents.Validate())
}

func TestIsCents(t *testing.T) {
	for _, v := range []float64{0, 0.01, 0.1, 19.99, 100.07, 10000} {
		assert.True(t, IsCents(v), "%v", v)
	}
	for _, v := range []float64{0.005, 0.001, 12.345} {
		assert.False(t, IsCents(v), "%v", v)
	}
}

func TestPortfolio_Derived(t *testing.T) {
	p := Portfolio{
		InitialBalance:  10000,
		CurrentBalance:  9000,
		TotalInvested:   1000,
		RealizedPnL:     100,
		TotalProfitLoss: 150,
		WinningTrades:   3,
		LosingTrades:    1,
	}
	assert.Equal(t, 10050.0, p.TotalValue())
	assert.InDelta(t, 1.5, p.ReturnPct(), 0.0001)
	assert.InDelta(t, 75.0, p.WinRate(), 0.0001)
	assert.Equal(t, 0.0, Portfolio{}.WinRate())

	p.Status = PortfolioActive
	assert.Equal(t, 9000.0, p.AvailableCash())
	p.Status = PortfolioPaused
	assert.Equal(t, 0.0, p.AvailableCash())
}

func TestSignal_Validate(t *testing.T) {
	ok := Signal{MarketID: "m1", Side: BuyYes, TargetPrice: 0.5, Amount: 10}
	require.NoError(t, ok.Validate())

	cases := map[string]Signal{
		"no market":    {Side: BuyYes, TargetPrice: 0.5, Amount: 10},
		"bad side":     {MarketID: "m1", Side: "sell", TargetPrice: 0.5, Amount: 10},
		"zero amount":  {MarketID: "m1", Side: BuyNo, TargetPrice: 0.5},
		"price > 1":    {MarketID: "m1", Side: BuyNo, TargetPrice: 1.2, Amount: 10},
		"price < zero": {MarketID: "m1", Side: BuyNo, TargetPrice: -0.1, Amount: 10},
		"sub-cent":     {MarketID: "m1", Side: BuyYes, TargetPrice: 0.5, Amount: 0.005},
	}
	for name, sig := range cases {
		assert.True(t, errors.Is(sig.Validate(), ErrInvalidSignal), name)
	}
}

func TestSignal_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	assert.True(t, Signal{ExpiresAt: &past}.Expired(now))
	assert.False(t, Signal{}.Expired(now))
}

func TestInsufficientBalanceError_Message(t *testing.T) {
	err := error(&InsufficientBalanceError{Required: 100, Available: 50})
	assert.Equal(t, "insufficient balance: required $100.00, available $50.00", err.Error())
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.True(t, IsRejection(err))
	assert.False(t, IsRejection(errors.New("disk full")))
}
