package ledger_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polyledger/internal/adapters/storage"
	"github.com/alejandrodnm/polyledger/internal/application/ledger"
	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuotes serves fixed quotes and counts fetches.
type fakeQuotes struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	err    error
	calls  int
	asked  []string
}

func (f *fakeQuotes) FetchQuotes(_ context.Context, ids []string) (map[string]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.asked = append([]string(nil), ids...)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]domain.Quote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

func (f *fakeQuotes) set(marketID string, yes float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quotes == nil {
		f.quotes = make(map[string]domain.Quote)
	}
	f.quotes[marketID] = domain.Quote{MarketID: marketID, YesPrice: yes, NoPrice: domain.Round2(1 - yes)}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, cfg ledger.Config) (*ledger.Service, *fakeQuotes) {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	quotes := &fakeQuotes{}
	clock := t0
	var mu sync.Mutex
	svc := ledger.New(db, quotes, cfg).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})
	return svc, quotes
}

func createPortfolio(t *testing.T, svc *ledger.Service, balance float64) domain.Portfolio {
	t.Helper()
	p, err := svc.CreatePortfolio(context.Background(), domain.NewPortfolio{
		Name:           "momentum",
		StrategyType:   "momentum",
		InitialBalance: balance,
	})
	require.NoError(t, err)
	return p
}

func submit(t *testing.T, svc *ledger.Service, portfolioID string, sigs ...domain.Signal) []domain.Signal {
	t.Helper()
	out, err := svc.SubmitSignals(context.Background(), portfolioID, sigs)
	require.NoError(t, err)
	return out
}

func yesSignal(market string, price, amount float64) domain.Signal {
	return domain.Signal{MarketID: market, Side: domain.BuyYes, TargetPrice: price, Amount: amount, Confidence: 0.8}
}

func TestCreatePortfolio(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()

	p, err := svc.CreatePortfolio(ctx, domain.NewPortfolio{
		Name:           "value",
		InitialBalance: 2500,
		StrategyConfig: json.RawMessage(`{"min_edge":0.05}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, domain.PortfolioActive, p.Status)
	assert.Equal(t, domain.DefaultStrategyType, p.StrategyType)
	assert.Equal(t, 2500.0, p.CurrentBalance)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2500.0, view.CurrentBalance)
	assert.Empty(t, view.OpenPositions)
	assert.JSONEq(t, `{"min_edge":0.05}`, string(view.StrategyConfig))

	_, err = svc.CreatePortfolio(ctx, domain.NewPortfolio{Name: "broke", InitialBalance: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPortfolio)

	_, err = svc.GetPortfolio(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

// Walks a single position from entry through a mark to a winning resolution.
func TestLifecycle_EntryMarkResolve(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 10000)
	submit(t, svc, p.ID, yesSignal("m1", 0.65, 500))

	summary, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	assert.Equal(t, 500.0, summary.TotalInvested)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9500.0, view.CurrentBalance)
	assert.Equal(t, 500.0, view.TotalInvested)
	require.Len(t, view.OpenPositions, 1)
	assert.Equal(t, 0.65, view.OpenPositions[0].EntryPrice)

	quotes.set("m1", 0.80)
	report, err := svc.Reprice(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, report.Portfolios, 1)
	assert.Equal(t, 1, report.Portfolios[0].Marked)

	view, err = svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, view.OpenPositions, 1)
	assert.Equal(t, 75.0, view.OpenPositions[0].CurrentPnL)
	assert.Equal(t, 75.0, view.TotalProfitLoss)
	require.NotNil(t, view.LastPriceUpdate)

	quotes.set("m1", 1.0)
	report, err = svc.Reprice(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Portfolios[0].Settled)
	assert.Equal(t, 175.0, report.Portfolios[0].RealizedPnL)

	view, err = svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, view.OpenPositions)
	assert.Equal(t, 10000.0, view.CurrentBalance)
	assert.Equal(t, 0.0, view.TotalInvested)
	assert.Equal(t, 175.0, view.TotalProfitLoss)
	assert.Equal(t, 1, view.WinningTrades)

	closed, err := svc.Positions(ctx, p.ID, domain.PositionClosed)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].RealizedPnL)
	assert.Equal(t, 175.0, *closed[0].RealizedPnL)
	require.NotNil(t, closed[0].ExitPrice)
	assert.Equal(t, 1.0, *closed[0].ExitPrice)

	trades, err := svc.Trades(ctx, p.ID, domain.PositionClosed, 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, closed[0].ID, trades[0].ID)
}

func TestExecuteSignals_InsufficientBalance(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 50)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))

	summary, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Executed)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Executed)
	assert.Contains(t, summary.Results[0].Reason, "insufficient balance")

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, view.CurrentBalance)
	assert.Empty(t, view.OpenPositions)

	pending, err := svc.PendingSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestExecuteSignals_BatchContinuesAfterRejection(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 300)
	submit(t, svc, p.ID,
		yesSignal("m1", 0.5, 200),
		yesSignal("m2", 0.5, 200), // only 100 left
		yesSignal("m3", 0.5, 100),
	)

	summary, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Executed)
	assert.Equal(t, 1, summary.Rejected)
	require.Len(t, summary.Results, 3)
	assert.True(t, summary.Results[0].Executed)
	assert.False(t, summary.Results[1].Executed)
	assert.True(t, summary.Results[2].Executed)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, view.CurrentBalance)
	assert.Equal(t, 300.0, view.TotalInvested)
	assert.Equal(t, 2, view.TradeCount)
}

func TestExecuteSignals_InactivePortfolio(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))

	paused := domain.PortfolioPaused
	_, err := svc.UpdatePortfolio(ctx, p.ID, domain.PortfolioPatch{Status: &paused})
	require.NoError(t, err)

	_, err = svc.ExecuteSignals(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPortfolioInactive)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, view.CurrentBalance)
}

func TestExecuteSignal_ExpiredAndExecuted(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)

	past := t0.Add(-time.Hour)
	expired := yesSignal("m1", 0.5, 100)
	expired.ExpiresAt = &past
	sigs := submit(t, svc, p.ID, expired, yesSignal("m2", 0.5, 100))

	res, err := svc.ExecuteSignal(ctx, p.ID, sigs[0].ID)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, domain.ErrSignalExpired.Error(), res.Reason)

	res, err = svc.ExecuteSignal(ctx, p.ID, sigs[1].ID)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.NotEmpty(t, res.TradeID)

	res, err = svc.ExecuteSignal(ctx, p.ID, sigs[1].ID)
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Equal(t, domain.ErrSignalExecuted.Error(), res.Reason)

	res, err = svc.ExecuteSignal(ctx, p.ID, "nope")
	require.NoError(t, err)
	assert.Equal(t, domain.ErrSignalNotFound.Error(), res.Reason)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 900.0, view.CurrentBalance)
	assert.Len(t, view.OpenPositions, 1)
}

func TestExecuteSignal_ConcurrentDoubleExecution(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	sigs := submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		executed int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ExecuteSignal(ctx, p.ID, sigs[0].ID)
			assert.NoError(t, err)
			if res.Executed {
				mu.Lock()
				executed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, executed)
	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 900.0, view.CurrentBalance)
	assert.Equal(t, 1, view.TradeCount)
}

func TestExecuteSignal_ConcurrentDistinctSignalsNeverOverdraw(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 250)
	sigs := submit(t, svc, p.ID,
		yesSignal("m1", 0.5, 100), yesSignal("m2", 0.5, 100),
		yesSignal("m3", 0.5, 100), yesSignal("m4", 0.5, 100))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		executed int
		rejected int
	)
	for _, sig := range sigs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.ExecuteSignal(ctx, p.ID, sig.ID)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if res.Executed {
				executed++
			} else {
				rejected++
				assert.Contains(t, res.Reason, "insufficient balance")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, executed)
	assert.Equal(t, 2, rejected)
	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, view.CurrentBalance)
	assert.Equal(t, 200.0, view.TotalInvested)
	assert.Len(t, view.OpenPositions, 2)
	assert.Equal(t, 2, view.TradeCount)
}

func TestExecuteSignals_SubCentAmountRejected(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 100)

	_, err := svc.SubmitSignals(ctx, p.ID, []domain.Signal{
		yesSignal("m1", 0.5, 0.005), yesSignal("m2", 0.5, 0.005), yesSignal("m3", 0.5, 0.005),
	})
	require.ErrorIs(t, err, domain.ErrInvalidSignal)

	summary, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, summary.Executed)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, view.CurrentBalance)
	assert.Equal(t, 0.0, view.TotalInvested)
	assert.Empty(t, view.OpenPositions)

	// a cent amount goes through and debits exactly
	submit(t, svc, p.ID, yesSignal("m4", 0.5, 0.01))
	summary, err = svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Executed)
	view, err = svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 99.99, view.CurrentBalance)
	assert.Equal(t, 0.01, view.TotalInvested)
}

func TestSubmitSignals_Validation(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)

	cases := map[string]domain.Signal{
		"missing market": {Side: domain.BuyYes, TargetPrice: 0.5, Amount: 10},
		"bad side":       {MarketID: "m1", Side: "sell", TargetPrice: 0.5, Amount: 10},
		"zero amount":    {MarketID: "m1", Side: domain.BuyYes, TargetPrice: 0.5},
		"price above 1":  {MarketID: "m1", Side: domain.BuyNo, TargetPrice: 1.2, Amount: 10},
		"sub-cent":       {MarketID: "m1", Side: domain.BuyYes, TargetPrice: 0.5, Amount: 0.005},
	}
	for name, sig := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SubmitSignals(ctx, p.ID, []domain.Signal{yesSignal("ok", 0.5, 10), sig})
			assert.ErrorIs(t, err, domain.ErrInvalidSignal)
		})
	}

	pending, err := svc.PendingSignals(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, pending, "a rejected batch stores nothing")

	_, err = svc.SubmitSignals(ctx, "missing", []domain.Signal{yesSignal("m1", 0.5, 10)})
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}

func TestSubmitSignals_PreservesOrder(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("a", 0.5, 10), yesSignal("b", 0.5, 10), yesSignal("c", 0.5, 10))

	pending, err := svc.PendingSignals(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "a", pending[0].MarketID)
	assert.Equal(t, "b", pending[1].MarketID)
	assert.Equal(t, "c", pending[2].MarketID)
}

func TestSettle_ResolutionOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		exit     float64
		realized float64
		cash     float64
		won      bool
	}{
		{name: "yes wins", exit: 1, realized: 60, cash: 100, won: true},
		{name: "yes loses", exit: 0, realized: -40, cash: 0, won: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := newService(t, ledger.Config{})
			ctx := context.Background()
			p := createPortfolio(t, svc, 1000)
			submit(t, svc, p.ID, yesSignal("m1", 0.40, 100))
			_, err := svc.ExecuteSignals(ctx, p.ID)
			require.NoError(t, err)

			view, err := svc.GetPortfolio(ctx, p.ID)
			require.NoError(t, err)
			require.Len(t, view.OpenPositions, 1)
			posID := view.OpenPositions[0].ID

			res, err := svc.Settle(ctx, p.ID, posID, tc.exit)
			require.NoError(t, err)
			assert.True(t, res.Applied)
			assert.Equal(t, tc.realized, res.RealizedPnL)
			assert.Equal(t, tc.cash, res.CashReturned)
			assert.Equal(t, tc.won, res.Won)

			after, err := svc.GetPortfolio(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 900+tc.cash, after.CurrentBalance)
			assert.Equal(t, tc.realized, after.TotalProfitLoss)
			assert.Equal(t, 0.0, after.TotalInvested)

			again, err := svc.Settle(ctx, p.ID, posID, tc.exit)
			require.NoError(t, err)
			assert.False(t, again.Applied)

			final, err := svc.GetPortfolio(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, after.CurrentBalance, final.CurrentBalance)
		})
	}
}

func TestSettle_NoSideAndInvalidExit(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, domain.Signal{MarketID: "m1", Side: domain.BuyNo, TargetPrice: 0.30, Amount: 100})
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	posID := view.OpenPositions[0].ID

	_, err = svc.Settle(ctx, p.ID, posID, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidExitPrice)
	_, err = svc.Settle(ctx, "other", posID, 1)
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)

	// market resolved no: yes price 0 means the no side pays out
	quotes.set("m1", 0)
	report, err := svc.Reprice(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Portfolios[0].Settled)

	after, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, after.CurrentBalance)
	assert.Equal(t, 70.0, after.TotalProfitLoss)
}

func TestSettle_Concurrent(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 200))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	posID := view.OpenPositions[0].ID

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Settle(ctx, p.ID, posID, 1)
			assert.NoError(t, err)
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	after, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, after.CurrentBalance)
	assert.Equal(t, 100.0, after.RealizedPnL)
	assert.Equal(t, 1, after.WinningTrades)
}

func TestReprice_PausedPortfolioOnlyWhenNamed(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	paused := domain.PortfolioPaused
	_, err = svc.UpdatePortfolio(ctx, p.ID, domain.PortfolioPatch{Status: &paused})
	require.NoError(t, err)
	quotes.set("m1", 1)

	report, err := svc.Reprice(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Portfolios)

	report, err = svc.Reprice(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, report.Portfolios, 1)
	assert.Equal(t, 1, report.Portfolios[0].Settled)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PortfolioPaused, view.Status)
	assert.Equal(t, 1000.0, view.CurrentBalance)
	assert.Equal(t, 100.0, view.RealizedPnL)
}

func TestReprice_QuoteFailureWritesNothing(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	quotes.err = errors.New("gamma down")
	_, err = svc.Reprice(ctx)
	assert.ErrorIs(t, err, domain.ErrQuotesUnavailable)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, view.LastPriceUpdate)
	assert.Equal(t, 0.0, view.OpenPositions[0].CurrentPnL)
}

func TestReprice_MissingQuoteSkips(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100), yesSignal("m2", 0.5, 100))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	quotes.set("m1", 0.6)
	report, err := svc.Reprice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Markets)
	assert.Equal(t, 1, report.Quotes)
	assert.Equal(t, []string{"m1", "m2"}, quotes.asked)

	marked, settled, skipped, failed := report.Totals()
	assert.Equal(t, 1, marked)
	assert.Equal(t, 0, settled)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, 0, failed)

	view, err := svc.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, view.TotalProfitLoss)
}

func TestReprice_RequireClosedForSettlement(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{RequireClosedForSettlement: true})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 100))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	quotes.set("m1", 1.0)
	report, err := svc.Reprice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Portfolios[0].Settled)
	assert.Equal(t, 1, report.Portfolios[0].Marked)

	q := quotes.quotes["m1"]
	q.Closed = true
	quotes.quotes["m1"] = q
	report, err = svc.Reprice(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Portfolios[0].Settled)
}

func TestReprice_UnknownPortfolio(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	_, err := svc.Reprice(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
	assert.Equal(t, 0, quotes.calls)
}

func TestPortfolioIsolation(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{RepriceWorkers: 4})
	ctx := context.Background()
	a := createPortfolio(t, svc, 1000)
	b := createPortfolio(t, svc, 1000)
	submit(t, svc, a.ID, yesSignal("m1", 0.5, 400))
	submit(t, svc, b.ID, yesSignal("m1", 0.5, 100))

	_, err := svc.ExecuteSignals(ctx, a.ID)
	require.NoError(t, err)

	vb, err := svc.GetPortfolio(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, vb.CurrentBalance)
	assert.Empty(t, vb.OpenPositions)

	_, err = svc.ExecuteSignals(ctx, b.ID)
	require.NoError(t, err)

	quotes.set("m1", 0.0)
	report, err := svc.Reprice(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Portfolios, 2)
	assert.Equal(t, 1, quotes.calls)

	va, err := svc.GetPortfolio(ctx, a.ID)
	require.NoError(t, err)
	vb, err = svc.GetPortfolio(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 600.0, va.CurrentBalance)
	assert.Equal(t, -200.0, va.TotalProfitLoss)
	assert.Equal(t, 900.0, vb.CurrentBalance)
	assert.Equal(t, -50.0, vb.TotalProfitLoss)
}

// Cash conservation: balance = initial - executed + returned, never negative.
func TestConservation_RandomizedSequence(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	rng := rand.New(rand.NewSource(42))

	var executed, returned float64
	markets := []string{"m0", "m1", "m2", "m3", "m4"}
	for round := 0; round < 20; round++ {
		var sigs []domain.Signal
		for i := 0; i < 3; i++ {
			m := markets[rng.Intn(len(markets))]
			price := float64(rng.Intn(90)+5) / 100
			amount := float64(rng.Intn(30000)+1) / 100
			side := domain.BuyYes
			if rng.Intn(2) == 0 {
				side = domain.BuyNo
			}
			sigs = append(sigs, domain.Signal{MarketID: m + fmt.Sprint(round), Side: side, TargetPrice: price, Amount: amount})
		}
		// sub-cent amounts never reach the ledger
		subCent := domain.Signal{MarketID: "x" + fmt.Sprint(round), Side: domain.BuyYes, TargetPrice: 0.5,
			Amount: float64(rng.Intn(1000)+1)/100 + 0.005}
		_, err := svc.SubmitSignals(ctx, p.ID, []domain.Signal{subCent})
		require.ErrorIs(t, err, domain.ErrInvalidSignal)

		submit(t, svc, p.ID, sigs...)
		summary, err := svc.ExecuteSignals(ctx, p.ID)
		require.NoError(t, err)
		executed = domain.AddMoney(executed, summary.TotalInvested)

		open, err := svc.Positions(ctx, p.ID, domain.PositionOpen)
		require.NoError(t, err)
		for _, pos := range open {
			switch rng.Intn(3) {
			case 0:
				quotes.set(pos.MarketID, 1)
			case 1:
				quotes.set(pos.MarketID, 0)
			default:
				quotes.set(pos.MarketID, float64(rng.Intn(98)+1)/100)
			}
		}
		_, err = svc.Reprice(ctx, p.ID)
		require.NoError(t, err)

		closed, err := svc.Positions(ctx, p.ID, domain.PositionClosed)
		require.NoError(t, err)
		returned = 0
		for _, pos := range closed {
			returned = domain.AddMoney(returned, domain.CashReturned(pos.Amount, *pos.ExitPrice))
		}

		view, err := svc.GetPortfolio(ctx, p.ID)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, view.CurrentBalance, 0.0)
		assert.InDelta(t, domain.AddMoney(domain.SubMoney(1000, executed), returned), view.CurrentBalance, 1e-9, "round %d", round)

		var openAmount float64
		for _, pos := range view.OpenPositions {
			openAmount = domain.AddMoney(openAmount, pos.Amount)
		}
		assert.InDelta(t, openAmount, view.TotalInvested, 1e-9, "round %d", round)
	}
}

func TestSnapshot(t *testing.T) {
	svc, quotes := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 200))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)
	quotes.set("m1", 0.6)
	_, err = svc.Reprice(ctx)
	require.NoError(t, err)

	snap, err := svc.Snapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 800.0, snap.Balance)
	assert.Equal(t, 200.0, snap.TotalInvested)
	assert.Equal(t, 40.0, snap.TotalProfitLoss)
	assert.Equal(t, 1040.0, snap.TotalValue)
	assert.Equal(t, 1, snap.OpenPositions)
	assert.Equal(t, "2026-03-01", snap.SnapshotDate)

	other := createPortfolio(t, svc, 500)
	archived := domain.PortfolioArchived
	_, err = svc.UpdatePortfolio(ctx, other.ID, domain.PortfolioPatch{Status: &archived})
	require.NoError(t, err)

	snaps, err := svc.SnapshotAll(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1, "archived portfolios are not snapshotted")

	history, err := svc.History(ctx, p.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestPurgePortfolio(t *testing.T) {
	svc, _ := newService(t, ledger.Config{})
	ctx := context.Background()
	p := createPortfolio(t, svc, 1000)
	submit(t, svc, p.ID, yesSignal("m1", 0.5, 200))
	_, err := svc.ExecuteSignals(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, svc.PurgePortfolio(ctx, p.ID))
	_, err = svc.GetPortfolio(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
	assert.ErrorIs(t, svc.PurgePortfolio(ctx, p.ID), domain.ErrPortfolioNotFound)
}
