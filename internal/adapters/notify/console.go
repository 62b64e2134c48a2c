package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier and the CLI reports.
type Console struct {
	out     io.Writer
	verbose bool
}

// NewConsole creates a notifier writing to stdout.
// With verbose it also prints each signal result.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter creates a notifier writing to w.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// NotifyExecution prints the outcome of a signal batch.
func (c *Console) NotifyExecution(_ context.Context, s domain.ExecutionSummary) error {
	now := time.Now().Format("15:04:05")
	fmt.Fprintf(c.out, "[%s] %s: %d executed ($%.2f) | %d rejected\n",
		now, shortID(s.PortfolioID), s.Executed, s.TotalInvested, s.Rejected)

	if !c.verbose {
		return nil
	}
	for _, r := range s.Results {
		if r.Executed {
			fmt.Fprintf(c.out, "  + %s $%.2f trade=%s\n", r.MarketID, r.Amount, shortID(r.TradeID))
			continue
		}
		fmt.Fprintf(c.out, "  - %s $%.2f %s\n", r.MarketID, r.Amount, r.Reason)
	}
	return nil
}

// NotifyReprice prints one line per pass and the per-portfolio table.
func (c *Console) NotifyReprice(_ context.Context, r domain.RepriceReport) error {
	marked, settled, skipped, failed := r.Totals()
	fmt.Fprintf(c.out, "[%s] reprice %d mkts %d quotes → marked:%d settled:%d skipped:%d failed:%d (%s)\n",
		r.StartedAt.Format("15:04:05"), r.Markets, r.Quotes,
		marked, settled, skipped, failed, r.Duration.Round(time.Millisecond))

	if len(r.Portfolios) == 0 || (!c.verbose && settled == 0 && failed == 0) {
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Portfolio", "Marked", "Settled", "Skipped", "Realized", "Total P&L", "Error")
	for _, p := range r.Portfolios {
		table.Append(
			shortID(p.PortfolioID),
			fmt.Sprintf("%d", p.Marked),
			fmt.Sprintf("%d", p.Settled),
			fmt.Sprintf("%d", p.Skipped),
			money(p.RealizedPnL),
			money(p.TotalProfitLoss),
			p.Error,
		)
	}
	table.Render()
	return nil
}

// PrintPortfolios prints the portfolio list.
func (c *Console) PrintPortfolios(portfolios []domain.Portfolio) {
	if len(portfolios) == 0 {
		fmt.Fprintln(c.out, "  No portfolios yet. Create one with: polyledger portfolio create")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Strategy", "Status", "Cash", "Invested", "P&L", "Return", "Trades", "Win%")
	for _, p := range portfolios {
		table.Append(
			p.ID,
			p.Name,
			p.StrategyType,
			string(p.Status),
			fmt.Sprintf("$%.2f", p.CurrentBalance),
			fmt.Sprintf("$%.2f", p.TotalInvested),
			money(p.TotalProfitLoss),
			fmt.Sprintf("%+.2f%%", p.ReturnPct()),
			fmt.Sprintf("%d", p.TradeCount),
			fmt.Sprintf("%.0f%%", p.WinRate()),
		)
	}
	table.Render()
}

// PrintPortfolio prints one portfolio with its open positions.
func (c *Console) PrintPortfolio(p domain.Portfolio, open []domain.Position) {
	fmt.Fprintf(c.out, "\n")
	fmt.Fprintf(c.out, "========================================================\n")
	fmt.Fprintf(c.out, "  %s  (%s, %s)\n", p.Name, p.StrategyType, p.Status)
	fmt.Fprintf(c.out, "  %s\n", p.ID)
	fmt.Fprintf(c.out, "========================================================\n\n")

	fmt.Fprintf(c.out, "  Initial balance:   $%.2f\n", p.InitialBalance)
	fmt.Fprintf(c.out, "  Cash:              $%.2f\n", p.CurrentBalance)
	fmt.Fprintf(c.out, "  Invested:          $%.2f\n", p.TotalInvested)
	fmt.Fprintf(c.out, "  Realized P&L:      %s\n", money(p.RealizedPnL))
	fmt.Fprintf(c.out, "  Total P&L:         %s\n", money(p.TotalProfitLoss))
	fmt.Fprintf(c.out, "  Total value:       $%.2f (%+.2f%%)\n", p.TotalValue(), p.ReturnPct())
	fmt.Fprintf(c.out, "  Trades:            %d (W:%d L:%d, avg %s)\n",
		p.TradeCount, p.WinningTrades, p.LosingTrades, money(p.AvgTradePnL))
	if p.LastPriceUpdate != nil {
		fmt.Fprintf(c.out, "  Last repriced:     %s\n", p.LastPriceUpdate.Format(time.DateTime))
	}

	if len(open) == 0 {
		fmt.Fprintln(c.out, "\n  No open positions.")
		return
	}

	fmt.Fprintf(c.out, "\n  --- OPEN POSITIONS (%d) ---\n", len(open))
	table := tablewriter.NewWriter(c.out)
	table.Header("Position", "Market", "Side", "Amount", "Entry", "P&L", "Opened")
	for _, pos := range open {
		table.Append(
			pos.ID,
			domain.TruncateQuestion(pos.MarketQuestion, pos.MarketID, 40),
			string(pos.Side),
			fmt.Sprintf("$%.2f", pos.Amount),
			fmt.Sprintf("%.3f", pos.EntryPrice),
			money(pos.CurrentPnL),
			pos.EntryTimestamp.Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintTrades prints trade records.
func (c *Console) PrintTrades(trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(c.out, "  No trades.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Time", "Market", "Side", "Amount", "Entry", "Status", "Realized")
	for _, t := range trades {
		realized := "-"
		if t.RealizedPnL != nil {
			realized = money(*t.RealizedPnL)
		}
		table.Append(
			t.Timestamp.Format("01-02 15:04"),
			domain.TruncateQuestion(t.MarketQuestion, t.MarketID, 40),
			string(t.Side),
			fmt.Sprintf("$%.2f", t.Amount),
			fmt.Sprintf("%.3f", t.EntryPrice),
			string(t.Status),
			realized,
		)
	}
	table.Render()
}

// PrintSignals prints pending signals.
func (c *Console) PrintSignals(signals []domain.Signal) {
	if len(signals) == 0 {
		fmt.Fprintln(c.out, "  No pending signals.")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Market", "Side", "Amount", "Target", "Conf", "Expires")
	for _, s := range signals {
		expires := "-"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format("01-02 15:04")
		}
		table.Append(
			shortID(s.ID),
			domain.TruncateQuestion(s.MarketQuestion, s.MarketID, 40),
			string(s.Side),
			fmt.Sprintf("$%.2f", s.Amount),
			fmt.Sprintf("%.3f", s.TargetPrice),
			fmt.Sprintf("%.2f", s.Confidence),
			expires,
		)
	}
	table.Render()
}

// PrintHistory prints a portfolio's snapshot series.
func (c *Console) PrintHistory(history []domain.Snapshot) {
	if len(history) == 0 {
		fmt.Fprintln(c.out, "  No snapshots yet. Run: polyledger snapshot")
		return
	}
	table := tablewriter.NewWriter(c.out)
	table.Header("Date", "Cash", "Invested", "P&L", "Value", "Open", "Trades")
	for _, s := range history {
		table.Append(
			s.SnapshotDate,
			fmt.Sprintf("$%.2f", s.Balance),
			fmt.Sprintf("$%.2f", s.TotalInvested),
			money(s.TotalProfitLoss),
			fmt.Sprintf("$%.2f", s.TotalValue),
			fmt.Sprintf("%d", s.OpenPositions),
			fmt.Sprintf("%d", s.TradeCount),
		)
	}
	table.Render()
}

// money formats with a sign: +$12.50 / -$3.00.
func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
