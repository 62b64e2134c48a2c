package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/alejandrodnm/polyledger/internal/adapters/notify"
	"github.com/spf13/cobra"
)

func newRepriceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reprice [portfolio...]",
		Short: "Mark open positions to market and settle resolved ones",
		Long: "Fetches current prices from Gamma for every open position.\n" +
			"Without arguments all active portfolios are repriced.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			report, err := a.ledger.Reprice(ctx, args...)
			if len(report.Portfolios) > 0 {
				// always detailed for a manual run
				out := notify.NewConsoleWriter(cmd.OutOrStdout(), true)
				if nerr := out.NotifyReprice(ctx, report); nerr != nil {
					return nerr
				}
			}
			return err
		},
	}
}

func newSettleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "settle <portfolio> <position> <0|1>",
		Short: "Close a position at a resolution price",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			exit, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("exit price %q: %w", args[2], err)
			}
			res, err := a.ledger.Settle(cmd.Context(), args[0], args[1], exit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !res.Applied {
				fmt.Fprintf(out, "Position %s was already closed.\n", args[1])
				return nil
			}
			outcome := "lost"
			if res.Won {
				outcome = "won"
			}
			fmt.Fprintf(out, "Position %s settled at %.0f: %s, realized %s, cash returned $%.2f\n",
				args[1], res.ExitPrice, outcome, signed(res.RealizedPnL), res.CashReturned)
			return nil
		},
	}
}

func newSnapshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [portfolio...]",
		Short: "Record today's snapshot for the given or all active portfolios",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				snaps, err := a.ledger.SnapshotAll(ctx)
				fmt.Fprintf(out, "%d snapshots recorded.\n", len(snaps))
				return err
			}
			var errs []error
			for _, id := range args {
				s, err := a.ledger.Snapshot(ctx, id)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				fmt.Fprintf(out, "%s %s value $%.2f\n", s.SnapshotDate, id, s.TotalValue)
			}
			return errors.Join(errs...)
		},
	}
}

func newReportCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "report [portfolio]",
		Short: "Summary of all portfolios, or trades and history of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 {
				list, err := a.ledger.ListPortfolios(ctx, "")
				if err != nil {
					return err
				}
				a.console.PrintPortfolios(list)
				return nil
			}

			view, err := a.ledger.GetPortfolio(ctx, args[0])
			if err != nil {
				return err
			}
			trades, err := a.ledger.Trades(ctx, args[0], "", limit)
			if err != nil {
				return err
			}
			history, err := a.ledger.History(ctx, args[0], limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			a.console.PrintPortfolio(view.Portfolio, view.OpenPositions)
			fmt.Fprintln(out, "\nTrades")
			a.console.PrintTrades(trades)
			fmt.Fprintln(out, "\nHistory")
			a.console.PrintHistory(history)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 30, "max trades and snapshots to show")
	return cmd
}

func signed(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("+$%.2f", v)
}
