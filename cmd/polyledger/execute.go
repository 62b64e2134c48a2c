package main

import (
	"fmt"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/spf13/cobra"
)

func newExecuteCmd(a *app) *cobra.Command {
	var signalID string
	cmd := &cobra.Command{
		Use:   "execute <portfolio>",
		Short: "Execute pending signals as paper trades",
		Long: "Executes every pending signal of the portfolio in creation order.\n" +
			"Rejected signals stay pending and are retried on the next run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if signalID != "" {
				res, err := a.ledger.ExecuteSignal(ctx, args[0], signalID)
				if err != nil {
					return err
				}
				summary := domain.ExecutionSummary{PortfolioID: args[0]}
				summary.Add(res)
				return a.console.NotifyExecution(ctx, summary)
			}

			summary, err := a.ledger.ExecuteSignals(ctx, args[0])
			if err != nil {
				return err
			}
			if len(summary.Results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending signals.")
				return nil
			}
			return a.console.NotifyExecution(ctx, summary)
		},
	}
	cmd.Flags().StringVar(&signalID, "signal", "", "execute only this signal id")
	return cmd
}
