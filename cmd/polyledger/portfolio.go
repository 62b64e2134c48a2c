package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/spf13/cobra"
)

func newPortfolioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "portfolio",
		Aliases: []string{"pf"},
		Short:   "Create, inspect and manage portfolios",
	}
	cmd.AddCommand(
		newPortfolioCreateCmd(a),
		newPortfolioListCmd(a),
		newPortfolioShowCmd(a),
		newPortfolioUpdateCmd(a),
		newPortfolioPurgeCmd(a),
	)
	return cmd
}

func newPortfolioCreateCmd(a *app) *cobra.Command {
	var (
		in        domain.NewPortfolio
		rawConfig string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Open a new active portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Name = args[0]
			if rawConfig != "" {
				in.StrategyConfig = json.RawMessage(rawConfig)
			}
			p, err := a.ledger.CreatePortfolio(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.console.PrintPortfolio(p, nil)
			return nil
		},
	}
	cmd.Flags().Float64Var(&in.InitialBalance, "balance", 10000, "initial cash balance in USDC")
	cmd.Flags().StringVar(&in.StrategyType, "strategy", "", "strategy label (default \"manual\")")
	cmd.Flags().StringVar(&rawConfig, "strategy-config", "", "strategy parameters as a JSON object")
	return cmd
}

func newPortfolioListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List portfolios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParsePortfolioStatus(status)
			if err != nil {
				return err
			}
			list, err := a.ledger.ListPortfolios(cmd.Context(), st)
			if err != nil {
				return err
			}
			a.console.PrintPortfolios(list)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|paused|archived)")
	return cmd
}

func newPortfolioShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <portfolio>",
		Short: "Show a portfolio with its open positions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := a.ledger.GetPortfolio(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintPortfolio(view.Portfolio, view.OpenPositions)
			return nil
		},
	}
}

func newPortfolioUpdateCmd(a *app) *cobra.Command {
	var name, strategy, status, rawConfig string
	cmd := &cobra.Command{
		Use:   "update <portfolio>",
		Short: "Rename, relabel, pause, resume or archive a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// same path as HTTP PATCH: the allow-list lives in ParsePortfolioPatch
			fields := map[string]json.RawMessage{}
			set := func(flag, key, v string) {
				if cmd.Flags().Changed(flag) {
					b, _ := json.Marshal(v)
					fields[key] = b
				}
			}
			set("name", "name", name)
			set("strategy", "strategy_type", strategy)
			set("status", "status", status)
			if cmd.Flags().Changed("strategy-config") {
				fields["strategy_config"] = json.RawMessage(rawConfig)
			}
			if len(fields) == 0 {
				return errors.New("nothing to update: pass --name, --strategy, --status or --strategy-config")
			}

			patch, err := domain.ParsePortfolioPatch(fields)
			if err != nil {
				return err
			}
			p, err := a.ledger.UpdatePortfolio(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			a.console.PrintPortfolio(p, nil)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&strategy, "strategy", "", "new strategy label")
	cmd.Flags().StringVar(&status, "status", "", "active|paused|archived")
	cmd.Flags().StringVar(&rawConfig, "strategy-config", "", "replacement strategy parameters as a JSON object")
	return cmd
}

func newPortfolioPurgeCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <portfolio>",
		Short: "Delete a portfolio with all its signals, positions and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("purge of %s is irreversible: re-run with --yes", args[0])
			}
			if err := a.ledger.PurgePortfolio(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Portfolio %s purged.\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}
