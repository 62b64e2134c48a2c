package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/alejandrodnm/polyledger/config"
	"github.com/alejandrodnm/polyledger/internal/adapters/notify"
	"github.com/alejandrodnm/polyledger/internal/adapters/polymarket"
	"github.com/alejandrodnm/polyledger/internal/adapters/storage"
	"github.com/alejandrodnm/polyledger/internal/application/ledger"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config/config.yaml"

// app holds the dependencies shared by subcommands.
type app struct {
	configPath string
	verbose    bool
	logLevel   string

	cfg     *config.Config
	store   *storage.SQLStorage
	quotes  *polymarket.Client
	ledger  *ledger.Service
	console *notify.Console
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "polyledger",
		Short:         "Paper-trading ledger and P&L settlement for Polymarket portfolios",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to the YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "print per-signal and per-portfolio detail")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(a),
		newPortfolioCmd(a),
		newSignalsCmd(a),
		newExecuteCmd(a),
		newRepriceCmd(a),
		newSettleCmd(a),
		newSnapshotCmd(a),
		newReportCmd(a),
	)
	return root
}

// load reads the config and wires the ledger. Without an explicit --config,
// a missing default file is not an error.
func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		cfg, err = config.Load("")
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	setupLogger(cfg.Log)
	a.cfg = cfg

	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	a.quotes = polymarket.NewClient(polymarket.Config{
		GammaBase:  cfg.API.GammaBase,
		BatchSize:  cfg.Quotes.BatchSize,
		BatchDelay: cfg.BatchDelay(),
		RatePerSec: cfg.Quotes.RatePerSecond,
		Timeout:    cfg.QuoteTimeout(),
	})
	a.ledger = ledger.New(store, a.quotes, ledger.Config{
		RepriceWorkers:             cfg.Repricer.Workers,
		RequireClosedForSettlement: cfg.Repricer.RequireClosedForSettlement,
	})
	a.console = notify.NewConsoleWriter(cmd.OutOrStdout(), a.verbose)
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
