package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/spf13/cobra"
)

func newSignalsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Submit and inspect pending signals",
	}
	cmd.AddCommand(newSignalsImportCmd(a), newSignalsListCmd(a))
	return cmd
}

func newSignalsImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <portfolio> <file.json|->",
		Short: "Store a JSON array of signals as pending for a portfolio",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signals, err := readSignals(cmd, args[1])
			if err != nil {
				return err
			}
			stored, err := a.ledger.SubmitSignals(cmd.Context(), args[0], signals)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d signals stored as pending.\n", len(stored))
			if a.verbose {
				a.console.PrintSignals(stored)
			}
			return nil
		},
	}
}

func newSignalsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <portfolio>",
		Short: "List pending signals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sigs, err := a.ledger.PendingSignals(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.console.PrintSignals(sigs)
			return nil
		},
	}
}

// readSignals accepts a JSON array or {"signals": [...]}, like the API.
func readSignals(cmd *cobra.Command, path string) ([]domain.Signal, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var list []domain.Signal
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Signals []domain.Signal `json:"signals"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse signals from %s: %w", path, err)
	}
	return wrapped.Signals, nil
}
