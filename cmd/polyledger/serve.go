package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyledger/internal/adapters/httpapi"
	"github.com/alejandrodnm/polyledger/internal/adapters/lock"
	"github.com/alejandrodnm/polyledger/internal/application/scheduler"
	"github.com/alejandrodnm/polyledger/internal/ports"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API plus the scheduled reprice and snapshot jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}

	// optional distributed lock: with several replicas only one runs each job
	var locker ports.Locker
	if a.cfg.Lock.RedisURL != "" {
		rdb, err := lock.Dial(ctx, a.cfg.Lock.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, a.cfg.LockTTL())
		slog.Info("distributed job lock enabled")
	}

	sched := scheduler.New(locker, a.cfg.RepriceTimeout())
	if !a.cfg.Repricer.Disabled {
		if err := sched.AddJob(a.cfg.Repricer.Schedule, scheduler.NewRepriceJob(a.ledger, a.console)); err != nil {
			return err
		}
	}
	if !a.cfg.Snapshots.Disabled {
		if err := sched.AddJob(a.cfg.Snapshots.Schedule, scheduler.NewSnapshotJob(a.ledger)); err != nil {
			return err
		}
	}
	sched.Start()

	srv := httpapi.New(httpapi.Config{
		Addr:           a.cfg.Server.Addr,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: a.cfg.RequestTimeout(),
	}, a.ledger, a.store)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "err", err)
	}
	sched.Stop(shutdownCtx)
	return serveErr
}
