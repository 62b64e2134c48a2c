package scheduler

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polyledger/internal/domain"
	"github.com/alejandrodnm/polyledger/internal/ports"
)

// Repricer is the part of the ledger RepriceJob uses.
type Repricer interface {
	Reprice(ctx context.Context, portfolioIDs ...string) (domain.RepriceReport, error)
}

// Snapshotter is the part of the ledger SnapshotJob uses.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) ([]domain.Snapshot, error)
}

// RepriceJob marks every active portfolio to market.
type RepriceJob struct {
	ledger   Repricer
	notifier ports.Notifier
}

// NewRepriceJob creates the job. notifier may be nil.
func NewRepriceJob(ledger Repricer, notifier ports.Notifier) *RepriceJob {
	return &RepriceJob{ledger: ledger, notifier: notifier}
}

func (j *RepriceJob) Name() string { return "reprice" }

// Run does one pass. The report is notified even when some portfolios
// failed, so a partial failure stays visible.
func (j *RepriceJob) Run(ctx context.Context) error {
	report, err := j.ledger.Reprice(ctx)
	if len(report.Portfolios) > 0 && j.notifier != nil {
		if nerr := j.notifier.NotifyReprice(ctx, report); nerr != nil {
			slog.Warn("notifier error", "err", nerr)
		}
	}
	return err
}

// SnapshotJob records the daily snapshot of every active portfolio.
type SnapshotJob struct {
	ledger Snapshotter
}

func NewSnapshotJob(ledger Snapshotter) *SnapshotJob {
	return &SnapshotJob{ledger: ledger}
}

func (j *SnapshotJob) Name() string { return "snapshot" }

func (j *SnapshotJob) Run(ctx context.Context) error {
	_, err := j.ledger.SnapshotAll(ctx)
	return err
}
