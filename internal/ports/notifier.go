package ports

import (
	"context"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

// Notifier presents the outcome of ledger runs to an operator.
type Notifier interface {
	NotifyExecution(ctx context.Context, summary domain.ExecutionSummary) error
	NotifyReprice(ctx context.Context, report domain.RepriceReport) error
}
