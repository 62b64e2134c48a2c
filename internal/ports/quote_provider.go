package ports

import (
	"context"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

// QuoteProvider fetches current outcome prices from the market venue.
type QuoteProvider interface {
	// FetchQuotes returns quotes keyed by market id. Markets the venue did not
	// return, or returned with unusable prices, are absent from the map.
	// An error means the fetch as a whole failed and nothing should be written.
	FetchQuotes(ctx context.Context, marketIDs []string) (map[string]domain.Quote, error)
}
