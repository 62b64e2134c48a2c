package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

const gammaMarketsPath = "/markets"

// FetchQuotes returns the current prices of the given markets from Gamma.
// Ids are deduplicated and fetched in batches; a market whose prices cannot
// be parsed is logged and left out. A batch that still fails after retries
// fails the whole call, so callers never act on a partial picture they did
// not ask for.
func (c *Client) FetchQuotes(ctx context.Context, marketIDs []string) (map[string]domain.Quote, error) {
	ids := dedupe(marketIDs)
	quotes := make(map[string]domain.Quote, len(ids))
	if len(ids) == 0 {
		return quotes, nil
	}

	batches := splitBatches(ids, c.batchSize)
	for i, batch := range batches {
		if i > 0 {
			c.wait(ctx, c.batchDelay)
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("polymarket.FetchQuotes: %w", err)
		}

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.marketsURL(batch), &resp); err != nil {
			return nil, fmt.Errorf("polymarket.FetchQuotes: batch %d/%d: %w", i+1, len(batches), err)
		}

		fetchedAt := time.Now().UTC()
		for _, gm := range resp {
			q, err := toQuote(gm, fetchedAt)
			if err != nil {
				slog.Warn("gamma: skipping market with unusable prices",
					"market_id", gm.ID,
					"err", err,
				)
				continue
			}
			quotes[q.MarketID] = q
		}
	}

	slog.Debug("gamma quotes fetched",
		"requested", len(ids),
		"quoted", len(quotes),
		"batches", len(batches),
	)
	return quotes, nil
}

func (c *Client) marketsURL(ids []string) string {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	q.Set("limit", fmt.Sprint(len(ids)))
	return c.gammaBase + gammaMarketsPath + "?" + q.Encode()
}

// splitBatches splits ids into slices of at most size.
func splitBatches(ids []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += size {
		end := min(i+size, len(ids))
		batches = append(batches, ids[i:end])
	}
	return batches
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
