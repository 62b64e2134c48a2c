package polymarket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/polyledger/internal/domain"
)

// toQuote converts a Gamma market into a typed quote. This is the only
// place outcomePrices is parsed.
func toQuote(gm gammaMarket, fetchedAt time.Time) (domain.Quote, error) {
	if gm.ID == "" {
		return domain.Quote{}, errors.New("missing market id")
	}
	yes, no, err := parseOutcomePrices(gm.OutcomePrices)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		MarketID:  gm.ID,
		YesPrice:  yes,
		NoPrice:   no,
		Liquidity: float64(gm.Liquidity),
		Volume:    float64(gm.Volume),
		Closed:    gm.Closed,
		FetchedAt: fetchedAt,
	}, nil
}

// parseOutcomePrices reads the [yes, no] pair. Entries may be strings or
// numbers; both must lie in [0,1].
func parseOutcomePrices(raw string) (yes, no float64, err error) {
	if raw == "" {
		return 0, 0, errors.New("empty outcomePrices")
	}
	var entries []any
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return 0, 0, fmt.Errorf("outcomePrices %q: %w", raw, err)
	}
	if len(entries) != 2 {
		return 0, 0, fmt.Errorf("outcomePrices %q: want 2 entries, got %d", raw, len(entries))
	}
	prices := make([]float64, 2)
	for i, e := range entries {
		var v float64
		switch x := e.(type) {
		case string:
			v, err = strconv.ParseFloat(x, 64)
			if err != nil {
				return 0, 0, fmt.Errorf("outcomePrices %q: %w", raw, err)
			}
		case float64:
			v = x
		default:
			return 0, 0, fmt.Errorf("outcomePrices %q: unexpected entry %v", raw, e)
		}
		if v < 0 || v > 1 {
			return 0, 0, fmt.Errorf("outcomePrices %q: price %v out of range", raw, v)
		}
		prices[i] = v
	}
	return prices[0], prices[1], nil
}
