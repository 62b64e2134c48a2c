package domain

import "time"

// Quote is the current price of both outcomes of a market, already parsed
// and range-checked by the quote source.
type Quote struct {
	MarketID  string
	YesPrice  float64
	NoPrice   float64
	Liquidity float64
	Volume    float64
	Closed    bool // the venue reports the market as closed
	FetchedAt time.Time
}

// PriceFor returns the price of the outcome a position on side holds.
func (q Quote) PriceFor(side Side) float64 {
	if side == BuyNo {
		return q.NoPrice
	}
	return q.YesPrice
}

// IsResolvedPrice reports whether price is a terminal outcome price.
// Exact equality on purpose: 0.999 is still a live market.
func IsResolvedPrice(price float64) bool {
	return price == 0 || price == 1
}
