package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// gammaMarketsResponse is the body of GET /markets.
type gammaMarketsResponse []gammaMarket

// gammaMarket holds the fields of a Gamma market the ledger needs.
// outcomePrices is a JSON-encoded list inside a string: "[\"0.65\", \"0.35\"]".
type gammaMarket struct {
	ID            string    `json:"id"`
	Question      string    `json:"question"`
	OutcomePrices string    `json:"outcomePrices"`
	Liquidity     flexFloat `json:"liquidity"`
	Volume        flexFloat `json:"volume"`
	Active        bool      `json:"active"`
	Closed        bool      `json:"closed"`
}

// flexFloat decodes numbers Gamma sends either as JSON numbers or as
// strings, treating empty or null as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

var _ json.Unmarshaler = (*flexFloat)(nil)
