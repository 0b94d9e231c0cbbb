package services

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/aristath/frontier/internal/domain"
)

// PortfolioID identifies a portfolio in a request body. Clients send it either
// as a JSON string or as a JSON number; both normalize to the same string.
type PortfolioID string

// UnmarshalJSON accepts "7", 7 and null
func (p *PortfolioID) UnmarshalJSON(data []byte) error {
	const op = "services.PortfolioID.UnmarshalJSON"

	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = PortfolioID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return domain.NewError(domain.KindInvalidRequest, op, "portfolio_id must be a string or a number, got %s", data)
	}
	if i, err := n.Int64(); err == nil {
		*p = PortfolioID(strconv.FormatInt(i, 10))
		return nil
	}
	*p = PortfolioID(n.String())
	return nil
}

func (p PortfolioID) String() string {
	return string(p)
}
