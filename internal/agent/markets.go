package agent

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Market is an odds table variant. Its rebate rate is withheld from every payout
// multiplier and is the ceiling for a root agent's rebate percentage.
type Market struct {
	Code       string
	RebateRate decimal.Decimal
}

const DefaultMarket = "D"

var Markets = map[string]Market{
	"A": {Code: "A", RebateRate: decimal.RequireFromString("0.011")},
	"D": {Code: "D", RebateRate: decimal.RequireFromString("0.041")},
}

func LookupMarket(code string) (Market, error) {
	if code == "" {
		code = DefaultMarket
	}
	m, ok := Markets[code]
	if !ok {
		return Market{}, fmt.Errorf("%w: %q", ErrUnknownMarket, code)
	}
	return m, nil
}
