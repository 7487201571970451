package bet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"lottery_service/internal/agent"
)

var ErrLimitExceeded = errors.New("bet limit exceeded")

var (
	numberBase  = decimal.NewFromInt(10)
	twoSideBase = decimal.NewFromInt(2)
)

// sumValueBase is the pre-rebate multiplier for each possible sum of ranks 1 and 2.
var sumValueBase = map[int]decimal.Decimal{
	3: decimal.RequireFromString("45"), 4: decimal.RequireFromString("23"), 5: decimal.RequireFromString("15"),
	6: decimal.RequireFromString("11.5"), 7: decimal.RequireFromString("9"), 8: decimal.RequireFromString("7.5"),
	9: decimal.RequireFromString("6.5"), 10: decimal.RequireFromString("5.7"), 11: decimal.RequireFromString("5.7"),
	12: decimal.RequireFromString("6.5"), 13: decimal.RequireFromString("7.5"), 14: decimal.RequireFromString("9"),
	15: decimal.RequireFromString("11.5"), 16: decimal.RequireFromString("15"), 17: decimal.RequireFromString("23"),
	18: decimal.RequireFromString("45"), 19: decimal.RequireFromString("90"),
}

// QuoteOdds returns the payout multiplier for s in market m: base × (1 − market rebate), 3 decimals.
func QuoteOdds(m agent.Market, s Selection) (decimal.Decimal, error) {
	var base decimal.Decimal
	switch s.Category {
	case CategoryNumber:
		base = numberBase
	case CategoryTwoSide, CategorySumTwoSide, CategoryDragonTiger:
		base = twoSideBase
	case CategorySumValue:
		b, ok := sumValueBase[s.Number]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSelection, s)
		}
		base = b
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidSelection, s)
	}
	return base.Mul(decimal.NewFromInt(1).Sub(m.RebateRate)).Round(3), nil
}

// Limit bounds a single stake and the running total a member may stake on one limit group in a period.
type Limit struct {
	Group     string
	MinBet    decimal.Decimal
	MaxBet    decimal.Decimal
	PeriodMax decimal.Decimal
}

var limits = map[string]Limit{
	"number":       {Group: "number", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(2500), PeriodMax: decimal.NewFromInt(5000)},
	"two_side":     {Group: "two_side", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(5000), PeriodMax: decimal.NewFromInt(5000)},
	"sum_size":     {Group: "sum_size", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(5000), PeriodMax: decimal.NewFromInt(5000)},
	"sum_odd_even": {Group: "sum_odd_even", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(5000), PeriodMax: decimal.NewFromInt(5000)},
	"sum_value":    {Group: "sum_value", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(1000), PeriodMax: decimal.NewFromInt(2000)},
	"dragon_tiger": {Group: "dragon_tiger", MinBet: decimal.NewFromInt(1), MaxBet: decimal.NewFromInt(5000), PeriodMax: decimal.NewFromInt(5000)},
}

// LimitFor maps a selection to its limit group. Sum two-side bets split into size and parity groups.
func LimitFor(s Selection) Limit {
	switch s.Category {
	case CategorySumTwoSide:
		if s.Side == SideBig || s.Side == SideSmall {
			return limits["sum_size"]
		}
		return limits["sum_odd_even"]
	}
	return limits[s.Category]
}

// Check validates one stake against the group limits given what the member already staked.
func (l Limit) Check(stake, alreadyStaked decimal.Decimal) error {
	if stake.LessThan(l.MinBet) {
		return fmt.Errorf("%w: stake %s below minimum %s", ErrLimitExceeded, stake, l.MinBet)
	}
	if stake.GreaterThan(l.MaxBet) {
		return fmt.Errorf("%w: stake %s above maximum %s", ErrLimitExceeded, stake, l.MaxBet)
	}
	if alreadyStaked.Add(stake).GreaterThan(l.PeriodMax) {
		return fmt.Errorf("%w: period total would reach %s of %s", ErrLimitExceeded, alreadyStaked.Add(stake), l.PeriodMax)
	}
	return nil
}

// sides narrows the prior-stake sum for groups that share a category.
func (l Limit) sides() []string {
	switch l.Group {
	case "sum_size":
		return []string{SideBig, SideSmall}
	case "sum_odd_even":
		return []string{SideOdd, SideEven}
	}
	return nil
}
