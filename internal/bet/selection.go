package bet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lottery_service/internal/draw"
)

var ErrInvalidSelection = errors.New("invalid bet selection")

const (
	CategoryNumber      = "number"       // exact value at one rank
	CategoryTwoSide     = "two_side"     // big/small/odd/even at one rank
	CategorySumValue    = "sum_value"    // exact sum of ranks 1 and 2
	CategorySumTwoSide  = "sum_two_side" // big/small/odd/even of that sum
	CategoryDragonTiger = "dragon_tiger" // rank a against rank b
)

const (
	SideBig    = "big"
	SideSmall  = "small"
	SideOdd    = "odd"
	SideEven   = "even"
	SideDragon = "dragon"
	SideTiger  = "tiger"
)

const (
	sumMin      = 3
	sumMax      = 19
	sumBigAbove = 11
	rankBigOver = 5
)

// Selection is the typed form of what a bet is on. It is decided once at placement; settlement
// and exposure only ever read these fields.
type Selection struct {
	Category string `gorm:"column:category;type:varchar(16);not null" json:"category"`
	RankA    int    `gorm:"column:rank_a;not null" json:"rank_a,omitempty"`
	RankB    int    `gorm:"column:rank_b;not null" json:"rank_b,omitempty"`
	Number   int    `gorm:"column:number;not null" json:"number,omitempty"`
	Side     string `gorm:"column:side;type:varchar(8);not null" json:"side,omitempty"`
}

// Ranks lists the 1-based ranks whose values decide the bet, in the order Matches expects.
func (s Selection) Ranks() []int {
	switch s.Category {
	case CategoryNumber, CategoryTwoSide:
		return []int{s.RankA}
	case CategorySumValue, CategorySumTwoSide:
		return []int{1, 2}
	case CategoryDragonTiger:
		return []int{s.RankA, s.RankB}
	}
	return nil
}

// Matches decides the bet from the values drawn at Ranks().
func (s Selection) Matches(values ...int) bool {
	if len(values) != len(s.Ranks()) || len(values) == 0 {
		return false
	}
	switch s.Category {
	case CategoryNumber:
		return values[0] == s.Number
	case CategoryTwoSide:
		return sideWins(s.Side, values[0], rankBigOver)
	case CategorySumValue:
		return values[0]+values[1] == s.Number
	case CategorySumTwoSide:
		return sideWins(s.Side, values[0]+values[1], sumBigAbove)
	case CategoryDragonTiger:
		if s.Side == SideDragon {
			return values[0] > values[1]
		}
		return values[0] < values[1]
	}
	return false
}

func sideWins(side string, v int, bigAbove int) bool {
	switch side {
	case SideBig:
		return v > bigAbove
	case SideSmall:
		return v <= bigAbove
	case SideOdd:
		return v%2 == 1
	case SideEven:
		return v%2 == 0
	}
	return false
}

func (s Selection) Wins(r draw.Result) bool {
	ranks := s.Ranks()
	values := make([]int, len(ranks))
	for i, rank := range ranks {
		values[i] = r.At(rank)
	}
	return s.Matches(values...)
}

func (s Selection) String() string {
	switch s.Category {
	case CategoryNumber:
		return fmt.Sprintf("number:%d=%d", s.RankA, s.Number)
	case CategoryTwoSide:
		return fmt.Sprintf("two_side:%d=%s", s.RankA, s.Side)
	case CategorySumValue:
		return fmt.Sprintf("sum_value=%d", s.Number)
	case CategorySumTwoSide:
		return fmt.Sprintf("sum_two_side=%s", s.Side)
	case CategoryDragonTiger:
		return fmt.Sprintf("dragon_tiger:%d_%d=%s", s.RankA, s.RankB, s.Side)
	}
	return s.Category
}

func (s Selection) Validate() error {
	validRank := func(r int) bool { return r >= 1 && r <= draw.Ranks }
	switch s.Category {
	case CategoryNumber:
		if validRank(s.RankA) && s.Number >= 1 && s.Number <= draw.Ranks {
			return nil
		}
	case CategoryTwoSide:
		if validRank(s.RankA) && isTwoSide(s.Side) {
			return nil
		}
	case CategorySumValue:
		if s.Number >= sumMin && s.Number <= sumMax {
			return nil
		}
	case CategorySumTwoSide:
		if isTwoSide(s.Side) {
			return nil
		}
	case CategoryDragonTiger:
		if validRank(s.RankA) && validRank(s.RankB) && s.RankA != s.RankB && (s.Side == SideDragon || s.Side == SideTiger) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidSelection, s)
}

func isTwoSide(side string) bool {
	return side == SideBig || side == SideSmall || side == SideOdd || side == SideEven
}

var namedRanks = map[string]int{
	"champion": 1, "runnerup": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// ParseSelection turns an intake triple (bet type, value, position) into a typed selection.
// Both the category names above and the legacy intake names are accepted:
// "champion".."tenth", "position", "sumValue", "dragonTiger" with "dragon", "tiger" or "dragon_5_6".
func ParseSelection(betType string, value string, position int) (Selection, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	n, numErr := strconv.Atoi(value)
	isNum := numErr == nil

	var s Selection
	switch bt := strings.TrimSpace(betType); {
	case bt == CategoryNumber:
		s = Selection{Category: CategoryNumber, RankA: position, Number: n}
		if !isNum {
			s.Number = 0
		}
	case bt == CategoryTwoSide || bt == "position" || bt == "twoSide":
		s = Selection{Category: CategoryTwoSide, RankA: position, Side: value}
	case namedRanks[bt] > 0:
		if isNum {
			s = Selection{Category: CategoryNumber, RankA: namedRanks[bt], Number: n}
		} else {
			s = Selection{Category: CategoryTwoSide, RankA: namedRanks[bt], Side: value}
		}
	case bt == CategorySumValue || bt == CategorySumTwoSide || bt == "sumValue":
		if isNum {
			s = Selection{Category: CategorySumValue, Number: n}
		} else {
			s = Selection{Category: CategorySumTwoSide, Side: value}
		}
	case bt == CategoryDragonTiger || bt == "dragonTiger":
		parsed, err := parseDragonTiger(value, position)
		if err != nil {
			return Selection{}, err
		}
		s = parsed
	default:
		return Selection{}, fmt.Errorf("%w: unknown bet type %q", ErrInvalidSelection, betType)
	}
	return s, s.Validate()
}

func parseDragonTiger(value string, position int) (Selection, error) {
	parts := strings.Split(value, "_")
	s := Selection{Category: CategoryDragonTiger, Side: parts[0]}
	switch len(parts) {
	case 1:
		// bare dragon/tiger compares rank 1 with rank 2, or position with its mirror rank
		s.RankA, s.RankB = 1, 2
		if position >= 1 && position <= 5 {
			s.RankA, s.RankB = position, draw.Ranks+1-position
		}
	case 3:
		a, errA := strconv.Atoi(parts[1])
		b, errB := strconv.Atoi(parts[2])
		if errA != nil || errB != nil {
			return Selection{}, fmt.Errorf("%w: %q", ErrInvalidSelection, value)
		}
		s.RankA, s.RankB = a, b
	default:
		return Selection{}, fmt.Errorf("%w: %q", ErrInvalidSelection, value)
	}
	return s, nil
}
