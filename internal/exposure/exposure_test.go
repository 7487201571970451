package exposure

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
	"lottery_service/internal/shared/db/dbtest"
)

var r = draw.Result{8, 5, 1, 2, 10, 3, 4, 6, 7, 9}

func TestSingleRankExposure(t *testing.T) {
	e := New()
	e.Add(bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 1, 100, 959)
	e.Add(bet.Selection{Category: bet.CategoryTwoSide, RankA: 1, Side: bet.SideSmall}, 1, 50, 95.9)

	assert.Equal(t, 959.0, e.Single[0][8].Payout)
	assert.Equal(t, 95.9, e.Single[0][3].Payout)
	assert.Equal(t, 0.0, e.Single[0][6].Payout)
	assert.Equal(t, 150.0, e.Stake)

	assert.InDelta(t, 959, e.Payout(r), 1e-9)
	assert.InDelta(t, 95.9, e.Payout(draw.Result{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}), 1e-9)

	number := e.Category(bet.CategoryNumber)
	require.NotNil(t, number)
	assert.Equal(t, 1, number.Bets)
	assert.Equal(t, 959.0, number.Single[0][8].Payout)
	assert.Equal(t, 0.0, number.Single[0][3].Payout)
	twoSide := e.Category(bet.CategoryTwoSide)
	require.NotNil(t, twoSide)
	assert.Equal(t, 95.9, twoSide.Single[0][3].Payout)
	assert.Equal(t, 0.0, twoSide.Single[0][8].Payout)
	assert.Nil(t, e.Category(bet.CategorySumValue))
}

func TestPairExposureIsJoint(t *testing.T) {
	e := New()
	e.Add(bet.Selection{Category: bet.CategorySumValue, Number: 13}, 1, 10, 71.9)
	e.Add(bet.Selection{Category: bet.CategoryDragonTiger, RankA: 5, RankB: 6, Side: bet.SideTiger}, 1, 10, 19.18)

	grid := e.Pairs[Pair{A: 1, B: 2}]
	require.NotNil(t, grid)
	assert.Equal(t, 71.9, grid[8][5].Payout)
	assert.Equal(t, 71.9, grid[3][10].Payout)
	assert.Equal(t, 0.0, grid[8][4].Payout, "8 at rank 1 alone does not decide a sum bet")

	// rank 5 = 10 beats rank 6 = 3, so the tiger bet loses
	assert.InDelta(t, 71.9, e.Payout(r), 1e-9)
	assert.InDelta(t, 19.18, e.Payout(draw.Result{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}), 1e-9)
}

func TestMergeAndScope(t *testing.T) {
	book := NewBook("20250717001")
	a := New()
	a.Add(bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 1, 100, 959)
	b := New()
	b.Add(bet.Selection{Category: bet.CategorySumValue, Number: 13}, 1, 10, 71.9)
	book.ByMember["a"], book.ByMember["b"] = a, b
	book.Total.Merge(a)
	book.Total.Merge(b)

	assert.Equal(t, []string{"a", "b"}, book.Bettors())
	assert.InDelta(t, 959+71.9, book.Total.Payout(r), 1e-9)
	assert.InDelta(t, 71.9, book.Scoped([]string{"b", "ghost"}).Payout(r), 1e-9)
	assert.Equal(t, 1, book.Total.Category(bet.CategoryNumber).Bets)
	assert.InDelta(t, 71.9, book.Total.Category(bet.CategorySumValue).Payout(r), 1e-9)
	assert.True(t, book.Scoped([]string{"ghost"}).Empty())
}

func TestAggregate(t *testing.T) {
	gdb := dbtest.New(t, &bet.Bet{})
	ctx := context.Background()
	now := time.Now()

	add := func(member string, sel bet.Selection, stake int64, settled bool, periodID string) {
		require.NoError(t, gdb.Create(&bet.Bet{
			ID: uuid.NewString(), PeriodID: periodID, MemberID: member, Selection: sel, Market: "D",
			Stake: decimal.NewFromInt(stake), Odds: decimal.RequireFromString("9.59"), Settled: settled, CreatedAt: now,
		}).Error)
	}
	n8 := bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}
	for i := 0; i < 7; i++ {
		add("m1", n8, 10, false, "20250717001")
	}
	add("m2", bet.Selection{Category: bet.CategoryNumber, RankA: 2, Number: 5}, 100, false, "20250717001")
	add("m2", n8, 1000, true, "20250717001")
	add("m3", n8, 1000, false, "20250717002")

	book, err := NewAggregator(gdb, 3).Aggregate(ctx, "20250717001")
	require.NoError(t, err)
	assert.Equal(t, 8, book.Total.Bets)
	assert.InDelta(t, 170, book.Total.Stake, 1e-9)
	assert.InDelta(t, 70*9.59+100*9.59, book.Total.Payout(r), 1e-6)
	assert.InDelta(t, 70*9.59, book.ByMember["m1"].Payout(r), 1e-6)
	assert.Equal(t, []string{"m1", "m2"}, book.Bettors())

	empty, err := NewAggregator(gdb, 0).Aggregate(ctx, "20250717099")
	require.NoError(t, err)
	assert.True(t, empty.Total.Empty())
	assert.Zero(t, empty.Total.Payout(r))
}
