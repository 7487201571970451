package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"lottery_service/internal/agent"
	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
	"lottery_service/internal/shared/db/dbtest"
	"lottery_service/internal/shared/metrics"
	"lottery_service/internal/wallet"
)

const periodID = "20250717001"

var result = draw.Result{8, 5, 1, 2, 10, 3, 4, 6, 7, 9}

func setup(t *testing.T) (*Processor, *gorm.DB, wallet.WalletRepository) {
	gdb := dbtest.New(t, &agent.Member{}, &wallet.TransactionRecord{}, &bet.Bet{})
	w := wallet.NewWalletRepositoryImpl(gdb)
	return NewProcessor(gdb, w, zaptest.NewLogger(t), metrics.NewNop()), gdb, w
}

func member(t *testing.T, gdb *gorm.DB, balance int64) string {
	now := time.Now()
	m := &agent.Member{ID: uuid.NewString(), AgentID: uuid.NewString(), Username: uuid.NewString(), Balance: decimal.NewFromInt(balance), CreatedAt: now, UpdatedAt: now}
	require.NoError(t, gdb.Create(m).Error)
	return m.ID
}

func placeBet(t *testing.T, gdb *gorm.DB, memberID string, sel bet.Selection, stake int64, odds string) string {
	b := &bet.Bet{
		ID: uuid.NewString(), PeriodID: periodID, MemberID: memberID, Selection: sel, Market: "D",
		Stake: decimal.NewFromInt(stake), Odds: decimal.RequireFromString(odds), CreatedAt: time.Now(),
	}
	require.NoError(t, gdb.Create(b).Error)
	return b.ID
}

func TestSettle(t *testing.T) {
	proc, gdb, w := setup(t)
	ctx := context.Background()
	m := member(t, gdb, 0)

	win := placeBet(t, gdb, m, bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 100, "9.59")
	lose := placeBet(t, gdb, m, bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 7}, 100, "9.59")
	sumWin := placeBet(t, gdb, m, bet.Selection{Category: bet.CategorySumTwoSide, Side: bet.SideBig}, 10, "1.918")

	sum, err := proc.Settle(ctx, periodID, result)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Bets)
	assert.Equal(t, 2, sum.Winners)
	assert.True(t, sum.Payout.Equal(decimal.RequireFromString("978.18")))

	bal, err := w.GetBalance(ctx, wallet.ActorMember, m)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("978.18")), "balance %s", bal)

	var bets []bet.Bet
	require.NoError(t, gdb.Where("period_id = ?", periodID).Find(&bets).Error)
	for _, b := range bets {
		assert.True(t, b.Settled)
		require.NotNil(t, b.SettledAt)
		switch b.ID {
		case win, sumWin:
			assert.True(t, b.Won)
		case lose:
			assert.False(t, b.Won)
			assert.True(t, b.Payout.IsZero())
		}
	}

	wins, err := w.ListByPeriod(ctx, periodID, wallet.CategoryGameWin)
	require.NoError(t, err)
	assert.Len(t, wins, 2)
}

func TestSettleIsIdempotent(t *testing.T) {
	proc, gdb, w := setup(t)
	ctx := context.Background()
	m := member(t, gdb, 0)
	placeBet(t, gdb, m, bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 100, "9.59")

	_, err := proc.Settle(ctx, periodID, result)
	require.NoError(t, err)

	again, err := proc.Settle(ctx, periodID, result)
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Zero(t, again.Bets)

	bal, err := w.GetBalance(ctx, wallet.ActorMember, m)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(959)))

	wins, err := w.ListByPeriod(ctx, periodID, wallet.CategoryGameWin)
	require.NoError(t, err)
	assert.Len(t, wins, 1)
}

func TestSettleIsAtomic(t *testing.T) {
	proc, gdb, w := setup(t)
	ctx := context.Background()
	m := member(t, gdb, 0)
	placeBet(t, gdb, m, bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 100, "9.59")
	// winner whose member row is missing: the credit fails and nothing may stick
	placeBet(t, gdb, uuid.NewString(), bet.Selection{Category: bet.CategoryNumber, RankA: 2, Number: 5}, 100, "9.59")

	_, err := proc.Settle(ctx, periodID, result)
	require.ErrorIs(t, err, wallet.ErrAccountNotFound)

	var settled int64
	require.NoError(t, gdb.Model(&bet.Bet{}).Where("settled = ?", true).Count(&settled).Error)
	assert.Zero(t, settled)
	bal, err := w.GetBalance(ctx, wallet.ActorMember, m)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
}

func TestSettleIntegrityErrors(t *testing.T) {
	proc, gdb, w := setup(t)
	ctx := context.Background()

	_, err := proc.Settle(ctx, periodID, draw.Result{1, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	require.ErrorIs(t, err, draw.ErrMalformedResult)

	m := member(t, gdb, 0)
	id := placeBet(t, gdb, m, bet.Selection{Category: bet.CategoryNumber, RankA: 1, Number: 8}, 100, "9.59")
	// a win already on the ledger for a bet still marked unsettled
	require.NoError(t, w.Credit(ctx, nil, &wallet.TransactionRecord{
		ActorType: wallet.ActorMember, ActorID: m, Category: wallet.CategoryGameWin,
		Amount: decimal.NewFromInt(959), BetID: id, PeriodID: periodID,
	}))
	_, err = proc.Settle(ctx, periodID, result)
	require.ErrorIs(t, err, ErrDuplicateSettlement)

	require.NoError(t, gdb.Model(&bet.Bet{}).Where("id = ?", id).Update("rank_a", 0).Error)
	_, err = proc.Settle(ctx, periodID, result)
	require.ErrorIs(t, err, ErrCorruptBet)
}
