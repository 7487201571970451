package wallet_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lottery_service/internal/agent"
	"lottery_service/internal/shared/db/dbtest"
	"lottery_service/internal/wallet"
)

func setUpMember(t *testing.T, balance decimal.Decimal) (*gorm.DB, *agent.Member) {
	gdb := dbtest.New(t, &agent.Agent{}, &agent.Member{}, &wallet.TransactionRecord{})
	now := time.Now()
	m := &agent.Member{
		ID:        uuid.NewString(),
		AgentID:   uuid.NewString(),
		Username:  "player",
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, gdb.Create(m).Error)
	return gdb, m
}

func TestConcurrentDebits(t *testing.T) {
	gdb, m := setUpMember(t, decimal.NewFromInt(50))
	repo := wallet.NewWalletRepositoryImpl(gdb)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	failCount := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := wallet.RetryOnConflict(context.Background(), func() error {
				return repo.Debit(context.Background(), nil, &wallet.TransactionRecord{
					ActorType: wallet.ActorMember,
					ActorID:   m.ID,
					Category:  wallet.CategoryGameBet,
					Amount:    decimal.NewFromInt(10),
					BetID:     uuid.NewString(),
					PeriodID:  "20250717001",
				})
			})
			mu.Lock()
			if err != nil {
				assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
				failCount++
			} else {
				successCount++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Equal(t, 5, successCount, "successCount")
	require.Equal(t, 5, failCount, "failCount")

	bal, err := repo.GetBalance(context.Background(), wallet.ActorMember, m.ID)
	require.NoError(t, err)
	require.True(t, bal.IsZero(), "finalBalance %s", bal)
}

func TestCreditWritesLedger(t *testing.T) {
	gdb, m := setUpMember(t, decimal.NewFromInt(100))
	repo := wallet.NewWalletRepositoryImpl(gdb)
	ctx := context.Background()
	betID := uuid.NewString()

	rec := &wallet.TransactionRecord{
		ActorType: wallet.ActorMember,
		ActorID:   m.ID,
		Category:  wallet.CategoryGameWin,
		Amount:    decimal.RequireFromString("19.18"),
		BetID:     betID,
		PeriodID:  "20250717001",
	}
	require.NoError(t, repo.Credit(ctx, nil, rec))
	assert.True(t, rec.BalanceBefore.Equal(decimal.NewFromInt(100)))
	assert.True(t, rec.BalanceAfter.Equal(decimal.RequireFromString("119.18")))
	assert.Equal(t, wallet.StatusCompleted, rec.Status)

	found, err := repo.FindEntry(ctx, nil, wallet.CategoryGameWin, betID, m.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rec.TransactionID, found.TransactionID)

	missing, err := repo.FindEntry(ctx, nil, wallet.CategoryRebate, betID, m.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	entries, err := repo.ListByBet(ctx, betID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, wallet.Sum(entries).Equal(decimal.RequireFromString("19.18")))
}

func TestDuplicateLedgerEntryRollsBack(t *testing.T) {
	gdb, m := setUpMember(t, decimal.NewFromInt(100))
	repo := wallet.NewWalletRepositoryImpl(gdb)
	ctx := context.Background()
	betID := uuid.NewString()

	newRec := func() *wallet.TransactionRecord {
		return &wallet.TransactionRecord{
			ActorType: wallet.ActorMember, ActorID: m.ID, Category: wallet.CategoryGameWin,
			Amount: decimal.NewFromInt(5), BetID: betID, PeriodID: "20250717001",
		}
	}
	require.NoError(t, repo.Credit(ctx, nil, newRec()))
	require.Error(t, repo.Credit(ctx, nil, newRec()), "unique (category, bet, actor)")

	bal, err := repo.GetBalance(ctx, wallet.ActorMember, m.ID)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(105)), "second credit must roll back with its ledger line")
}

func TestDebitValidation(t *testing.T) {
	gdb, m := setUpMember(t, decimal.NewFromInt(1))
	repo := wallet.NewWalletRepositoryImpl(gdb)
	ctx := context.Background()

	err := repo.Debit(ctx, nil, &wallet.TransactionRecord{ActorType: wallet.ActorMember, ActorID: m.ID, Amount: decimal.Zero})
	require.ErrorIs(t, err, wallet.ErrInvalidAmount)

	err = repo.Debit(ctx, nil, &wallet.TransactionRecord{ActorType: "house", ActorID: m.ID, Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, wallet.ErrUnknownActor)

	err = repo.Debit(ctx, nil, &wallet.TransactionRecord{ActorType: wallet.ActorMember, ActorID: uuid.NewString(), Amount: decimal.NewFromInt(1)})
	require.ErrorIs(t, err, wallet.ErrAccountNotFound)

	_, err = repo.GetBalance(ctx, wallet.ActorAgent, uuid.NewString())
	require.ErrorIs(t, err, wallet.ErrAccountNotFound)
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := wallet.RetryOnConflict(context.Background(), func() error {
		calls++
		return wallet.ErrOptimisticLock
	})
	require.ErrorIs(t, err, wallet.ErrOptimisticLock)
	require.Equal(t, wallet.MaxRetries, calls)
}
