package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MaxRetries = 3
	RetryDelay = 10 * time.Millisecond
)

type Service struct {
	repo WalletRepository
}

func NewService(repo WalletRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, actorType string, actorID string) (*BalanceResponse, error) {
	bal, err := s.repo.GetBalance(ctx, actorType, actorID)
	if err != nil {
		return nil, err
	}
	return &BalanceResponse{ActorType: actorType, ActorID: actorID, Balance: bal}, nil
}

func (s *Service) Ledger(ctx context.Context, betID string) ([]TransactionRecord, error) {
	return s.repo.ListByBet(ctx, betID)
}

// RetryOnConflict re-runs fn while it fails with ErrOptimisticLock, up to MaxRetries times.
// fn must open its own database transaction so every attempt starts from fresh state.
func RetryOnConflict(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < MaxRetries; i++ {
		err = fn()
		if !errors.Is(err, ErrOptimisticLock) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(RetryDelay):
		}
	}
	return err
}

// Sum adds up ledger amounts.
func Sum(recs []TransactionRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Amount)
	}
	return total
}
