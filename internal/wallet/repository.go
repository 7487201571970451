package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotFound   = errors.New("account not found")
	ErrOptimisticLock    = errors.New("optimistic lock error")
	ErrUnknownActor      = errors.New("unknown actor type")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// WalletRepository mutates member and agent balances. Credit and Debit run inside the
// caller's transaction (dbtx) so that the balance change, its ledger line and whatever
// domain row triggered them commit or roll back together. A nil dbtx opens a new one.
type WalletRepository interface {
	GetBalance(ctx context.Context, actorType string, actorID string) (decimal.Decimal, error)
	FindEntry(ctx context.Context, dbtx *gorm.DB, category string, betID string, actorID string) (*TransactionRecord, error)
	ListByBet(ctx context.Context, betID string) ([]TransactionRecord, error)
	ListByPeriod(ctx context.Context, periodID string, category string) ([]TransactionRecord, error)
	Credit(ctx context.Context, dbtx *gorm.DB, rec *TransactionRecord) error
	Debit(ctx context.Context, dbtx *gorm.DB, rec *TransactionRecord) error
}

type WalletRepositoryImpl struct {
	db *gorm.DB
}

func NewWalletRepositoryImpl(db *gorm.DB) WalletRepository {
	return &WalletRepositoryImpl{db: db}
}

type account struct {
	Balance decimal.Decimal `gorm:"column:balance"`
	Version int             `gorm:"column:version"`
}

func tableFor(actorType string) (string, error) {
	switch actorType {
	case ActorMember:
		return "members", nil
	case ActorAgent:
		return "agents", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActor, actorType)
}

func (r *WalletRepositoryImpl) GetBalance(ctx context.Context, actorType string, actorID string) (decimal.Decimal, error) {
	table, err := tableFor(actorType)
	if err != nil {
		return decimal.Zero, err
	}
	var acc account
	err = r.db.WithContext(ctx).Table(table).Select("balance, version").Where("id = ?", actorID).Take(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (r *WalletRepositoryImpl) FindEntry(ctx context.Context, dbtx *gorm.DB, category string, betID string, actorID string) (*TransactionRecord, error) {
	if dbtx == nil {
		dbtx = r.db
	}
	var t TransactionRecord
	err := dbtx.WithContext(ctx).Where("category = ? AND bet_id = ? AND actor_id = ?", category, betID, actorID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *WalletRepositoryImpl) ListByBet(ctx context.Context, betID string) ([]TransactionRecord, error) {
	var out []TransactionRecord
	err := r.db.WithContext(ctx).Where("bet_id = ?", betID).Order("created_at, transaction_id").Find(&out).Error
	return out, err
}

func (r *WalletRepositoryImpl) ListByPeriod(ctx context.Context, periodID string, category string) ([]TransactionRecord, error) {
	var out []TransactionRecord
	err := r.db.WithContext(ctx).Where("period_id = ? AND category = ?", periodID, category).Order("created_at, transaction_id").Find(&out).Error
	return out, err
}

func (r *WalletRepositoryImpl) Debit(ctx context.Context, dbtx *gorm.DB, rec *TransactionRecord) error {
	return r.within(ctx, dbtx, func(dbtx *gorm.DB) error {
		return apply(dbtx, rec, rec.Amount.Neg())
	})
}

func (r *WalletRepositoryImpl) Credit(ctx context.Context, dbtx *gorm.DB, rec *TransactionRecord) error {
	return r.within(ctx, dbtx, func(dbtx *gorm.DB) error {
		return apply(dbtx, rec, rec.Amount)
	})
}

func (r *WalletRepositoryImpl) within(ctx context.Context, dbtx *gorm.DB, fn func(dbtx *gorm.DB) error) error {
	if dbtx != nil {
		return fn(dbtx.WithContext(ctx))
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

func apply(dbtx *gorm.DB, rec *TransactionRecord, delta decimal.Decimal) error {
	if !rec.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	table, err := tableFor(rec.ActorType)
	if err != nil {
		return err
	}

	var acc account
	err = dbtx.Table(table).Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("balance, version").Where("id = ?", rec.ActorID).Take(&acc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	newBalance := acc.Balance.Add(delta)
	if newBalance.IsNegative() {
		return ErrInsufficientFunds
	}

	result := dbtx.Table(table).Where("id = ? AND version = ?", rec.ActorID, acc.Version).
		Updates(map[string]interface{}{
			"balance":    newBalance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	now := time.Now()
	rec.TransactionID = uuid.New().String()
	rec.BalanceBefore = acc.Balance
	rec.BalanceAfter = newBalance
	rec.Status = StatusCompleted
	rec.CreatedAt = now
	rec.CompletedAt = &now

	return dbtx.Create(rec).Error
}
