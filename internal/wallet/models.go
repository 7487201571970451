package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ActorMember = "member"
	ActorAgent  = "agent"
)

const (
	CategoryGameBet = "game_bet"
	CategoryGameWin = "game_win"
	CategoryRebate  = "rebate"
)

const StatusCompleted = "completed"

// TransactionRecord is an immutable ledger line written in the same database transaction as
// the balance change it describes. (category, bet_id, actor_id) is unique so a bet can never
// be debited, paid or rebated twice to the same account.
type TransactionRecord struct {
	TransactionID string          `gorm:"column:transaction_id;primaryKey;type:varchar(36)"`
	ActorType     string          `gorm:"column:actor_type;type:varchar(10);not null"` // "member", "agent"
	ActorID       string          `gorm:"column:actor_id;type:varchar(36);not null;index;uniqueIndex:idx_ledger_entry,priority:3"`
	Category      string          `gorm:"column:category;type:varchar(20);not null;uniqueIndex:idx_ledger_entry,priority:1"` // "game_bet", "game_win", "rebate"
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(24,6);not null"`
	BalanceBefore decimal.Decimal `gorm:"column:balance_before;type:numeric(24,6);not null"`
	BalanceAfter  decimal.Decimal `gorm:"column:balance_after;type:numeric(24,6);not null"`
	BetID         string          `gorm:"column:bet_id;type:varchar(36);not null;uniqueIndex:idx_ledger_entry,priority:2"`
	PeriodID      string          `gorm:"column:period_id;type:varchar(16);not null;index"`
	Status        string          `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null"`
	CompletedAt   *time.Time      `gorm:"column:completed_at"`
}

func (TransactionRecord) TableName() string { return "transaction_records" }

type BalanceResponse struct {
	ActorType string          `json:"actor_type"`
	ActorID   string          `json:"actor_id"`
	Balance   decimal.Decimal `json:"balance"`
}
