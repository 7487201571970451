package bet

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bet struct {
	ID        string `gorm:"column:id;primaryKey;type:varchar(36)"`
	PeriodID  string `gorm:"column:period_id;type:varchar(16);not null;index:idx_bets_period_settled,priority:1"`
	MemberID  string `gorm:"column:member_id;type:varchar(36);not null;index"`
	Selection `gorm:"embedded"`
	Market    string          `gorm:"column:market;type:varchar(4);not null"`
	Stake     decimal.Decimal `gorm:"column:stake;type:numeric(24,6);not null"`
	Odds      decimal.Decimal `gorm:"column:odds;type:numeric(10,3);not null"`
	Settled   bool            `gorm:"column:settled;not null;index:idx_bets_period_settled,priority:2"`
	Won       bool            `gorm:"column:won;not null"`
	Payout    decimal.Decimal `gorm:"column:payout;type:numeric(24,6);not null"`
	Rebated   bool            `gorm:"column:rebated;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;not null"`
	SettledAt *time.Time      `gorm:"column:settled_at"`
}

func (Bet) TableName() string { return "bets" }

// PayoutFor is stake × odds rounded to cents, or zero for a losing bet.
func PayoutFor(stake, odds decimal.Decimal, won bool) decimal.Decimal {
	if !won {
		return decimal.Zero
	}
	return stake.Mul(odds).Round(2)
}

type PlaceRequest struct {
	MemberID string          `json:"member_id" binding:"required"`
	PeriodID string          `json:"period_id" binding:"required"`
	BetType  string          `json:"bet_type" binding:"required"`
	Value    string          `json:"value" binding:"required"`
	Position int             `json:"position"`
	Amount   decimal.Decimal `json:"amount"`
}

type PlaceResponse struct {
	BetID    string          `json:"bet_id"`
	PeriodID string          `json:"period_id"`
	Odds     decimal.Decimal `json:"odds"`
	Balance  decimal.Decimal `json:"balance"`
}
