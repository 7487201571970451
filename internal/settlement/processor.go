package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lottery_service/internal/bet"
	"lottery_service/internal/draw"
	"lottery_service/internal/shared/metrics"
	"lottery_service/internal/wallet"
)

var (
	ErrDuplicateSettlement = errors.New("duplicate settlement")
	ErrCorruptBet          = errors.New("stored bet selection is invalid")
)

type Summary struct {
	PeriodID       string          `json:"period_id"`
	Bets           int             `json:"bets"`
	Winners        int             `json:"winners"`
	Stake          decimal.Decimal `json:"stake"`
	Payout         decimal.Decimal `json:"payout"`
	AlreadySettled bool            `json:"already_settled"`
}

type Processor struct {
	db      *gorm.DB
	wallet  wallet.WalletRepository
	log     *zap.Logger
	metrics *metrics.Engine
}

func NewProcessor(db *gorm.DB, w wallet.WalletRepository, log *zap.Logger, m *metrics.Engine) *Processor {
	return &Processor{db: db, wallet: w, log: log, metrics: m}
}

// Settle evaluates every unsettled bet of the period against result in one transaction.
// Winners are credited with a game_win ledger line; every bet flips settled false→true.
// Any failure rolls the whole period back, so a retry starts clean, and a period with
// nothing left to settle is a no-op.
func (p *Processor) Settle(ctx context.Context, periodID string, result draw.Result) (*Summary, error) {
	if err := result.Validate(); err != nil {
		return nil, err
	}

	var sum *Summary
	err := wallet.RetryOnConflict(ctx, func() error {
		sum = &Summary{PeriodID: periodID, Stake: decimal.Zero, Payout: decimal.Zero}
		return p.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
			var bets []bet.Bet
			err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("period_id = ? AND settled = ?", periodID, false).
				Order("created_at, id").
				Find(&bets).Error
			if err != nil {
				return err
			}
			if len(bets) == 0 {
				sum.AlreadySettled = true
				return nil
			}

			now := time.Now()
			for i := range bets {
				if err := p.settleOne(ctx, dbtx, &bets[i], result, now); err != nil {
					return err
				}
				b := &bets[i]
				sum.Bets++
				sum.Stake = sum.Stake.Add(b.Stake)
				if b.Won {
					sum.Winners++
					sum.Payout = sum.Payout.Add(b.Payout)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to settle period %s: %w", periodID, err)
	}

	if sum.AlreadySettled {
		p.log.Info("settlement skipped; nothing unsettled", zap.String("period_id", periodID))
		return sum, nil
	}
	p.metrics.BetsSettled.Add(float64(sum.Bets))
	p.log.Info("period settled",
		zap.String("period_id", periodID),
		zap.Int("bets", sum.Bets),
		zap.Int("winners", sum.Winners),
		zap.String("stake", sum.Stake.String()),
		zap.String("payout", sum.Payout.String()),
	)
	return sum, nil
}

func (p *Processor) settleOne(ctx context.Context, dbtx *gorm.DB, b *bet.Bet, result draw.Result, now time.Time) error {
	if err := b.Selection.Validate(); err != nil {
		return fmt.Errorf("%w: bet %s: %v", ErrCorruptBet, b.ID, err)
	}
	b.Won = b.Selection.Wins(result)
	b.Payout = bet.PayoutFor(b.Stake, b.Odds, b.Won)

	if b.Won {
		existing, err := p.wallet.FindEntry(ctx, dbtx, wallet.CategoryGameWin, b.ID, b.MemberID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: bet %s already paid by %s", ErrDuplicateSettlement, b.ID, existing.TransactionID)
		}
		rec := &wallet.TransactionRecord{
			ActorType: wallet.ActorMember,
			ActorID:   b.MemberID,
			Category:  wallet.CategoryGameWin,
			Amount:    b.Payout,
			BetID:     b.ID,
			PeriodID:  b.PeriodID,
		}
		if err := p.wallet.Credit(ctx, dbtx, rec); err != nil {
			return fmt.Errorf("failed to credit bet %s: %w", b.ID, err)
		}
	}

	res := dbtx.Model(&bet.Bet{}).Where("id = ? AND settled = ?", b.ID, false).
		Updates(map[string]interface{}{
			"settled":    true,
			"won":        b.Won,
			"payout":     b.Payout,
			"settled_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: bet %s", ErrDuplicateSettlement, b.ID)
	}
	b.Settled = true
	b.SettledAt = &now
	return nil
}
