package bet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"lottery_service/internal/agent"
	"lottery_service/internal/period"
	"lottery_service/internal/wallet"
)

var (
	ErrBetNotFound   = errors.New("bet not found")
	ErrBettingClosed = errors.New("betting is closed for this period")
)

type BetRepository interface {
	Get(ctx context.Context, id string) (*Bet, error)
	ListByPeriod(ctx context.Context, periodID string) ([]Bet, error)
	ListByMember(ctx context.Context, memberID string, limit int) ([]Bet, error)
	// Place debits the stake and inserts b in one transaction. b.Odds and b.Market are
	// filled from the member's market inside the transaction.
	Place(ctx context.Context, b *Bet, now time.Time) (*wallet.TransactionRecord, error)
}

type BetRepositoryImpl struct {
	db     *gorm.DB
	wallet wallet.WalletRepository
}

func NewBetRepositoryImpl(db *gorm.DB, w wallet.WalletRepository) BetRepository {
	return &BetRepositoryImpl{db: db, wallet: w}
}

func (r *BetRepositoryImpl) Get(ctx context.Context, id string) (*Bet, error) {
	var b Bet
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBetNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BetRepositoryImpl) ListByPeriod(ctx context.Context, periodID string) ([]Bet, error) {
	var out []Bet
	err := r.db.WithContext(ctx).Where("period_id = ?", periodID).Order("created_at, id").Find(&out).Error
	return out, err
}

func (r *BetRepositoryImpl) ListByMember(ctx context.Context, memberID string, limit int) ([]Bet, error) {
	var out []Bet
	err := r.db.WithContext(ctx).Where("member_id = ?", memberID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *BetRepositoryImpl) Place(ctx context.Context, b *Bet, now time.Time) (*wallet.TransactionRecord, error) {
	var rec *wallet.TransactionRecord

	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		p, err := period.LoadForBetting(ctx, dbtx, b.PeriodID)
		if err != nil {
			if errors.Is(err, period.ErrPeriodNotFound) {
				return ErrBettingClosed
			}
			return err
		}
		if p.Status != period.StatusBetting || !now.Before(p.Deadline) {
			return fmt.Errorf("%w: period %s is %s", ErrBettingClosed, p.ID, p.Status)
		}

		var m agent.Member
		if err := dbtx.Where("id = ?", b.MemberID).First(&m).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return agent.ErrMemberNotFound
			}
			return err
		}
		marketCode := agent.DefaultMarket
		var a agent.Agent
		if err := dbtx.Where("id = ?", m.AgentID).First(&a).Error; err == nil {
			marketCode = a.Market
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		market, err := agent.LookupMarket(marketCode)
		if err != nil {
			return err
		}
		odds, err := QuoteOdds(market, b.Selection)
		if err != nil {
			return err
		}
		b.Market = market.Code
		b.Odds = odds

		// the debit row-locks the member, so the limit total below cannot race another placement
		rec = &wallet.TransactionRecord{
			ActorType: wallet.ActorMember,
			ActorID:   b.MemberID,
			Category:  wallet.CategoryGameBet,
			Amount:    b.Stake,
			BetID:     b.ID,
			PeriodID:  b.PeriodID,
		}
		if err := r.wallet.Debit(ctx, dbtx, rec); err != nil {
			return err
		}

		limit := LimitFor(b.Selection)
		staked, err := stakedInGroup(dbtx, b, limit)
		if err != nil {
			return err
		}
		if err := limit.Check(b.Stake, staked); err != nil {
			return err
		}

		b.CreatedAt = now
		return dbtx.Create(b).Error
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func stakedInGroup(dbtx *gorm.DB, b *Bet, limit Limit) (decimal.Decimal, error) {
	q := dbtx.Model(&Bet{}).Where("period_id = ? AND member_id = ? AND category = ?", b.PeriodID, b.MemberID, b.Category)
	if sides := limit.sides(); sides != nil {
		q = q.Where("side IN ?", sides)
	}
	var stakes []decimal.Decimal
	if err := q.Pluck("stake", &stakes).Error; err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, stakes...), nil
}
