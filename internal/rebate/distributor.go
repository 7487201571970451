package rebate

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lottery_service/internal/agent"
	"lottery_service/internal/bet"
	"lottery_service/internal/shared/metrics"
	"lottery_service/internal/wallet"
)

// Share is one tier's cut of a stake.
type Share struct {
	AgentID string          `json:"agent_id"`
	Rate    decimal.Decimal `json:"rate"`
	Ceded   decimal.Decimal `json:"ceded"`
	Amount  decimal.Decimal `json:"amount"`
}

type Summary struct {
	PeriodID string          `json:"period_id"`
	Bets     int             `json:"bets"`
	Records  int             `json:"records"`
	Total    decimal.Decimal `json:"total"`
}

// Shares splits stake along chain (nearest agent first). Each tier earns stake times the
// difference between its own rate and the rate it ceded to the tier below, which is zero for
// the member's direct agent. The shares telescope to stake times the root's rate.
func Shares(stake decimal.Decimal, chain []agent.Agent) ([]Share, error) {
	shares := make([]Share, 0, len(chain))
	ceded := decimal.Zero
	for i := range chain {
		a := &chain[i]
		if ceded.GreaterThan(a.RebatePercentage) {
			return nil, fmt.Errorf("%w: agent %s rate %s is below its child's %s",
				agent.ErrRebateInvariant, a.ID, a.RebatePercentage, ceded)
		}
		shares = append(shares, Share{
			AgentID: a.ID,
			Rate:    a.RebatePercentage,
			Ceded:   ceded,
			Amount:  agent.Margin(stake, a.RebatePercentage, ceded),
		})
		ceded = a.RebatePercentage
	}
	return shares, nil
}

type Distributor struct {
	db      *gorm.DB
	wallet  wallet.WalletRepository
	log     *zap.Logger
	metrics *metrics.Engine
}

func NewDistributor(db *gorm.DB, w wallet.WalletRepository, log *zap.Logger, m *metrics.Engine) *Distributor {
	return &Distributor{db: db, wallet: w, log: log, metrics: m}
}

// DistributePeriod credits the rebate cascade of every settled, not yet rebated bet of the
// period in one transaction. Each (bet, agent) pair is credited at most once; an invariant
// violation anywhere in a chain aborts the whole period.
func (d *Distributor) DistributePeriod(ctx context.Context, periodID string) (*Summary, error) {
	var sum *Summary
	err := wallet.RetryOnConflict(ctx, func() error {
		sum = &Summary{PeriodID: periodID, Total: decimal.Zero}
		return d.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
			var bets []bet.Bet
			err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("period_id = ? AND settled = ? AND rebated = ?", periodID, true, false).
				Order("created_at, id").
				Find(&bets).Error
			if err != nil {
				return err
			}

			chains := make(map[string][]agent.Agent)
			for i := range bets {
				b := &bets[i]
				chain, err := d.chainFor(ctx, dbtx, b.MemberID, chains)
				if err != nil {
					return fmt.Errorf("bet %s: %w", b.ID, err)
				}
				n, total, err := d.credit(ctx, dbtx, b, chain)
				if err != nil {
					return fmt.Errorf("bet %s: %w", b.ID, err)
				}
				res := dbtx.Model(&bet.Bet{}).Where("id = ? AND rebated = ?", b.ID, false).Update("rebated", true)
				if res.Error != nil {
					return res.Error
				}
				sum.Bets++
				sum.Records += n
				sum.Total = sum.Total.Add(total)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to distribute rebates for period %s: %w", periodID, err)
	}

	d.metrics.RebateRecords.Add(float64(sum.Records))
	d.log.Info("rebates distributed",
		zap.String("period_id", periodID),
		zap.Int("bets", sum.Bets),
		zap.Int("records", sum.Records),
		zap.String("total", sum.Total.String()),
	)
	return sum, nil
}

// chainFor caches chains by member; a member whose direct agent is gone has no chain.
func (d *Distributor) chainFor(ctx context.Context, dbtx *gorm.DB, memberID string, cache map[string][]agent.Agent) ([]agent.Agent, error) {
	if chain, ok := cache[memberID]; ok {
		return chain, nil
	}
	var m agent.Member
	if err := dbtx.Where("id = ?", memberID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, agent.ErrMemberNotFound
		}
		return nil, err
	}
	chain, err := agent.LoadChain(ctx, dbtx, m.AgentID)
	if errors.Is(err, agent.ErrAgentNotFound) {
		d.log.Warn("member has no agent; no rebate paid", zap.String("member_id", memberID), zap.String("agent_id", m.AgentID))
		chain, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	cache[memberID] = chain
	return chain, nil
}

func (d *Distributor) credit(ctx context.Context, dbtx *gorm.DB, b *bet.Bet, chain []agent.Agent) (int, decimal.Decimal, error) {
	shares, err := Shares(b.Stake, chain)
	if err != nil {
		return 0, decimal.Zero, err
	}

	written := 0
	total := decimal.Zero
	for _, s := range shares {
		if !s.Amount.IsPositive() {
			continue
		}
		existing, err := d.wallet.FindEntry(ctx, dbtx, wallet.CategoryRebate, b.ID, s.AgentID)
		if err != nil {
			return 0, decimal.Zero, err
		}
		if existing != nil {
			continue
		}
		rec := &wallet.TransactionRecord{
			ActorType: wallet.ActorAgent,
			ActorID:   s.AgentID,
			Category:  wallet.CategoryRebate,
			Amount:    s.Amount,
			BetID:     b.ID,
			PeriodID:  b.PeriodID,
		}
		if err := d.wallet.Credit(ctx, dbtx, rec); err != nil {
			return 0, decimal.Zero, fmt.Errorf("failed to credit agent %s: %w", s.AgentID, err)
		}
		written++
		total = total.Add(s.Amount)
	}
	return written, total, nil
}
