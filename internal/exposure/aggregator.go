package exposure

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"lottery_service/internal/bet"
)

const DefaultBatchSize = 1000

type Aggregator struct {
	db        *gorm.DB
	batchSize int
}

func NewAggregator(db *gorm.DB, batchSize int) *Aggregator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Aggregator{db: db, batchSize: batchSize}
}

type groupKey struct {
	member string
	sel    bet.Selection
}

type group struct {
	count  int
	stake  float64
	payout float64
}

// Aggregate reads the period's unsettled bets once, in batches, and builds its Book.
// Identical selections by the same member are folded together before being spread
// over the outcome grid.
func (a *Aggregator) Aggregate(ctx context.Context, periodID string) (*Book, error) {
	groups := make(map[groupKey]*group)

	var batch []bet.Bet
	res := a.db.WithContext(ctx).
		Where("period_id = ? AND settled = ?", periodID, false).
		FindInBatches(&batch, a.batchSize, func(tx *gorm.DB, n int) error {
			for _, b := range batch {
				k := groupKey{member: b.MemberID, sel: b.Selection}
				g, ok := groups[k]
				if !ok {
					g = &group{}
					groups[k] = g
				}
				stake, _ := b.Stake.Float64()
				payout, _ := b.Stake.Mul(b.Odds).Float64()
				g.count++
				g.stake += stake
				g.payout += payout
			}
			return nil
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to aggregate exposure for %s: %w", periodID, res.Error)
	}

	book := NewBook(periodID)
	for k, g := range groups {
		e, ok := book.ByMember[k.member]
		if !ok {
			e = New()
			book.ByMember[k.member] = e
		}
		e.Add(k.sel, g.count, g.stake, g.payout)
		book.Total.Add(k.sel, g.count, g.stake, g.payout)
	}
	return book, nil
}
