package period

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPeriodNotFound = errors.New("period not found")

const clockStateID = 1

type PeriodRepository interface {
	Get(ctx context.Context, id string) (*Period, error)
	Latest(ctx context.Context) (*Period, error)
	Recent(ctx context.Context, limit int) ([]Period, error)
	LoadState(ctx context.Context) (*ClockState, error)
	// Commit writes the given periods and the clock state in one transaction,
	// first dropping removeID if it is still an untouched waiting period.
	Commit(ctx context.Context, state *ClockState, removeID string, periods ...*Period) error
}

type PeriodRepositoryImpl struct {
	db *gorm.DB
}

func NewPeriodRepositoryImpl(db *gorm.DB) PeriodRepository {
	return &PeriodRepositoryImpl{db: db}
}

func (r *PeriodRepositoryImpl) Get(ctx context.Context, id string) (*Period, error) {
	var p Period
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Latest returns the most recently created period, or nil when there is none.
func (r *PeriodRepositoryImpl) Latest(ctx context.Context) (*Period, error) {
	var p Period
	err := r.db.WithContext(ctx).Order("game_day DESC, seq DESC").First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PeriodRepositoryImpl) Recent(ctx context.Context, limit int) ([]Period, error) {
	var out []Period
	err := r.db.WithContext(ctx).Order("game_day DESC, seq DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *PeriodRepositoryImpl) LoadState(ctx context.Context) (*ClockState, error) {
	var s ClockState
	err := r.db.WithContext(ctx).Where("id = ?", clockStateID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *PeriodRepositoryImpl) Commit(ctx context.Context, state *ClockState, removeID string, periods ...*Period) error {
	return r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if removeID != "" {
			if err := dbtx.Where("id = ? AND status = ?", removeID, StatusWaiting).Delete(&Period{}).Error; err != nil {
				return err
			}
		}
		for _, p := range periods {
			if err := dbtx.Clauses(clause.OnConflict{UpdateAll: true}).Create(p).Error; err != nil {
				return err
			}
		}
		state.ID = clockStateID
		return dbtx.Clauses(clause.OnConflict{UpdateAll: true}).Create(state).Error
	})
}

// LoadForBetting reads a period inside a bet placement transaction, holding a share lock so
// the clock cannot close betting until the placement commits.
func LoadForBetting(ctx context.Context, dbtx *gorm.DB, id string) (*Period, error) {
	var p Period
	err := dbtx.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}).Where("id = ?", id).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		return nil, err
	}
	return &p, nil
}
