package draw

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrResultNotFound = errors.New("draw result not found")
	ErrResultExists   = errors.New("draw result already persisted")
)

type ResultRepository interface {
	Get(ctx context.Context, periodID string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
}

type ResultRepositoryImpl struct {
	db *gorm.DB
}

func NewResultRepositoryImpl(db *gorm.DB) ResultRepository {
	return &ResultRepositoryImpl{db: db}
}

func (r *ResultRepositoryImpl) Get(ctx context.Context, periodID string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).Where("period_id = ?", periodID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResultNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Save inserts the record once. A second save for the same period returns ErrResultExists
// and leaves the first result untouched.
func (r *ResultRepositoryImpl) Save(ctx context.Context, rec *Record) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrResultExists
	}
	return nil
}
