package draw

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Record is the persisted draw for a period. One row per period; never updated.
type Record struct {
	PeriodID   string         `gorm:"column:period_id;primaryKey;type:varchar(16)"`
	Positions  datatypes.JSON `gorm:"column:positions;not null"`
	Controlled bool           `gorm:"column:controlled;not null;default:false"`
	PolicyMode string         `gorm:"column:policy_mode;type:varchar(20);not null"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null"`
}

func (Record) TableName() string { return "draw_results" }

func (rec *Record) Result() (Result, error) {
	var values []int
	if err := json.Unmarshal(rec.Positions, &values); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedResult, err)
	}
	return FromSlice(values)
}

func NewRecord(periodID string, r Result, controlled bool, mode string) (*Record, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &Record{
		PeriodID:   periodID,
		Positions:  datatypes.JSON(b),
		Controlled: controlled,
		PolicyMode: mode,
		CreatedAt:  time.Now(),
	}, nil
}
