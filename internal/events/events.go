package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"lottery_service/internal/period"
)

const (
	TypeStatus = "period.status" // clock transition
	TypeResult = "period.result" // draw persisted and period settled
)

// PeriodEvent is the payload carried on the period_events topic and the redis channel.
type PeriodEvent struct {
	Type             string          `json:"type"`
	PeriodID         string          `json:"period_id"`
	Status           string          `json:"status"`
	Deadline         *time.Time      `json:"deadline,omitempty"`
	RemainingSeconds int             `json:"remaining_seconds"`
	NextPeriodID     string          `json:"next_period_id,omitempty"`
	Result           datatypes.JSON  `json:"result,omitempty"`
	Controlled       bool            `json:"controlled,omitempty"`
	Bets             int             `json:"bets,omitempty"`
	Winners          int             `json:"winners,omitempty"`
	Stake            decimal.Decimal `json:"stake"`
	Payout           decimal.Decimal `json:"payout"`
	Rebates          decimal.Decimal `json:"rebates"`
	At               time.Time       `json:"at"`
}

func FromSnapshot(s period.Snapshot) PeriodEvent {
	e := PeriodEvent{
		Type:             TypeStatus,
		PeriodID:         s.PeriodID,
		Status:           s.Status,
		RemainingSeconds: s.RemainingSeconds,
		NextPeriodID:     s.NextPeriodID,
		At:               s.At,
	}
	if !s.Deadline.IsZero() {
		d := s.Deadline
		e.Deadline = &d
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e PeriodEvent) error
}

// Fanout publishes to every sink and reports all failures together.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e PeriodEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, PeriodEvent) error { return nil }
