package bet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"lottery_service/internal/shared/metrics"
	"lottery_service/internal/wallet"
)

type Service struct {
	repo    BetRepository
	log     *zap.Logger
	metrics *metrics.Engine
	now     func() time.Time
}

func NewService(repo BetRepository, log *zap.Logger, m *metrics.Engine) *Service {
	return &Service{repo: repo, log: log, metrics: m, now: time.Now}
}

// Place validates the selection, then debits and records the bet atomically. Concurrent
// placements by the same member serialise on the member's balance row; optimistic-lock
// conflicts are retried.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (*PlaceResponse, error) {
	sel, err := ParseSelection(req.BetType, req.Value, req.Position)
	if err != nil {
		s.reject("invalid_selection")
		return nil, err
	}
	if err := LimitFor(sel).Check(req.Amount, decimal.Zero); err != nil {
		s.reject("limit")
		return nil, err
	}

	var b *Bet
	var rec *wallet.TransactionRecord
	err = wallet.RetryOnConflict(ctx, func() error {
		b = &Bet{
			ID:        uuid.New().String(),
			PeriodID:  req.PeriodID,
			MemberID:  req.MemberID,
			Selection: sel,
			Stake:     req.Amount,
		}
		rec, err = s.repo.Place(ctx, b, s.now())
		return err
	})
	if err != nil {
		s.reject(reason(err))
		return nil, err
	}

	s.metrics.BetsPlaced.Inc()
	s.log.Debug("bet placed",
		zap.String("bet_id", b.ID),
		zap.String("period_id", b.PeriodID),
		zap.String("member_id", b.MemberID),
		zap.Stringer("selection", b.Selection),
		zap.String("stake", b.Stake.String()),
	)
	return &PlaceResponse{BetID: b.ID, PeriodID: b.PeriodID, Odds: b.Odds, Balance: rec.BalanceAfter}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Bet, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPeriod(ctx context.Context, periodID string) ([]Bet, error) {
	return s.repo.ListByPeriod(ctx, periodID)
}

// ListByMember returns the member's most recent bets, newest first.
func (s *Service) ListByMember(ctx context.Context, memberID string, limit int) ([]Bet, error) {
	return s.repo.ListByMember(ctx, memberID, limit)
}

func (s *Service) reject(r string) {
	s.metrics.BetsRejected.WithLabelValues(r).Inc()
}

func reason(err error) string {
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrBettingClosed):
		return "closed"
	case errors.Is(err, ErrLimitExceeded):
		return "limit"
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	}
	return "error"
}
