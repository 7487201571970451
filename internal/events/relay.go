package events

import (
	"context"
	"time"

	"go.uber.org/zap"

	"lottery_service/internal/period"
)

const publishTimeout = 5 * time.Second

// Relay forwards clock snapshots to pub until ctx ends or the subscription closes.
// Publish failures are logged and dropped; the next transition carries full state.
func Relay(ctx context.Context, sub <-chan period.Snapshot, pub Publisher, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sub:
			if !ok {
				return
			}
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			if err := pub.Publish(pctx, FromSnapshot(s)); err != nil {
				log.Warn("period event not delivered", zap.String("period_id", s.PeriodID), zap.String("status", s.Status), zap.Error(err))
			}
			cancel()
		}
	}
}
