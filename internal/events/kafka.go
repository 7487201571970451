package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"lottery_service/internal/shared/kafka"
)

type KafkaPublisher struct {
	writer kafka.MessageWriter
	log    *zap.Logger
}

func NewKafkaPublisher(w kafka.MessageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

// Publish keys messages by period so every event of one period lands on one partition.
func (p *KafkaPublisher) Publish(ctx context.Context, e PeriodEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := kafka.WriteJSON(ctx, p.writer, e.PeriodID, value); err != nil {
		p.log.Error("failed to publish period event", zap.String("period_id", e.PeriodID), zap.String("type", e.Type), zap.Error(err))
		return err
	}
	p.log.Debug("published period event", zap.String("period_id", e.PeriodID), zap.String("type", e.Type))
	return nil
}
