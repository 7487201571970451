package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"lottery_service/internal/shared/cache"
)

const (
	DefaultChannel = "period_state_broadcast"
	currentKey     = "current"
)

// RedisBroadcaster pushes every event to a pub/sub channel and keeps the latest status
// event under period:current so readers can rebuild the countdown from its deadline.
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
	state   *cache.RedisCache
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{
		r:       r,
		channel: channel,
		state:   cache.NewRedisCache(r, "period:", 24*time.Hour),
	}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, e PeriodEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if e.Type == TypeStatus {
		if err := b.state.SetJSON(ctx, currentKey, e); err != nil {
			return err
		}
	} else if err := b.state.SetJSON(ctx, "result:"+e.PeriodID, e); err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// Current returns the last cached status event, or false when none is cached.
func (b *RedisBroadcaster) Current(ctx context.Context) (*PeriodEvent, bool, error) {
	var e PeriodEvent
	ok, err := b.state.GetJSON(ctx, currentKey, &e)
	if err != nil || !ok {
		return nil, false, err
	}
	return &e, true, nil
}
