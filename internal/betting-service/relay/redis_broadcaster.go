package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// RedisBroadcaster publica cada notificação no canal dos espectadores e
// guarda a última como snapshot para quem conectar depois
type RedisBroadcaster struct {
	r           *redis.Client
	channel     string
	snapshotKey string
	ttl         time.Duration
}

func NewRedisBroadcaster(r *redis.Client, channel, snapshotKey string, ttl time.Duration) *RedisBroadcaster {
	return &RedisBroadcaster{r: r, channel: channel, snapshotKey: snapshotKey, ttl: ttl}
}

func (b *RedisBroadcaster) Send(ctx context.Context, n events.BettingNotification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}

	// snapshot e publish no mesmo round-trip
	pipe := b.r.TxPipeline()
	pipe.Set(ctx, b.snapshotKey, payload, b.ttl)
	pipe.Publish(ctx, b.channel, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("broadcast %s notification: %w", n.Kind, err)
	}
	return nil
}
