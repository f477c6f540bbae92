package ws

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de notificações e repassa cada
// mensagem válida ao hub até o contexto ser cancelado
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				var n events.BettingNotification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil || n.Kind == "" {
					log.Warn("ws subscriber dropped message", zap.Error(err))
					continue
				}
				hub.Broadcast([]byte(msg.Payload))
			}
		}
	}()
}

// RedisSnapshot lê o snapshot gravado pelo betting-service
func RedisSnapshot(r *redis.Client, key string) SnapshotFunc {
	return func(ctx context.Context) ([]byte, error) {
		b, err := r.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	}
}
