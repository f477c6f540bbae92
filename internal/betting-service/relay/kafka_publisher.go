package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// messageWriter é o pedaço do *kafka.Writer que o publisher usa
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica as notificações no tópico betting_notifications.
// A chave é o event_id, então uma rodada inteira cai na mesma partição e
// mantém a ordem de emissão.
type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
}

func NewKafkaPublisher(w *kafka.Writer, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, log: log}
}

func (p *KafkaPublisher) Send(ctx context.Context, n events.BettingNotification) error {
	value, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(n.EventID),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s notification: %w", n.Kind, err)
	}

	p.log.Debug("published betting notification",
		zap.String("kind", n.Kind),
		zap.String("event_id", n.EventID),
	)
	return nil
}
