package judging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	"github.com/radieske/live-betting-engine/internal/betting-service/match"
	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// Betting é o que o consumidor usa do motor
type Betting interface {
	Current() (*match.Match, engine.Event, bool)
	Start(ctx context.Context, ev engine.Event, timeout time.Duration) error
	Cancel(ctx context.Context) error
	End(ctx context.Context, winner string) (match.Settlement, error)
}

// Consumer traduz eventos de julgamento em operações do motor:
// started abre a rodada, ended liquida pelo placar ou cancela no empate
type Consumer struct {
	Log     *zap.Logger
	Reader  *kafka.Reader
	Betting Betting

	OnConsumed func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run lê o tópico até o contexto ser cancelado
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.Log.Warn("kafka read failed", zap.Error(err))
			c.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if c.OnConsumed != nil {
			c.OnConsumed()
		}

		if err := c.Handle(ctx, m.Value); err != nil {
			c.Log.Warn("judging event not applied",
				zap.ByteString("key", m.Key),
				zap.Error(err),
			)
		}
	}
}

// Handle aplica uma mensagem já lida do tópico
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var ev events.JudgingEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		c.fail("decode")
		return fmt.Errorf("decode judging event: %w", err)
	}

	switch ev.Type {
	case events.JudgingStarted:
		return c.started(ctx, ev)
	case events.JudgingEnded:
		return c.ended(ctx, ev)
	default:
		c.fail("type")
		return fmt.Errorf("unknown judging event type %q", ev.Type)
	}
}

func (c *Consumer) started(ctx context.Context, ev events.JudgingEvent) error {
	teams := ev.TeamIDs
	if len(teams) == 0 {
		teams = []string{ev.Team1, ev.Team2}
	}

	if err := c.Betting.Start(ctx, engine.Event{ID: ev.EventID, TeamIDs: teams}, 0); err != nil {
		c.fail("start")
		return fmt.Errorf("start betting for %s: %w", ev.EventID, err)
	}
	return nil
}

func (c *Consumer) ended(ctx context.Context, ev events.JudgingEvent) error {
	m, current, ok := c.Betting.Current()
	if !ok {
		c.Log.Debug("judging ended without active match", zap.String("event_id", ev.EventID))
		return nil
	}
	// reentrega do Kafka ou evento de uma rodada anterior
	if ev.EventID != current.ID {
		c.Log.Info("ignoring judging ended for another event",
			zap.String("event_id", ev.EventID),
			zap.String("active_event_id", current.ID),
		)
		return nil
	}

	if ev.Score1 == ev.Score2 {
		if err := c.Betting.Cancel(ctx); err != nil {
			c.fail("cancel")
			return fmt.Errorf("cancel betting on tie: %w", err)
		}
		return nil
	}

	team1, team2 := ev.Team1, ev.Team2
	if team1 == "" && team2 == "" && len(ev.TeamIDs) == 2 {
		team1, team2 = ev.TeamIDs[0], ev.TeamIDs[1]
	}
	winner := team2
	if ev.Score1 > ev.Score2 {
		winner = team1
	}
	if winner == "" {
		c.fail("decode")
		return fmt.Errorf("judging ended for %s without teams", ev.EventID)
	}
	if !m.HasTarget(winner) {
		c.fail("winner")
		return fmt.Errorf("end betting for %s: winner %q: %w", ev.EventID, winner, match.ErrInvalidTarget)
	}

	// nesse meio tempo outra via pode ter fechado a rodada
	if _, err := c.Betting.End(ctx, winner); err != nil {
		if errors.Is(err, engine.ErrNoMatch) {
			return nil
		}
		c.fail("end")
		return fmt.Errorf("end betting for %s: %w", ev.EventID, err)
	}
	return nil
}

func (c *Consumer) fail(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}
