package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

// Sink recebe as notificações já convertidas para o contrato público
type Sink interface {
	Send(ctx context.Context, n events.BettingNotification) error
}

// now é trocado nos testes
var now = func() time.Time { return time.Now().UTC() }

func fromMatchEvent(kind string, p engine.MatchEvent) events.BettingNotification {
	n := events.BettingNotification{
		Kind:    kind,
		MatchID: p.Match.ID,
		EventID: p.Event.ID,
		Ts:      now(),
	}
	if kind == events.KindStart {
		n.Targets = p.Match.Targets()
	}
	return n
}

func fromBet(p engine.BetPlaced) events.BettingNotification {
	return events.BettingNotification{
		Kind:    events.KindBet,
		MatchID: p.Match.ID,
		EventID: p.Event.ID,
		UserID:  p.User.ID,
		Target:  p.Target,
		Amount:  p.Amount,
		Ts:      now(),
	}
}

func fromEnd(p engine.MatchEnded) events.BettingNotification {
	bets := make([]events.BetView, 0, len(p.Settlement.Bets))
	for _, b := range p.Settlement.Bets {
		ret, _ := b.SettledReturn()
		bets = append(bets, events.BetView{
			UserID:        b.User.ID,
			TwitchName:    b.User.TwitchName,
			Target:        b.Target,
			Amount:        b.Amount,
			SettledReturn: ret,
		})
	}
	return events.BettingNotification{
		Kind:    events.KindEnd,
		MatchID: p.Match.ID,
		EventID: p.Event.ID,
		Winner:  p.Settlement.Winner,
		Bets:    bets,
		Ts:      now(),
	}
}

// Attach inscreve os sinks em todas as notificações do motor.
// Falha de entrega é logada e não volta para quem disparou a operação:
// a aposta ou a liquidação já aconteceu.
func Attach(e *engine.Engine, log *zap.Logger, sinks ...Sink) {
	send := func(ctx context.Context, n events.BettingNotification) error {
		for _, s := range sinks {
			if err := s.Send(ctx, n); err != nil {
				log.Warn("relay notification failed",
					zap.String("kind", n.Kind),
					zap.String("match_id", n.MatchID),
					zap.Error(err),
				)
			}
		}
		return nil
	}

	matchEvent := func(kind string) func(context.Context, engine.MatchEvent) error {
		return func(ctx context.Context, p engine.MatchEvent) error {
			return send(ctx, fromMatchEvent(kind, p))
		}
	}

	e.OnStart.Subscribe(matchEvent(events.KindStart))
	e.OnCountdownStart.Subscribe(matchEvent(events.KindCountdownStart))
	e.OnCountdownCancel.Subscribe(matchEvent(events.KindCountdownCancel))
	e.OnCountdownEnd.Subscribe(matchEvent(events.KindCountdownEnd))
	e.OnCancel.Subscribe(matchEvent(events.KindCancel))
	e.OnBet.Subscribe(func(ctx context.Context, p engine.BetPlaced) error {
		return send(ctx, fromBet(p))
	})
	e.OnEnd.Subscribe(func(ctx context.Context, p engine.MatchEnded) error {
		return send(ctx, fromEnd(p))
	})
}
