package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/countdown"
	"github.com/radieske/live-betting-engine/internal/betting-service/eventbus"
	"github.com/radieske/live-betting-engine/internal/betting-service/ledger"
	"github.com/radieske/live-betting-engine/internal/betting-service/match"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
)

var (
	ErrAlreadyActive = errors.New("already have active match")
	ErrNoMatch       = errors.New("no match active")
	ErrClosed        = errors.New("betting engine closed")
)

// IsBusinessError indica erros que podem ser devolvidos ao cliente sem
// deixar o motor inconsistente
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrAlreadyActive, ErrNoMatch,
		match.ErrInvalidTarget, match.ErrNoCountdown, match.ErrCountdownAlreadyActive, match.ErrMatchClosed,
		ledger.ErrNegativeAmount, ledger.ErrInsufficientPoints, ledger.ErrOverDeallocation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Config são os parâmetros injetados na construção do motor
type Config struct {
	CountdownTimeout time.Duration // duração padrão da contagem
	BaseBet          int64         // aposta da casa somada ao pool
	MinPoints        int64         // piso de pontos após a liquidação
}

func DefaultConfig() Config {
	return Config{CountdownTimeout: 60 * time.Second, BaseBet: 100, MinPoints: 100}
}

// Event é a partida julgada que origina a rodada
type Event struct {
	ID      string
	TeamIDs []string
}

// MatchEvent é o payload de start, countdown_start, countdown_cancel,
// countdown_end e cancel. Countdown é nil em cancel.
type MatchEvent struct {
	Match     *match.Match
	Event     Event
	Countdown *countdown.Countdown
}

// BetPlaced é o payload de bet
type BetPlaced struct {
	Match  *match.Match
	Event  Event
	User   *users.User
	Target string
	Amount int64
}

// MatchEnded é o payload de end
type MatchEnded struct {
	Match      *match.Match
	Event      Event
	Settlement match.Settlement
}

// Engine coordena no máximo uma rodada ativa: abre a rodada e a contagem,
// aceita apostas, liquida ou cancela e publica cada transição nos sinais.
type Engine struct {
	cfg     Config
	log     *zap.Logger
	metrics *Metrics

	OnStart           eventbus.Signal[MatchEvent]
	OnCountdownStart  eventbus.Signal[MatchEvent]
	OnCountdownCancel eventbus.Signal[MatchEvent]
	OnBet             eventbus.Signal[BetPlaced]
	OnCountdownEnd    eventbus.Signal[MatchEvent]
	OnCancel          eventbus.Signal[MatchEvent]
	OnEnd             eventbus.Signal[MatchEnded]

	// tempo de vida do motor; cancelado em Close
	ctx  context.Context
	stop context.CancelFunc

	watchers sync.WaitGroup

	mu     sync.Mutex
	match  *match.Match
	event  Event
	closed bool
	// fila dos watchers: cada um espera o anterior fechar este canal
	lastWatcher chan struct{}
}

// New cria o motor ocioso. metrics nil cria coletores não registrados.
func New(cfg Config, log *zap.Logger, metrics *Metrics) *Engine {
	if cfg.CountdownTimeout <= 0 {
		cfg.CountdownTimeout = DefaultConfig().CountdownTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Engine{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		ctx:     ctx,
		stop:    stop,
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Active informa se há rodada em andamento
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.match != nil
}

// Current retorna a rodada e o evento ativos
func (e *Engine) Current() (*match.Match, Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.match == nil {
		return nil, Event{}, false
	}
	return e.match, e.event, true
}

// Start abre uma rodada sobre os times do evento e inicia a contagem.
// timeout <= 0 usa o padrão. O watcher da contagem roda em segundo plano.
func (e *Engine) Start(ctx context.Context, ev Event, timeout time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.match != nil {
		err := fmt.Errorf("%w (match id=%s eid=%s)", ErrAlreadyActive, e.match.ID, e.event.ID)
		e.mu.Unlock()
		return err
	}

	m := match.New(ev.TeamIDs)
	cd, err := m.StartCountdown(e.ctx, e.timeout(timeout))
	if err != nil {
		e.mu.Unlock()
		return err
	}
	e.match, e.event = m, ev
	ticket := e.enqueueWatcherLocked()
	e.mu.Unlock()

	e.metrics.RoundsStarted.Inc()
	e.log.Debug("start betting",
		zap.String("event_id", ev.ID),
		zap.String("match_id", m.ID),
		zap.Strings("targets", m.Targets()),
		zap.Duration("countdown", cd.Duration()),
	)

	payload := MatchEvent{Match: m, Event: ev, Countdown: cd}
	err = e.OnStart.Dispatch(ctx, payload)

	// o watcher sempre sobe, mesmo com falha na notificação de start
	go e.runCountdown(cd, payload, ticket)

	return err
}

// RestartCountdown cancela a contagem atual e inicia outra.
// O watcher novo só notifica depois que o anterior terminar.
func (e *Engine) RestartCountdown(timeout time.Duration) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.match == nil {
		e.mu.Unlock()
		return ErrNoMatch
	}

	m, ev := e.match, e.event
	m.CancelCountdown()
	cd, err := m.StartCountdown(e.ctx, e.timeout(timeout))
	if err != nil {
		e.mu.Unlock()
		return err
	}
	ticket := e.enqueueWatcherLocked()
	e.mu.Unlock()

	e.log.Debug("restart countdown",
		zap.String("event_id", ev.ID),
		zap.String("match_id", m.ID),
		zap.Duration("countdown", cd.Duration()),
	)

	go e.runCountdown(cd, MatchEvent{Match: m, Event: ev, Countdown: cd}, ticket)
	return nil
}

// Bet registra a aposta do usuário na rodada ativa. Exige contagem ativa.
func (e *Engine) Bet(ctx context.Context, u *users.User, target string, amount int64) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.metrics.BetsRejected.WithLabelValues(rejectReason(ErrClosed)).Inc()
		return ErrClosed
	}
	if e.match == nil {
		e.mu.Unlock()
		e.metrics.BetsRejected.WithLabelValues(rejectReason(ErrNoMatch)).Inc()
		return ErrNoMatch
	}

	m, ev := e.match, e.event
	_, err := m.PlaceBet(u, target, amount, true)
	e.mu.Unlock()

	if err != nil {
		e.metrics.BetsRejected.WithLabelValues(rejectReason(err)).Inc()
		return err
	}

	if amount > 0 {
		e.metrics.BetsPlaced.Inc()
	}
	e.log.Debug("bet placed",
		zap.String("user", u.String()),
		zap.String("target", target),
		zap.Int64("amount", amount),
		zap.String("match_id", m.ID),
	)

	return e.OnBet.Dispatch(ctx, BetPlaced{Match: m, Event: ev, User: u, Target: target, Amount: amount})
}

// Cancel cancela a rodada ativa devolvendo todas as reservas.
// Sem rodada ativa não faz nada e não notifica.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	if e.match == nil {
		e.mu.Unlock()
		return nil
	}

	m, ev := e.match, e.event
	refundErr := m.Cancel()
	e.match, e.event = nil, Event{}
	e.mu.Unlock()

	if refundErr != nil {
		e.log.Error("refund on cancel", zap.String("match_id", m.ID), zap.Error(refundErr))
	}
	e.metrics.RoundsCancelled.Inc()
	e.log.Debug("cancelled betting", zap.String("event_id", ev.ID), zap.String("match_id", m.ID))

	return errors.Join(refundErr, e.OnCancel.Dispatch(ctx, MatchEvent{Match: m, Event: ev}))
}

// End liquida a rodada ativa com o alvo vencedor e volta ao estado ocioso
func (e *Engine) End(ctx context.Context, winner string) (match.Settlement, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return match.Settlement{}, ErrClosed
	}
	if e.match == nil {
		e.mu.Unlock()
		return match.Settlement{}, ErrNoMatch
	}

	m, ev := e.match, e.event
	if m.CountdownActive() {
		m.CancelCountdown()
		e.log.Warn("match ended while countdown is still active",
			zap.String("event_id", ev.ID), zap.String("match_id", m.ID))
	}

	st, settleErr := m.Settle(winner, e.cfg.BaseBet, e.cfg.MinPoints)
	e.match, e.event = nil, Event{}
	e.mu.Unlock()

	if settleErr != nil {
		e.log.Error("settle", zap.String("match_id", m.ID), zap.Error(settleErr))
	}
	e.metrics.RoundsEnded.Inc()
	e.metrics.SettledPoolSizes.Observe(float64(st.Pool))
	e.log.Debug("finished betting",
		zap.String("event_id", ev.ID),
		zap.String("match_id", m.ID),
		zap.String("winner", winner),
		zap.Int64("pool", st.Pool),
		zap.Int("bets", len(st.Bets)),
	)

	dispatchErr := e.OnEnd.Dispatch(ctx, MatchEnded{Match: m, Event: ev, Settlement: st})
	return st, errors.Join(settleErr, dispatchErr)
}

// Close interrompe contagens em andamento e espera os watchers saírem.
// Watchers interrompidos assim não emitem notificação final.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.stop()
	e.watchers.Wait()
}

func (e *Engine) timeout(t time.Duration) time.Duration {
	if t <= 0 {
		return e.cfg.CountdownTimeout
	}
	return t
}

// watcherTicket ordena os watchers na ordem em que as contagens foram criadas
type watcherTicket struct {
	prev <-chan struct{}
	done chan struct{}
}

func (e *Engine) enqueueWatcherLocked() watcherTicket {
	t := watcherTicket{prev: e.lastWatcher, done: make(chan struct{})}
	e.lastWatcher = t.done
	e.watchers.Add(1)
	return t
}

// runCountdown acompanha uma contagem do início ao fim. Só começa depois
// que o watcher anterior saiu, então countdown_start/_cancel/_end de
// gerações diferentes nunca se intercalam.
func (e *Engine) runCountdown(cd *countdown.Countdown, payload MatchEvent, t watcherTicket) {
	defer e.watchers.Done()
	defer close(t.done)

	log := e.log.With(
		zap.String("event_id", payload.Event.ID),
		zap.String("match_id", payload.Match.ID),
	)

	if t.prev != nil {
		select {
		case <-t.prev:
		case <-e.ctx.Done():
			e.metrics.WatcherFailures.Inc()
			log.Error("countdown watcher interrupted while queued", zap.Error(e.ctx.Err()))
			return
		}
	}

	if err := e.OnCountdownStart.Dispatch(e.ctx, payload); err != nil {
		e.metrics.WatcherFailures.Inc()
		log.Error("countdown_start dispatch failed", zap.Error(err))
		return
	}

	var dispatchErr error
	switch err := cd.Wait(e.ctx); {
	case err == nil:
		e.metrics.Countdowns.WithLabelValues(countdown.Elapsed.String()).Inc()
		log.Debug("finished countdown")
		dispatchErr = e.OnCountdownEnd.Dispatch(e.ctx, payload)
	case errors.Is(err, countdown.ErrCancelled):
		e.metrics.Countdowns.WithLabelValues(countdown.CancelledByCaller.String()).Inc()
		log.Debug("countdown was cancelled")
		dispatchErr = e.OnCountdownCancel.Dispatch(e.ctx, payload)
	default:
		e.metrics.Countdowns.WithLabelValues(countdown.CancelledExternally.String()).Inc()
		e.metrics.WatcherFailures.Inc()
		log.Error("countdown watcher interrupted", zap.Error(err))
		return
	}

	if dispatchErr != nil {
		e.metrics.WatcherFailures.Inc()
		log.Error("countdown dispatch failed", zap.Error(dispatchErr))
	}
}
