package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/live-betting-engine/internal/betting-service/ledger"
	"github.com/radieske/live-betting-engine/internal/betting-service/match"
)

// Metrics agrupa os coletores Prometheus do motor de apostas
type Metrics struct {
	RoundsStarted    prometheus.Counter
	RoundsEnded      prometheus.Counter
	RoundsCancelled  prometheus.Counter
	BetsPlaced       prometheus.Counter
	BetsRejected     *prometheus.CounterVec // por motivo
	Countdowns       *prometheus.CounterVec // por resultado
	WatcherFailures  prometheus.Counter
	SettledPoolSizes prometheus.Histogram
}

// NewMetrics cria os coletores e registra em reg; reg nil só cria
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundsStarted:   prometheus.NewCounter(prometheus.CounterOpts{Name: "betting_rounds_started_total", Help: "rodadas abertas"}),
		RoundsEnded:     prometheus.NewCounter(prometheus.CounterOpts{Name: "betting_rounds_ended_total", Help: "rodadas liquidadas"}),
		RoundsCancelled: prometheus.NewCounter(prometheus.CounterOpts{Name: "betting_rounds_cancelled_total", Help: "rodadas canceladas"}),
		BetsPlaced:      prometheus.NewCounter(prometheus.CounterOpts{Name: "betting_bets_placed_total", Help: "apostas aceitas"}),
		BetsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betting_bets_rejected_total", Help: "apostas recusadas por motivo",
		}, []string{"reason"}),
		Countdowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "betting_countdowns_total", Help: "contagens finalizadas por resultado",
		}, []string{"outcome"}),
		WatcherFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "betting_countdown_watcher_failures_total", Help: "watchers encerrados sem notificação final",
		}),
		SettledPoolSizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "betting_settled_pool_points",
			Help:    "tamanho do pool nas rodadas liquidadas",
			Buckets: prometheus.ExponentialBuckets(100, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RoundsStarted, m.RoundsEnded, m.RoundsCancelled,
			m.BetsPlaced, m.BetsRejected, m.Countdowns,
			m.WatcherFailures, m.SettledPoolSizes,
		)
	}
	return m
}

// rejectReason traduz o erro de negócio para o label de métrica
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNoMatch):
		return "no_match"
	case errors.Is(err, ErrClosed):
		return "closed"
	case errors.Is(err, match.ErrNoCountdown):
		return "no_countdown"
	case errors.Is(err, match.ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, ledger.ErrNegativeAmount):
		return "negative_amount"
	case errors.Is(err, match.ErrMatchClosed):
		return "match_closed"
	default:
		return "other"
	}
}
