package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/judging-simulator/rounds"
	"github.com/radieske/live-betting-engine/internal/shared/config"
	"github.com/radieske/live-betting-engine/internal/shared/kafka"
	"github.com/radieske/live-betting-engine/internal/shared/logger"
	"github.com/radieske/live-betting-engine/internal/shared/metrics"
	"github.com/radieske/live-betting-engine/pkg/contracts/events"
)

var (
	eventsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "judging_sim_events_sent_total",
		Help: "eventos de julgamento enviados por tipo",
	}, []string{"type"})
	sendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "judging_sim_send_errors_total",
		Help: "falhas ao publicar no Kafka",
	})
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "judging-simulator"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	prometheus.MustRegister(eventsSent, sendErrors)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicJudgingEvents)
	defer writer.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, nil)
	defer metricsSrv.Close()

	// a partida dura a janela de apostas mais um pouco de jogo
	matchLength := cfg.CountdownTimeout + 15*time.Second
	gen := rounds.NewGenerator(time.Now().UnixNano())

	send := func(ev events.JudgingEvent) {
		b, err := json.Marshal(ev)
		if err != nil {
			log.Error("marshal judging event", zap.Error(err))
			return
		}
		if err := kafka.WriteJSON(ctx, writer, ev.EventID, b); err != nil {
			sendErrors.Inc()
			log.Warn("publish judging event", zap.String("event_id", ev.EventID), zap.Error(err))
			return
		}
		eventsSent.WithLabelValues(ev.Type).Inc()
		log.Info("judging event sent",
			zap.String("type", ev.Type),
			zap.String("event_id", ev.EventID),
			zap.String("score", fmt.Sprintf("%d-%d", ev.Score1, ev.Score2)),
		)
	}

	log.Info("judging simulator running", zap.Duration("match_length", matchLength))
	for {
		started, ended := gen.Next(time.Now())
		send(started)

		select {
		case <-ctx.Done():
			log.Info("judging simulator stopped")
			return
		case <-time.After(matchLength):
		}

		ended.Ts = time.Now().UTC()
		send(ended)

		select {
		case <-ctx.Done():
			log.Info("judging simulator stopped")
			return
		case <-time.After(5 * time.Second):
		}
	}
}
