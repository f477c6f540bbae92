package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/betting-service/engine"
	httpapi "github.com/radieske/live-betting-engine/internal/betting-service/http"
	"github.com/radieske/live-betting-engine/internal/betting-service/judging"
	"github.com/radieske/live-betting-engine/internal/betting-service/relay"
	"github.com/radieske/live-betting-engine/internal/betting-service/repo"
	"github.com/radieske/live-betting-engine/internal/betting-service/users"
	"github.com/radieske/live-betting-engine/internal/shared/cache"
	"github.com/radieske/live-betting-engine/internal/shared/config"
	"github.com/radieske/live-betting-engine/internal/shared/db"
	"github.com/radieske/live-betting-engine/internal/shared/kafka"
	"github.com/radieske/live-betting-engine/internal/shared/logger"
	"github.com/radieske/live-betting-engine/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "betting-service"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	if cfg.BetbotToken == "" {
		log.Warn("BETBOT_TOKEN not set, bot API will reject every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres: usuários, pontos e histórico de rodadas
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()
	if err := db.EnsureSchema(ctx, pg); err != nil {
		log.Fatal("postgres schema", zap.Error(err))
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBettingNotifications)
	defer writer.Close()

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicJudgingEvents, cfg.ServiceName)
	defer reader.Close()

	// Motor de apostas
	store := repo.NewPostgres(pg, cfg.MinPoints)
	registry := users.NewRegistry(store)

	bet := engine.New(engine.Config{
		CountdownTimeout: cfg.CountdownTimeout,
		BaseBet:          cfg.BaseBet,
		MinPoints:        cfg.MinPoints,
	}, log.Named("engine"), engine.NewMetrics(prometheus.DefaultRegisterer))
	defer bet.Close()

	// end grava pontos e histórico; o relay leva todas as notificações para Kafka e Redis
	bet.OnEnd.Subscribe(store.OnMatchEnded)
	relay.Attach(bet, log.Named("relay"),
		relay.NewKafkaPublisher(writer, log),
		relay.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel, cfg.RedisSnapshotKey, time.Hour),
	)

	// Consumidor de julgamento
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "judging_messages_consumed_total", Help: "eventos de julgamento consumidos"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "judging_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, errorsBy)

	consumer := &judging.Consumer{
		Log:        log.Named("judging"),
		Reader:     reader,
		Betting:    bet,
		OnConsumed: func() { consumed.Inc() },
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("judging consumer stopped", zap.Error(err))
			stop()
		}
	}()

	// /metrics e /healthz
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	// API do bot
	api := &httpapi.API{
		Log:     log.Named("http"),
		Betting: bet,
		Users:   registry,
		Token:   cfg.BetbotToken,
	}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("betbot api listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("betting-service stopped")
}
