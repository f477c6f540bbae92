package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/live-betting-engine/internal/shared/cache"
	"github.com/radieske/live-betting-engine/internal/shared/config"
	"github.com/radieske/live-betting-engine/internal/shared/logger"
	"github.com/radieske/live-betting-engine/internal/shared/metrics"
	"github.com/radieske/live-betting-engine/internal/spectator-relay/ws"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "spectator-relay"
	}

	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	hub := ws.NewHub(func(r *http.Request) bool { return true }, log, ws.RedisSnapshot(redisClient, cfg.RedisSnapshotKey))
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, hub, log)

	spectators := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "spectator_ws_connections",
		Help: "espectadores conectados",
	}, func() float64 { return float64(hub.Len()) })
	prometheus.MustRegister(spectators)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, log, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})

	r := chi.NewRouter()
	r.Get("/ws", hub.HandleWS)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("spectator ws listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("spectator-relay stopped")
}
