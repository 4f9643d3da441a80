package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/roulette/internal/ban"
	"github.com/whisper/roulette/internal/config"
	"github.com/whisper/roulette/internal/db"
	"github.com/whisper/roulette/internal/logging"
	"github.com/whisper/roulette/internal/messaging"
	"github.com/whisper/roulette/internal/metrics"
	"github.com/whisper/roulette/internal/report"
)

func main() {
	cfg, err := config.LoadModerator()
	if err != nil {
		bootLog := logging.New("moderator", "info", false)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New("moderator", cfg.LogLevel, cfg.LogPretty)
	log.Info().Msg("starting moderation worker")

	// Postgres setup.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pg, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Postgres")
	}
	defer pg.Close()
	if version, err := db.Migrate(pg); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	} else {
		log.Info().Uint("version", version).Msg("schema up to date")
	}

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	cancel()
	defer rdb.Close()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "roulette-moderator"
	natsClient, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	w := &worker{
		reports: report.NewStore(pg),
		bans:    ban.NewStore(rdb),
		window:  cfg.ReportWindow,
		timeout: 10 * time.Second,
		log:     log.With().Str("component", "moderator").Logger(),
	}
	if err := natsClient.SubscribeReports(w.handle); err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to reports")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	log.Info().Str("metrics", cfg.MetricsAddr).Msg("moderation worker ready")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down moderation worker")
	natsClient.Close()
	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
