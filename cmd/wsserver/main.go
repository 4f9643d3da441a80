package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whisper/roulette/internal/ban"
	"github.com/whisper/roulette/internal/config"
	"github.com/whisper/roulette/internal/db"
	"github.com/whisper/roulette/internal/gateway"
	"github.com/whisper/roulette/internal/hub"
	"github.com/whisper/roulette/internal/ice"
	"github.com/whisper/roulette/internal/logging"
	"github.com/whisper/roulette/internal/matching"
	"github.com/whisper/roulette/internal/messaging"
	"github.com/whisper/roulette/internal/moderation"
	"github.com/whisper/roulette/internal/profile"
	"github.com/whisper/roulette/internal/ratelimit"
	"github.com/whisper/roulette/internal/session"
	"github.com/whisper/roulette/internal/ws"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		bootLog := logging.New("wsserver", "info", false)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logging.New("wsserver", cfg.LogLevel, cfg.LogPretty)

	serverName := cfg.ServerName
	if serverName == "" {
		serverName, _ = os.Hostname()
	}
	log = log.With().Str("server", serverName).Logger()
	log.Info().Msg("starting matchmaking server")

	policy, err := matching.ParsePolicy(cfg.WideningPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid widening policy")
	}

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect to Redis")
	}
	cancel()
	log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "roulette-" + serverName
	natsClient, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to NATS")
	}

	// Optional Postgres profile store.
	var (
		pg       *sql.DB
		profiles profile.Store
	)
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err = db.Open(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Postgres")
		}
		if cfg.MigrateOnStart {
			version, err := db.Migrate(pg)
			if err != nil {
				log.Fatal().Err(err).Msg("migration failed")
			}
			log.Info().Uint("version", version).Msg("schema up to date")
		}
		profiles = profile.NewPGStore(pg)
	} else {
		log.Warn().Msg("DATABASE_URL not set, trusting client profiles")
	}

	presence := session.NewPresence(rdb, serverName, log)
	iceServers := ice.NewStatic(cfg.ICEServers, cfg.TURNURLs, cfg.TURNUsername, cfg.TURNCredential)

	dispatcher := ws.NewMessageDispatcher(log)
	srv := ws.NewServer(ws.ServerConfig{
		ListenAddr:     cfg.ListenAddr,
		WorkerPoolSize: cfg.WorkerPoolSize,
		MaxConnections: cfg.MaxConnections,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		SendQueueSize:  cfg.SendQueueSize,
		Heartbeat:      ws.HeartbeatConfig{Interval: cfg.PingInterval, Timeout: cfg.PingTimeout},
	}, dispatcher.Dispatch, log)

	h := hub.New(hub.Config{
		ChatBufferSize: cfg.ChatBufferSize,
		Policy:         policy,
		ReportTimeout:  cfg.ReportTimeout,
	}, srv,
		hub.WithModeration(moderation.NewNATSService(natsClient)),
		hub.WithICE(iceServers),
		hub.WithObserver(presence),
		hub.WithLogger(log),
	)

	gwOpts := []gateway.Option{
		gateway.WithLimiter(ratelimit.NewLimiter(rdb, log)),
		gateway.WithBans(ban.NewStore(rdb)),
		gateway.WithFlood(ratelimit.NewFloodLimiter(cfg.RelayRate, cfg.RelayBurst)),
		gateway.WithLogger(log),
	}
	if profiles != nil {
		gwOpts = append(gwOpts, gateway.WithProfiles(profiles))
	}
	gw := gateway.New(h, srv, gwOpts...)
	gw.Register(dispatcher)

	srv.SetOnConnect(gw.Connect)
	srv.SetOnDisconnect(gw.Disconnect)
	srv.SetStats(func() interface{} { return h.Stats() })

	runCtx, stop := context.WithCancel(context.Background())
	go presence.Run(runCtx)
	go h.Run(runCtx, cfg.MatchTick)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	h.Wait()
	stop()

	natsClient.Close()
	if pg != nil {
		pg.Close()
	}
	rdb.Close()
	log.Info().Msg("server stopped")
}
