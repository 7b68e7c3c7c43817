// Command server runs the notification service: REST inbox API, the /ws
// realtime endpoint and, when configured, the Kafka event consumer and the
// Redis cross-instance relay.
//
// @title                      Notification Service API
// @version                    1.0
// @description                Real-time notification fan-out for the commerce backend.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-notify-backend/internal/auth"
	"github.com/tbourn/go-notify-backend/internal/config"
	"github.com/tbourn/go-notify-backend/internal/events"
	httpapi "github.com/tbourn/go-notify-backend/internal/http"
	"github.com/tbourn/go-notify-backend/internal/observability"
	"github.com/tbourn/go-notify-backend/internal/realtime"
	"github.com/tbourn/go-notify-backend/internal/repo"
	"github.com/tbourn/go-notify-backend/internal/services"
	"github.com/tbourn/go-notify-backend/internal/sysutil"
)

const (
	shutdownTimeout   = 15 * time.Second
	relayReadyTimeout = 5 * time.Second
	purgeInterval     = time.Hour
)

func main() {
	// .env is optional; real deployments use the environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		sysutil.SetupLogging("info", false, os.Stderr)
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	sysutil.SetupLogging(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	version := sysutil.Version()
	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	var wg sync.WaitGroup
	defer wg.Wait()
	// Workers stop with this context; it is cancelled before wg.Wait runs.
	workCtx, cancelWork := context.WithCancel(ctx)
	defer cancelWork()

	reg := realtime.NewRegistry()
	local := realtime.NewLocalFanout(reg)
	var fanout realtime.Fanout = local

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return err
		}
		client := redis.NewClient(opts)
		defer client.Close()

		relay := realtime.NewRedisFanout(client, cfg.Redis.Channel, local)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(workCtx); err != nil {
				log.Error().Err(err).Msg("redis relay stopped")
			}
		}()
		select {
		case <-relay.Ready():
		case <-time.After(relayReadyTimeout):
			return errors.New("redis relay did not subscribe in time")
		case <-ctx.Done():
			return nil
		}
		fanout = relay
	}

	users := &services.UserService{DB: db}
	notifs := &services.NotificationService{
		DB:             db,
		Fanout:         fanout,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	authn := auth.NewAuthenticator(cfg.Auth, users)
	hub := realtime.NewHub(reg, authn, notifs, realtime.HubConfig{
		QueueSize:     cfg.Realtime.QueueSize,
		InitialWindow: cfg.Realtime.InitialWindow,
		InboundRPS:    cfg.Realtime.InboundRPS,
		InboundBurst:  cfg.Realtime.InboundBurst,
	})

	if len(cfg.Kafka.Brokers) > 0 {
		consumer := events.NewConsumer(
			events.NewKafkaReader(cfg.Kafka),
			events.NewNotifier(notifs, users, cfg.LowStockThreshold),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event consumer started")
			if err := consumer.Run(workCtx); err != nil {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		purgeIdempotency(workCtx, notifs, purgeInterval)
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Config:        cfg,
		Notifications: notifs,
		Users:         users,
		Auth:          authn,
		Hub:           hub,
		BaseContext:   workCtx,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Int("sessions", hub.SessionCount()).Msg("shutting down")
	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.CloseAll("server shutting down")
	cancelWork()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}

// purgeIdempotency deletes expired Idempotency-Key records every interval.
func purgeIdempotency(ctx context.Context, notifs *services.NotificationService, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := notifs.PurgeIdempotency(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency keys")
				continue
			}
			if n > 0 {
				log.Debug().Int64("deleted", n).Msg("purged idempotency keys")
			}
		}
	}
}
