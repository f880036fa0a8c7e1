package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classpoint/classroom-system/internal/api"
	"github.com/classpoint/classroom-system/internal/api/handler"
	"github.com/classpoint/classroom-system/internal/core/service"
	mongodb "github.com/classpoint/classroom-system/internal/infrastructure/db/mongo"
	redisdb "github.com/classpoint/classroom-system/internal/infrastructure/db/redis"
	"github.com/classpoint/classroom-system/internal/infrastructure/queue"
	"github.com/classpoint/classroom-system/internal/pkg/config"
	"github.com/classpoint/classroom-system/internal/realtime"
	"github.com/classpoint/classroom-system/pkg/logger"
)

const (
	sessionTokenTTL = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connection failed")
	}
	defer func() {
		if err := mongodb.Disconnect(mongoClient); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer rdb.Close()

	userRepo := mongodb.NewUserRepository(db)
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("user index creation failed")
	}
	roomRepo := mongodb.NewRoomRepository(db)
	if err := roomRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("room index creation failed")
	}
	cachedRoomRepo := redisdb.NewPermissionCache(roomRepo, rdb)

	// --- Core services ---
	registry := service.NewRegistryService(userRepo, cachedRoomRepo, log)
	registry.StartJanitor(ctx, cfg.RoomIdleTTL)

	hub := realtime.NewHub()
	registry.Subscribe(hub)

	limiter := service.NewRateLimitService(userRepo, log)
	gate := service.NewPermissionService(registry, userRepo, log)
	polls := service.NewPollService(registry, hub, log)
	help := service.NewHelpService(registry, hub, log)
	auth := service.NewAuthService(userRepo, cfg.JWTSecret, sessionTokenTTL)
	rooms := service.NewRoomService(registry, cachedRoomRepo, log)

	// --- Realtime pipeline ---
	dispatcher := queue.NewDispatcher(cfg.EventWorkers, log)
	dispatcher.Start(ctx)
	router := realtime.NewRouter(registry, limiter, gate, dispatcher, hub, polls, help, auth, log)
	wsHandler := realtime.NewHandler(router, hub, registry, cfg.JWTSecret, log)

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		AuthHandler:      handler.NewAuthHandler(auth),
		RoomHandler:      handler.NewRoomHandler(registry, rooms, polls),
		HealthHandler:    handler.NewHealthHandler(),
		ReadinessHandler: handler.NewReadinessHandler(db, rdb),
		RealtimeHandler:  wsHandler,
		RateLimiter:      limiter,
		JWTSecret:        cfg.JWTSecret,
		Logger:           log,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
