package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"studyrooms-backend/internal/config"
	"studyrooms-backend/internal/database"
	"studyrooms-backend/internal/handlers"
	"studyrooms-backend/internal/logging"
	"studyrooms-backend/internal/middleware"
	"studyrooms-backend/internal/repository"
	"studyrooms-backend/internal/router"
	"studyrooms-backend/internal/services"
	"studyrooms-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stdout})
	log.Info().Str("env", cfg.Env).Msg("Starting study rooms backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("PostgreSQL connection failed")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Client ────
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()
	log.Info().Msg("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("Database migration failed")
	}

	// ──── Initialize Repositories ────
	userRepo := repository.NewUserRepo(pool)
	membershipRepo := repository.NewMembershipRepo(pool)
	sessionRepo := repository.NewStudySessionRepo(pool)
	subjectRepo := repository.NewSubjectRepo(pool)
	messageRepo := repository.NewMessageRepo(pool)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	membershipService := services.NewMembershipService(membershipRepo)

	// ──── Step 5: Start Room Hub ────
	mirror := websocket.NewRedisMirror(redisClient, 4*cfg.SendBuffer)
	hub := websocket.NewHub(
		websocket.NewGate(jwtAuth, userRepo),
		websocket.Stores{
			Membership: membershipService,
			Rooms:      membershipRepo,
			Sessions:   sessionRepo,
			Subjects:   subjectRepo,
			Messages:   messageRepo,
		},
		mirror,
		websocket.Options{
			AllowedOrigin:   cfg.AllowedOrigin,
			SendBuffer:      cfg.SendBuffer,
			MaxMessageBytes: cfg.MaxMessageBytes,
			EventsPerSecond: cfg.EventsPerSecond,
			HistoryDefault:  cfg.HistoryDefaultLen,
			HistoryMax:      cfg.HistoryMaxLen,
		},
	)

	// The mirror outlives the hub so frames emitted during hub shutdown
	// still reach Redis.
	mirrorCtx, stopMirror := context.WithCancel(context.Background())
	mirrorDone := make(chan struct{})
	go func() {
		mirror.Run(mirrorCtx)
		close(mirrorDone)
	}()

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	reaper := services.NewSessionReaper(hub, cfg.SessionStaleAfter, cfg.SessionReapInterval)
	reaper.Start()

	// ──── Step 6: Start HTTP Server ────
	apiLimiter := middleware.NewRateLimiter(120, time.Minute)
	roomHandler := handlers.NewRoomHandler(membershipService, membershipRepo, sessionRepo)
	r := router.New(jwtAuth, apiLimiter, roomHandler, hub.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("api", fmt.Sprintf("http://localhost:%s/api/v1", cfg.Port)).
			Str("ws", fmt.Sprintf("ws://localhost:%s/api/v1/ws", cfg.Port)).
			Msg("Study rooms backend ready")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	reaper.Stop()
	apiLimiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Completes sessions still tracked by live connections.
	stopHub()
	select {
	case <-hubDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Room hub did not stop in time")
	}

	stopMirror()
	select {
	case <-mirrorDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Room event mirror did not stop in time")
	}
}
