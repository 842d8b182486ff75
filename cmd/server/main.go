package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	httpapi "github.com/session-hub/session-hub/internal/api/http"
	"github.com/session-hub/session-hub/internal/application/auth"
	"github.com/session-hub/session-hub/internal/application/dispatch"
	"github.com/session-hub/session-hub/internal/application/intake"
	"github.com/session-hub/session-hub/internal/application/lifecycle"
	"github.com/session-hub/session-hub/internal/application/notifier"
	"github.com/session-hub/session-hub/internal/application/sweeper"
	"github.com/session-hub/session-hub/internal/config"
	"github.com/session-hub/session-hub/internal/infrastructure/postgres"
	"github.com/session-hub/session-hub/internal/infrastructure/rooms"
	"github.com/session-hub/session-hub/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	sessionRepo := postgres.NewSessionRepository(pool)
	requestRepo := postgres.NewRequestRepository(pool)
	assignmentRepo := postgres.NewAssignmentRepository(pool)
	participantRepo := postgres.NewParticipantRepository(pool)
	eventRepo := postgres.NewEventRepository(pool)
	mechanicRepo := postgres.NewMechanicRepository(pool)
	notificationRepo := postgres.NewNotificationRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	intakeStore := postgres.NewIntakeStore(pool)

	// infrastructure
	sseHub := sse.NewHub()
	roomProvider := rooms.NewHMACProvider([]byte(cfg.RoomSigningKey), cfg.RoomTokenTTL)

	// services
	notifierSvc := notifier.NewService(notificationRepo, sseHub, logger)
	authSvc := auth.NewService(accountRepo, tokenRepo, mechanicRepo, cfg.TokenTTL, logger)
	intakeSvc := intake.NewService(intakeStore, requestRepo, sessionRepo, notifierSvc, logger)
	dispatchSvc := dispatch.NewService(assignmentRepo, sessionRepo, requestRepo, mechanicRepo, eventRepo, notifierSvc, logger)
	lifecycleSvc := lifecycle.NewService(sessionRepo, participantRepo, eventRepo, requestRepo, roomProvider, notifierSvc, logger)
	sweeperSvc := sweeper.NewService(sessionRepo, requestRepo, assignmentRepo, eventRepo, tokenRepo, notifierSvc, cfg.Thresholds, logger)

	// API server
	apiServer := httpapi.NewServer(
		authSvc,
		intakeSvc,
		dispatchSvc,
		lifecycleSvc,
		sweeperSvc,
		notifierSvc,
		sseHub,
		cfg.AuthCookieName,
		cfg.AuthCookieSecure,
		cfg.SweepSecret,
	)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background sweep
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := sweeperSvc.Sweep(sweepCtx); err != nil {
			logger.Error().Err(err).Msg("scheduled sweep failed")
		}
	}); err != nil {
		log.Fatalf("sweep schedule error: %v", err)
	}
	scheduler.Start()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()
	sseHub.Stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
