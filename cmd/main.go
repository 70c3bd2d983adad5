package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botfleet/internal/config"
	"botfleet/internal/infrastructure"
	"botfleet/internal/interfaces"
	"botfleet/internal/interfaces/http"
	"botfleet/internal/repository"
	"botfleet/internal/scheduler"
	"botfleet/internal/usecases"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional in production; the environment wins either way.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := infrastructure.NewLogger(cfg.LogLevel)

	pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	defer pgClient.Close()
	store := repository.NewPostgresStore(pgClient.Pool)

	journal, err := scheduler.OpenJournal(cfg.JournalPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("job journal open failed")
	}
	defer journal.Close()

	auth, err := usecases.NewAdminAuth(cfg.AdminUser, cfg.AdminPassword, cfg.JWTSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("admin auth setup failed")
	}

	var notifier interfaces.Notifier
	if cfg.NotifyBotToken != "" {
		notifier, err = infrastructure.NewTelegramNotifier(cfg.NotifyBotToken, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("notification bot unavailable, logging notifications instead")
			notifier = infrastructure.LogNotifier{Logger: logger}
		}
	} else {
		notifier = infrastructure.LogNotifier{Logger: logger}
	}

	runtime := infrastructure.NewTelegramRuntime(logger)

	registry := usecases.NewRegistry(store, logger, time.Duration(cfg.SuspendGraceDays)*24*time.Hour)
	supervisor := usecases.NewSupervisor(registry, store, runtime, notifier, logger, usecases.SupervisorConfig{
		MaxBotsPerOwner:         cfg.MaxBotsPerOwner,
		StopTimeout:             cfg.StopTimeout,
		ProbeFailureThreshold:   cfg.ProbeFailureThreshold,
		RestartFailureThreshold: cfg.RestartFailureThreshold,
	})
	billing := usecases.NewBilling(store, registry, supervisor, notifier, logger, usecases.BillingConfig{
		DefaultCreationFee: cfg.DefaultCreationFee,
		DefaultDailyFee:    cfg.DefaultDailyFee,
		ReminderDayOffsets: cfg.ReminderDayOffsets,
	})
	maintenance := usecases.NewMaintenance(store, registry, supervisor, journal, logger, usecases.MaintenanceConfig{
		BotStoragePath:    cfg.BotStoragePath,
		PurgeGraceDays:    cfg.PurgeGraceDays,
		FileRetentionDays: cfg.FileRetentionDays,
	})
	monitor := usecases.NewMonitor(store, registry, supervisor, logger)

	sched := scheduler.New(logger, scheduler.Options{
		WorkersPerQueue: cfg.WorkersPerQueue,
		SoftLimit:       cfg.SoftTimeLimit,
		HardLimit:       cfg.HardTimeLimit,
		Journal:         journal,
	})
	fleet := usecases.NewFleetService(sched, registry, supervisor, billing, maintenance, monitor, store, logger, cfg.AdminTelegramIDs)
	if err := fleet.RegisterJobs(); err != nil {
		logger.Fatal().Err(err).Msg("job registration failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	http.SetupRoutes(r, fleet, auth, billing, monitor, store, sched, journal, http.NewMiddleware(cfg.JWTSecret))

	srv := &nethttp.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("admin api listening")
		if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			logger.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	// Bring previously running bots back up after a restart.
	supervisor.ResumeAll(ctx)

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	sched.Stop()

	os.Exit(0)
}
