// Package main provides the API server entry point for the scan and leaderboard service.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/adapter"
	"github.com/deshack/openfront-discord-bot/internal/api"
	"github.com/deshack/openfront-discord-bot/internal/config"
	"github.com/deshack/openfront-discord-bot/internal/job"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/service"
	"github.com/deshack/openfront-discord-bot/internal/storage"
	"github.com/deshack/openfront-discord-bot/internal/types"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger.WithFields(logging.Fields{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	checks := map[string]api.HealthChecker{"postgres": postgres}

	var cache service.LeaderboardCache
	if cfg.Database.Redis.Host != "" {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, leaderboard cache disabled")
		} else {
			defer redis.Close()
			cache = storage.NewCacheService(redis, cfg.Cache.LeaderboardTTL)
			checks["redis"] = redis
		}
	}

	var notifier job.Notifier
	if cfg.Discord.BotToken != "" {
		notifier = adapter.NewDiscordNotifier(cfg.Discord)
	}

	jobRepo := storage.NewScanJobRepository(postgres)
	taskRepo := storage.NewScanTaskRepository(postgres)
	registrations := storage.NewRegistrationRepository(postgres)
	ledger := service.NewStatsLedger(storage.NewWinRecordRepository(postgres), cache)
	stats := adapter.NewGameStatsClient(cfg.GameStats)
	checks["openfront"] = stats

	procCfg := job.ProcessorConfig{
		ClanBatchSize:    cfg.Scan.ClanBatchSize,
		PlayerBatchSize:  cfg.Scan.PlayerBatchSize,
		FFAGameBatchSize: cfg.Scan.FFAGameBatchSize,
		StaleThreshold:   cfg.Scan.StaleThreshold,
	}
	scheduler := job.NewScheduler(jobRepo, taskRepo, map[types.JobType]job.BatchProcessor{
		types.JobTypeClanScan:   job.NewClanScanProcessor(taskRepo, stats, ledger, procCfg),
		types.JobTypePlayerScan: job.NewPlayerScanProcessor(taskRepo, stats, ledger, procCfg),
	}, notifier, cfg.Scan.StaleThreshold)

	server := api.NewServer(&api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
		TriggerToken:      cfg.Trigger.Token,
	},
		job.NewCreator(jobRepo, taskRepo, registrations, stats),
		ledger,
		registrations,
		budgetedSteps{scheduler: scheduler, budget: cfg.Scan.StepBudget},
		checks,
	)

	if cfg.Trigger.Token == "" {
		logger.Info("TRIGGER_TOKEN not set, step trigger route disabled")
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exited")
}

// budgetedSteps caps each triggered step at the configured step budget
type budgetedSteps struct {
	scheduler *job.Scheduler
	budget    time.Duration
}

func (b budgetedSteps) Step(ctx context.Context) (*job.StepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, b.budget)
	defer cancel()
	return b.scheduler.Step(ctx)
}
