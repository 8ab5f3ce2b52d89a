// Package main provides the scan worker: it runs one scheduler step per tick.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/adapter"
	"github.com/deshack/openfront-discord-bot/internal/config"
	"github.com/deshack/openfront-discord-bot/internal/job"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/service"
	"github.com/deshack/openfront-discord-bot/internal/storage"
	"github.com/deshack/openfront-discord-bot/internal/types"
)

func main() {
	once := flag.Bool("once", false, "Run a single step and exit")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var cache service.LeaderboardCache
	if cfg.Database.Redis.Host != "" {
		redis, err := storage.NewRedisCache(&cfg.Database.Redis)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, leaderboard cache invalidation disabled")
		} else {
			defer redis.Close()
			cache = storage.NewCacheService(redis, cfg.Cache.LeaderboardTTL)
		}
	}

	var notifier job.Notifier
	if cfg.Discord.BotToken != "" {
		notifier = adapter.NewDiscordNotifier(cfg.Discord)
	} else {
		logger.Warn("DISCORD_BOT_TOKEN not set, completion messages disabled")
	}

	jobRepo := storage.NewScanJobRepository(postgres)
	taskRepo := storage.NewScanTaskRepository(postgres)
	ledger := service.NewStatsLedger(storage.NewWinRecordRepository(postgres), cache)
	stats := adapter.NewGameStatsClient(cfg.GameStats)

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	runStep := func() {
		stepCtx, cancel := context.WithTimeout(ctx, cfg.Scan.StepBudget)
		defer cancel()
		if _, err := scheduler.Step(stepCtx); err != nil {
			logger.WithError(err).Error("scan step failed")
		}
	}

	if *once {
		runStep()
		return
	}

	logger.WithFields(logging.Fields{
		"tick_interval": cfg.Scan.TickInterval.String(),
		"step_budget":   cfg.Scan.StepBudget.String(),
	}).Info("Scan worker started")

	ticker := time.NewTicker(cfg.Scan.TickInterval)
	defer ticker.Stop()

	runStep()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Scan worker stopped")
			return
		case <-ticker.C:
			runStep()
		}
	}
}
