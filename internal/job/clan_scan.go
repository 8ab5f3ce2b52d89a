package job

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"golang.org/x/sync/errgroup"
)

const gameDetailUnavailable = "game detail unavailable"

// ClanScanProcessor records the clan members of each winning clan game
type ClanScanProcessor struct {
	tasks    TaskStore
	api      StatsAPI
	recorder Recorder
	cfg      ProcessorConfig
}

// NewClanScanProcessor creates a clan scan processor
func NewClanScanProcessor(tasks TaskStore, api StatsAPI, recorder Recorder, cfg ProcessorConfig) *ClanScanProcessor {
	return &ClanScanProcessor{
		tasks:    tasks,
		api:      api,
		recorder: recorder,
		cfg:      cfg,
	}
}

// ProcessBatch claims up to ClanBatchSize clan games and records their winners
func (p *ClanScanProcessor) ProcessBatch(ctx context.Context, job *models.ScanJob) (*BatchResult, error) {
	if job.Tag() == "" {
		return nil, fmt.Errorf("clan scan job %s has no clan tag", job.ID)
	}

	tasks, err := p.tasks.ClaimClanTasks(ctx, job.ID, p.cfg.ClanBatchSize, p.cfg.StaleThreshold)
	if err != nil {
		return nil, err
	}

	var recorded atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.cfg.ClanBatchSize)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			n, err := p.processTask(ctx, job, task)
			recorded.Add(n)
			return err
		})
	}
	result := &BatchResult{Phase: PhaseClanSessions, Processed: len(tasks)}
	err = g.Wait()
	result.Recorded = recorded.Load()
	if err != nil {
		return result, err
	}

	open, err := p.tasks.OpenClanTasks(ctx, job.ID)
	if err != nil {
		return result, err
	}
	result.Done = open == 0
	return result, nil
}

func (p *ClanScanProcessor) processTask(ctx context.Context, job *models.ScanJob, task *models.ClanSessionTask) (int64, error) {
	logger := logging.FromContext(ctx).WithField("game_id", task.GameID)

	info, err := p.api.GameInfo(ctx, task.GameID)
	if err != nil {
		if keepClaimed(ctx, err) {
			logger.WithError(err).Warn("game detail deferred")
			return 0, nil
		}
		logger.WithError(err).Info("game detail unavailable")
		msg := gameDetailUnavailable
		return 0, deferOnCancel(ctx, p.tasks.CompleteClanTask(ctx, job.ID, task.GameID, &msg))
	}

	var recorded int64
	for _, player := range info.Players {
		if player.Tag() != job.Tag() {
			continue
		}
		inserted, err := p.recorder.Record(ctx, &models.WinRecord{
			CommunityID: job.CommunityID,
			Username:    player.Username,
			GameID:      task.GameID,
			GameMode:    info.Config.GameMode,
			Score:       task.Score,
			GameStart:   info.Start,
		})
		if err != nil {
			return recorded, fmt.Errorf("failed to record win of %s in %s: %w", player.Username, task.GameID, err)
		}
		if inserted {
			recorded++
		}
	}

	return recorded, deferOnCancel(ctx, p.tasks.CompleteClanTask(ctx, job.ID, task.GameID, nil))
}
