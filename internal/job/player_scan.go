package job

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/deshack/openfront-discord-bot/internal/adapter"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"golang.org/x/sync/errgroup"
)

// PlayerScanProcessor finds public FFA wins of registered players, then
// records the winner of each game found. Discovery always finishes before
// any FFA game is processed.
type PlayerScanProcessor struct {
	tasks    TaskStore
	api      StatsAPI
	recorder Recorder
	cfg      ProcessorConfig
}

// NewPlayerScanProcessor creates a player scan processor
func NewPlayerScanProcessor(tasks TaskStore, api StatsAPI, recorder Recorder, cfg ProcessorConfig) *PlayerScanProcessor {
	return &PlayerScanProcessor{
		tasks:    tasks,
		api:      api,
		recorder: recorder,
		cfg:      cfg,
	}
}

// ProcessBatch runs one discovery batch while players remain, otherwise one
// FFA game batch
func (p *PlayerScanProcessor) ProcessBatch(ctx context.Context, job *models.ScanJob) (*BatchResult, error) {
	openPlayers, err := p.tasks.OpenPlayerTasks(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	var result *BatchResult
	if openPlayers > 0 {
		result, err = p.discover(ctx, job)
	} else {
		result, err = p.processGames(ctx, job)
	}
	if err != nil {
		return result, err
	}

	if openPlayers, err = p.tasks.OpenPlayerTasks(ctx, job.ID); err != nil {
		return result, err
	}
	openGames, err := p.tasks.OpenFFAGames(ctx, job.ID)
	if err != nil {
		return result, err
	}
	result.Done = openPlayers == 0 && openGames == 0
	return result, nil
}

func (p *PlayerScanProcessor) discover(ctx context.Context, job *models.ScanJob) (*BatchResult, error) {
	tasks, err := p.tasks.ClaimPlayerTasks(ctx, job.ID, p.cfg.PlayerBatchSize, p.cfg.StaleThreshold)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.PlayerBatchSize)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			return p.discoverPlayer(ctx, job, task)
		})
	}
	result := &BatchResult{Phase: PhaseDiscovery, Processed: len(tasks)}
	return result, g.Wait()
}

// wonPublicFFA reports whether a session is a public FFA win on the job's clan
func wonPublicFFA(job *models.ScanJob, s adapter.PlayerSession) bool {
	if !s.HasWon || s.GameType != types.GameTypePublic || s.GameMode != types.GameModeFFA {
		return false
	}
	return job.Tag() == "" || s.Tag() == job.Tag()
}

func (p *PlayerScanProcessor) discoverPlayer(ctx context.Context, job *models.ScanJob, task *models.PlayerTask) error {
	logger := logging.FromContext(ctx).WithField("player_id", task.PlayerID)

	sessions, err := p.api.PlayerSessions(ctx, task.PlayerID, job.StartDate, job.EndDate)
	if err != nil {
		if keepClaimed(ctx, err) {
			logger.WithError(err).Warn("player sessions deferred")
			return nil
		}
		logger.WithError(err).Info("player sessions unavailable")
		return deferOnCancel(ctx, p.tasks.CompletePlayerTask(ctx, job.ID, task.PlayerID))
	}

	var gameIDs []string
	for _, s := range sessions {
		if wonPublicFFA(job, s) {
			gameIDs = append(gameIDs, s.GameID)
		}
	}
	if len(gameIDs) > 0 {
		added, err := p.tasks.AddFFAGames(ctx, job.ID, gameIDs)
		if err != nil {
			return deferOnCancel(ctx, err)
		}
		logger.WithFields(logging.Fields{"wins": len(gameIDs), "new_games": added}).Debug("player sessions scanned")
	}

	return deferOnCancel(ctx, p.tasks.CompletePlayerTask(ctx, job.ID, task.PlayerID))
}

func (p *PlayerScanProcessor) processGames(ctx context.Context, job *models.ScanJob) (*BatchResult, error) {
	tasks, err := p.tasks.ClaimFFAGames(ctx, job.ID, p.cfg.FFAGameBatchSize, p.cfg.StaleThreshold)
	if err != nil {
		return nil, err
	}

	var recorded atomic.Int64
	var g errgroup.Group
	g.SetLimit(p.cfg.FFAGameBatchSize)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			n, err := p.processGame(ctx, job, task)
			recorded.Add(n)
			return err
		})
	}
	err = g.Wait()
	return &BatchResult{Phase: PhaseFFAGames, Processed: len(tasks), Recorded: recorded.Load()}, err
}

// skipReason returns why a game yields no record, or "" when the winner counts
func skipReason(job *models.ScanJob, info *adapter.GameInfo) string {
	if info.Config.RankedType != "" {
		return "ranked game"
	}
	winner := info.WinningPlayer()
	if winner == nil {
		return "no player winner"
	}
	if job.Tag() != "" && winner.Tag() != job.Tag() {
		return "winner not on clan"
	}
	return ""
}

func (p *PlayerScanProcessor) processGame(ctx context.Context, job *models.ScanJob, task *models.FFAGameTask) (int64, error) {
	logger := logging.FromContext(ctx).WithField("game_id", task.GameID)

	info, err := p.api.GameInfo(ctx, task.GameID)
	if err != nil {
		if keepClaimed(ctx, err) {
			logger.WithError(err).Warn("game detail deferred")
			return 0, nil
		}
		logger.WithError(err).Info("game detail unavailable")
		return 0, deferOnCancel(ctx, p.tasks.CompleteFFAGame(ctx, job.ID, task.GameID))
	}

	if reason := skipReason(job, info); reason != "" {
		logger.WithField("reason", reason).Debug("game skipped")
		return 0, deferOnCancel(ctx, p.tasks.CompleteFFAGame(ctx, job.ID, task.GameID))
	}

	winner := info.WinningPlayer()
	inserted, err := p.recorder.Record(ctx, &models.WinRecord{
		CommunityID: job.CommunityID,
		Username:    winner.Username,
		GameID:      task.GameID,
		GameMode:    types.GameModeFFA,
		Score:       0,
		GameStart:   info.Start,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record win of %s in %s: %w", winner.Username, task.GameID, err)
	}

	var recorded int64
	if inserted {
		recorded = 1
	}
	return recorded, deferOnCancel(ctx, p.tasks.CompleteFFAGame(ctx, job.ID, task.GameID))
}
