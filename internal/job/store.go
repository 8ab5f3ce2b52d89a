// Package job runs historical scan jobs: creating them, claiming them race
// free and advancing them one bounded batch per invocation.
package job

import (
	"context"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/adapter"
	"github.com/deshack/openfront-discord-bot/internal/models"
)

// JobStore persists scan jobs and their leases
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ScanJob, clanTasks []*models.ClanSessionTask, playerIDs []string) error
	GetJob(ctx context.Context, jobID string) (*models.ScanJob, error)
	ListJobs(ctx context.Context, communityID string, limit int) ([]*models.ScanJob, error)
	ClaimPendingJob(ctx context.Context, token string) (*models.ScanJob, error)
	ClaimStaleJob(ctx context.Context, token string, threshold time.Duration) (*models.ScanJob, error)
	ReleaseJob(ctx context.Context, jobID, token string) (bool, error)
	CompleteJob(ctx context.Context, jobID, token string) (*models.ScanJob, error)
	FailJob(ctx context.Context, jobID, token, message string) (bool, error)
	AddRecordsAdded(ctx context.Context, jobID string, n int64) error
}

// TaskStore persists the sub-tasks of scan jobs
type TaskStore interface {
	ClaimClanTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.ClanSessionTask, error)
	CompleteClanTask(ctx context.Context, jobID, gameID string, errMsg *string) error
	OpenClanTasks(ctx context.Context, jobID string) (int64, error)

	ClaimPlayerTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.PlayerTask, error)
	CompletePlayerTask(ctx context.Context, jobID, playerID string) error
	OpenPlayerTasks(ctx context.Context, jobID string) (int64, error)

	AddFFAGames(ctx context.Context, jobID string, gameIDs []string) (int64, error)
	ClaimFFAGames(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.FFAGameTask, error)
	CompleteFFAGame(ctx context.Context, jobID, gameID string) error
	OpenFFAGames(ctx context.Context, jobID string) (int64, error)

	Progress(ctx context.Context, jobID string) (clan, players, ffa models.TaskCounts, err error)
}

// RegistrationStore lists the registered players of a community
type RegistrationStore interface {
	ListByCommunity(ctx context.Context, communityID string) ([]*models.PlayerRegistration, error)
}

// StatsAPI is the part of the game-stats API the scan pipeline reads
type StatsAPI interface {
	ClanSessions(ctx context.Context, clanTag string, start, end time.Time) ([]adapter.ClanSession, error)
	PlayerSessions(ctx context.Context, playerID string, start, end time.Time) ([]adapter.PlayerSession, error)
	GameInfo(ctx context.Context, gameID string) (*adapter.GameInfo, error)
}

// Recorder stores a win once per (community, username, game)
type Recorder interface {
	Record(ctx context.Context, rec *models.WinRecord) (bool, error)
}

// Notifier delivers a plain text message to a channel
type Notifier interface {
	Notify(ctx context.Context, channelID, content string) error
}
