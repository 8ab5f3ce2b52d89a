package job

import (
	"context"
	"errors"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/circuitbreaker"
	"github.com/deshack/openfront-discord-bot/internal/models"
)

// BatchProcessor advances one job by a single bounded batch
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, job *models.ScanJob) (*BatchResult, error)
}

// Phase names the sub-task table a batch worked on
type Phase string

const (
	PhaseClanSessions Phase = "clan_sessions"
	PhaseDiscovery    Phase = "discovery"
	PhaseFFAGames     Phase = "ffa_games"
)

// BatchResult summarises one batch
type BatchResult struct {
	Phase     Phase `json:"phase"`
	Processed int   `json:"processed"`
	Recorded  int64 `json:"recorded"`
	// Done is true once no sub-task of the job is pending or processing
	Done bool `json:"done"`
}

// ProcessorConfig holds batch sizes and the sub-task staleness threshold
type ProcessorConfig struct {
	ClanBatchSize    int
	PlayerBatchSize  int
	FFAGameBatchSize int
	StaleThreshold   time.Duration
}

// DefaultProcessorConfig returns batches of 50 clan games, 5 players and 40 FFA games
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		ClanBatchSize:    50,
		PlayerBatchSize:  5,
		FFAGameBatchSize: 40,
		StaleThreshold:   300 * time.Second,
	}
}

// keepClaimed reports whether a failed fetch should leave its sub-task
// processing instead of completing it without data: an open circuit or an
// ended ctx. The sub-task is claimed again once its claim passes
// StaleThreshold, the only case where an item is fetched more than once.
func keepClaimed(ctx context.Context, err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) || ctx.Err() != nil
}

// deferOnCancel drops a sub-task write error caused by ctx ending. The
// sub-task stays processing and is reclaimed after StaleThreshold.
func deferOnCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
