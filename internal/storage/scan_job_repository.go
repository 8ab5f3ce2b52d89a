package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/jackc/pgx/v5"
)

// ScanJobRepository handles scan job persistence and the claim protocol.
// Every status change is a single conditional UPDATE ... RETURNING, so
// concurrent invocations never need an in-process lock.
type ScanJobRepository struct {
	db *PostgresDB
}

// NewScanJobRepository creates a new scan job repository
func NewScanJobRepository(db *PostgresDB) *ScanJobRepository {
	return &ScanJobRepository{db: db}
}

const scanJobColumns = `
	id::text, community_id, channel_id, clan_tag, job_type, status,
	start_date, end_date, records_added, created_at, started_at, completed_at,
	error_message, claim_token::text, claimed_at`

func scanScanJob(row pgx.Row) (*models.ScanJob, error) {
	var job models.ScanJob
	err := row.Scan(
		&job.ID,
		&job.CommunityID,
		&job.ChannelID,
		&job.ClanTag,
		&job.JobType,
		&job.Status,
		&job.StartDate,
		&job.EndDate,
		&job.RecordsAdded,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.ErrorMessage,
		&job.ClaimToken,
		&job.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// scanOptionalJob maps pgx.ErrNoRows to (nil, nil)
func scanOptionalJob(row pgx.Row, op string) (*models.ScanJob, error) {
	job, err := scanScanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError(op, err)
	}
	return job, nil
}

// CreateJob inserts a pending job together with its initial sub-tasks in one
// transaction. Duplicate sub-task keys are ignored.
func (r *ScanJobRepository) CreateJob(ctx context.Context, job *models.ScanJob, clanTasks []*models.ClanSessionTask, playerIDs []string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO scan_jobs (
				id, community_id, channel_id, clan_tag, job_type, status, start_date, end_date
			)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`
		err := tx.QueryRow(ctx, query,
			job.ID,
			job.CommunityID,
			job.ChannelID,
			job.ClanTag,
			job.JobType,
			types.JobStatusPending,
			job.StartDate,
			job.EndDate,
		).Scan(&job.CreatedAt)
		if err != nil {
			return apperrors.NewDatabaseError("create scan job", err)
		}
		job.Status = types.JobStatusPending

		batch := &pgx.Batch{}
		for _, task := range clanTasks {
			batch.Queue(`
				INSERT INTO clan_session_tasks (job_id, game_id, score)
				VALUES ($1::uuid, $2, $3)
				ON CONFLICT (job_id, game_id) DO NOTHING`,
				job.ID, task.GameID, task.Score)
		}
		for _, playerID := range playerIDs {
			batch.Queue(`
				INSERT INTO player_tasks (job_id, player_id)
				VALUES ($1::uuid, $2)
				ON CONFLICT (job_id, player_id) DO NOTHING`,
				job.ID, playerID)
		}
		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return apperrors.NewDatabaseError("create scan tasks", err)
		}
		return nil
	})
}

// GetJob retrieves a scan job by ID
func (r *ScanJobRepository) GetJob(ctx context.Context, jobID string) (*models.ScanJob, error) {
	query := `SELECT ` + scanJobColumns + ` FROM scan_jobs WHERE id = $1::uuid`

	job, err := scanScanJob(r.db.Pool().QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("scan job", jobID)
		}
		return nil, apperrors.NewDatabaseError("get scan job", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs of a community
func (r *ScanJobRepository) ListJobs(ctx context.Context, communityID string, limit int) ([]*models.ScanJob, error) {
	query := `
		SELECT ` + scanJobColumns + `
		FROM scan_jobs
		WHERE community_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, communityID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list scan jobs", err)
	}
	defer rows.Close()

	var jobs []*models.ScanJob
	for rows.Next() {
		job, err := scanScanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list scan jobs", err)
	}
	return jobs, nil
}

// ClaimPendingJob moves the oldest pending job to processing under a new lease.
// Returns nil when no job is pending.
func (r *ScanJobRepository) ClaimPendingJob(ctx context.Context, token string) (*models.ScanJob, error) {
	query := `
		UPDATE scan_jobs
		SET status = $2, started_at = NOW(), claimed_at = NOW(), claim_token = $1::uuid
		WHERE id = (
			SELECT id FROM scan_jobs
			WHERE status = ANY($3)
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = ANY($3)
		RETURNING ` + scanJobColumns

	row := r.db.Pool().QueryRow(ctx, query,
		token,
		types.JobStatusProcessing,
		[]string{string(types.JobStatusPending)},
	)
	return scanOptionalJob(row, "claim pending job")
}

// ClaimStaleJob takes over a processing job whose lease was released or has
// not been renewed within threshold. Sub-task progress is kept.
func (r *ScanJobRepository) ClaimStaleJob(ctx context.Context, token string, threshold time.Duration) (*models.ScanJob, error) {
	query := `
		UPDATE scan_jobs
		SET claimed_at = NOW(), claim_token = $1::uuid
		WHERE id = (
			SELECT id FROM scan_jobs
			WHERE status = $2
			  AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $3))
			ORDER BY claimed_at NULLS FIRST, created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		AND status = $2
		AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $3))
		RETURNING ` + scanJobColumns

	row := r.db.Pool().QueryRow(ctx, query,
		token,
		types.JobStatusProcessing,
		threshold.Seconds(),
	)
	return scanOptionalJob(row, "claim stale job")
}

// ReleaseJob drops the caller's lease so the next invocation can continue
// immediately. Reports false when the lease is no longer held.
func (r *ScanJobRepository) ReleaseJob(ctx context.Context, jobID, token string) (bool, error) {
	query := `
		UPDATE scan_jobs
		SET claimed_at = NULL, claim_token = NULL
		WHERE id = $1::uuid AND claim_token = $2::uuid AND status = $3
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, token, types.JobStatusProcessing)
	if err != nil {
		return false, apperrors.NewDatabaseError("release scan job", err)
	}
	return result.RowsAffected() == 1, nil
}

// CompleteJob marks the job completed if the caller still holds its lease.
// Returns nil when the lease was lost.
func (r *ScanJobRepository) CompleteJob(ctx context.Context, jobID, token string) (*models.ScanJob, error) {
	query := `
		UPDATE scan_jobs
		SET status = $3, completed_at = NOW(), claimed_at = NULL, claim_token = NULL
		WHERE id = $1::uuid AND claim_token = $2::uuid AND status = ANY($4)
		RETURNING ` + scanJobColumns

	row := r.db.Pool().QueryRow(ctx, query,
		jobID,
		token,
		types.JobStatusCompleted,
		types.JobStatusCompleted.AllowedFrom(),
	)
	return scanOptionalJob(row, "complete scan job")
}

// FailJob marks the job failed with message if the caller still holds its lease
func (r *ScanJobRepository) FailJob(ctx context.Context, jobID, token, message string) (bool, error) {
	query := `
		UPDATE scan_jobs
		SET status = $3, completed_at = NOW(), error_message = $5,
			claimed_at = NULL, claim_token = NULL
		WHERE id = $1::uuid AND claim_token = $2::uuid AND status = ANY($4)
	`

	result, err := r.db.Pool().Exec(ctx, query,
		jobID,
		token,
		types.JobStatusFailed,
		types.JobStatusFailed.AllowedFrom(),
		message,
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("fail scan job", err)
	}
	return result.RowsAffected() == 1, nil
}

// AddRecordsAdded increments the job's count of newly inserted win records
func (r *ScanJobRepository) AddRecordsAdded(ctx context.Context, jobID string, n int64) error {
	if n == 0 {
		return nil
	}
	query := `UPDATE scan_jobs SET records_added = records_added + $2 WHERE id = $1::uuid`

	if _, err := r.db.Pool().Exec(ctx, query, jobID, n); err != nil {
		return apperrors.NewDatabaseError("count records added", err)
	}
	return nil
}
