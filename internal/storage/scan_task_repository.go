package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/jackc/pgx/v5"
)

// ScanTaskRepository handles the per-job sub-task tables: clan sessions,
// players and discovered FFA games
type ScanTaskRepository struct {
	db *PostgresDB
}

// NewScanTaskRepository creates a new scan task repository
func NewScanTaskRepository(db *PostgresDB) *ScanTaskRepository {
	return &ScanTaskRepository{db: db}
}

// taskTable describes one sub-task table; names come from this file only
type taskTable struct {
	name string
	key  string
}

var (
	clanSessionTable = taskTable{name: "clan_session_tasks", key: "game_id"}
	playerTable      = taskTable{name: "player_tasks", key: "player_id"}
	ffaGameTable     = taskTable{name: "ffa_game_tasks", key: "game_id"}
)

// claimQuery moves up to $2 pending or stale-processing rows of job $1 to
// processing and returns them
func (t taskTable) claimQuery(returning string) string {
	return fmt.Sprintf(`
		UPDATE %[1]s
		SET status = $4, started_at = NOW()
		WHERE (job_id, %[2]s) IN (
			SELECT job_id, %[2]s FROM %[1]s
			WHERE job_id = $1::uuid
			  AND (status = $5 OR (status = $4 AND started_at < NOW() - make_interval(secs => $3)))
			ORDER BY %[2]s
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[3]s
	`, t.name, t.key, returning)
}

func (t taskTable) claimArgs(jobID string, limit int, stale time.Duration) []interface{} {
	return []interface{}{jobID, limit, stale.Seconds(), types.TaskStatusProcessing, types.TaskStatusPending}
}

func (r *ScanTaskRepository) completeTask(ctx context.Context, t taskTable, jobID, key string, errMsg *string) error {
	setError := errorColumn(t, errMsg)
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3, completed_at = NOW()%s
		WHERE job_id = $1::uuid AND %s = $2 AND status = ANY($4)
	`, t.name, setError, t.key)

	args := []interface{}{jobID, key, types.TaskStatusCompleted, types.TaskStatusCompleted.AllowedFrom()}
	if setError != "" {
		args = append(args, *errMsg)
	}

	if _, err := r.db.Pool().Exec(ctx, query, args...); err != nil {
		return apperrors.NewDatabaseError("complete "+t.name, err)
	}
	return nil
}

// errorColumn returns the SET fragment for error_message; only clan session
// tasks carry one
func errorColumn(t taskTable, errMsg *string) string {
	if errMsg == nil || t != clanSessionTable {
		return ""
	}
	return ", error_message = $5"
}

func (r *ScanTaskRepository) countTasks(ctx context.Context, t taskTable, jobID string) (models.TaskCounts, error) {
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM %s WHERE job_id = $1::uuid GROUP BY status`, t.name)

	var counts models.TaskCounts
	rows, err := r.db.Pool().Query(ctx, query, jobID)
	if err != nil {
		return counts, apperrors.NewDatabaseError("count "+t.name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var status types.TaskStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts.Add(status, n)
	}
	if err := rows.Err(); err != nil {
		return counts, apperrors.NewDatabaseError("count "+t.name, err)
	}
	return counts, nil
}

func (r *ScanTaskRepository) openCount(ctx context.Context, t taskTable, jobID string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE job_id = $1::uuid AND status = ANY($2)`, t.name)

	var n int64
	if err := r.db.Pool().QueryRow(ctx, query, jobID, types.OpenTaskStatuses).Scan(&n); err != nil {
		return 0, apperrors.NewDatabaseError("count open "+t.name, err)
	}
	return n, nil
}

// ClaimClanTasks claims up to limit clan session tasks ordered by game ID
func (r *ScanTaskRepository) ClaimClanTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.ClanSessionTask, error) {
	query := clanSessionTable.claimQuery(`job_id::text, game_id, status, score, error_message`)

	rows, err := r.db.Pool().Query(ctx, query, clanSessionTable.claimArgs(jobID, limit, stale)...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim clan tasks", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.ClanSessionTask, error) {
		var task models.ClanSessionTask
		err := row.Scan(&task.JobID, &task.GameID, &task.Status, &task.Score, &task.ErrorMessage)
		return &task, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim clan tasks", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].GameID < tasks[j].GameID })
	return tasks, nil
}

// CompleteClanTask marks a clan session task completed, optionally recording why
// no win was recorded
func (r *ScanTaskRepository) CompleteClanTask(ctx context.Context, jobID, gameID string, errMsg *string) error {
	return r.completeTask(ctx, clanSessionTable, jobID, gameID, errMsg)
}

// OpenClanTasks returns the number of pending or processing clan session tasks
func (r *ScanTaskRepository) OpenClanTasks(ctx context.Context, jobID string) (int64, error) {
	return r.openCount(ctx, clanSessionTable, jobID)
}

// ClaimPlayerTasks claims up to limit player tasks ordered by player ID
func (r *ScanTaskRepository) ClaimPlayerTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.PlayerTask, error) {
	query := playerTable.claimQuery(`job_id::text, player_id, status`)

	rows, err := r.db.Pool().Query(ctx, query, playerTable.claimArgs(jobID, limit, stale)...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim player tasks", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.PlayerTask, error) {
		var task models.PlayerTask
		err := row.Scan(&task.JobID, &task.PlayerID, &task.Status)
		return &task, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim player tasks", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].PlayerID < tasks[j].PlayerID })
	return tasks, nil
}

// CompletePlayerTask marks a player task completed
func (r *ScanTaskRepository) CompletePlayerTask(ctx context.Context, jobID, playerID string) error {
	return r.completeTask(ctx, playerTable, jobID, playerID, nil)
}

// OpenPlayerTasks returns the number of pending or processing player tasks
func (r *ScanTaskRepository) OpenPlayerTasks(ctx context.Context, jobID string) (int64, error) {
	return r.openCount(ctx, playerTable, jobID)
}

// AddFFAGames inserts pending FFA game tasks, ignoring games already known
// for the job. Returns the number of new rows.
func (r *ScanTaskRepository) AddFFAGames(ctx context.Context, jobID string, gameIDs []string) (int64, error) {
	if len(gameIDs) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO ffa_game_tasks (job_id, game_id)
		SELECT $1::uuid, g FROM unnest($2::text[]) AS g
		ON CONFLICT (job_id, game_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, gameIDs)
	if err != nil {
		return 0, apperrors.NewDatabaseError("add ffa games", err)
	}
	return result.RowsAffected(), nil
}

// ClaimFFAGames claims up to limit FFA game tasks ordered by game ID
func (r *ScanTaskRepository) ClaimFFAGames(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.FFAGameTask, error) {
	query := ffaGameTable.claimQuery(`job_id::text, game_id, status`)

	rows, err := r.db.Pool().Query(ctx, query, ffaGameTable.claimArgs(jobID, limit, stale)...)
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim ffa games", err)
	}

	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.FFAGameTask, error) {
		var task models.FFAGameTask
		err := row.Scan(&task.JobID, &task.GameID, &task.Status)
		return &task, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("claim ffa games", err)
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].GameID < tasks[j].GameID })
	return tasks, nil
}

// CompleteFFAGame marks an FFA game task completed
func (r *ScanTaskRepository) CompleteFFAGame(ctx context.Context, jobID, gameID string) error {
	return r.completeTask(ctx, ffaGameTable, jobID, gameID, nil)
}

// OpenFFAGames returns the number of pending or processing FFA game tasks
func (r *ScanTaskRepository) OpenFFAGames(ctx context.Context, jobID string) (int64, error) {
	return r.openCount(ctx, ffaGameTable, jobID)
}

// Progress returns per-status counts of all three sub-task tables
func (r *ScanTaskRepository) Progress(ctx context.Context, jobID string) (clan, players, ffa models.TaskCounts, err error) {
	if clan, err = r.countTasks(ctx, clanSessionTable, jobID); err != nil {
		return
	}
	if players, err = r.countTasks(ctx, playerTable, jobID); err != nil {
		return
	}
	ffa, err = r.countTasks(ctx, ffaGameTable, jobID)
	return
}
