package storage

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/jackc/pgx/v5"
)

// WinRecordRepository stores per-community win records and aggregates them
// into leaderboards
type WinRecordRepository struct {
	db *PostgresDB
}

// NewWinRecordRepository creates a new win record repository
func NewWinRecordRepository(db *PostgresDB) *WinRecordRepository {
	return &WinRecordRepository{db: db}
}

// rankingOrder holds the only ORDER BY clauses a query may use
var rankingOrder = map[types.RankingType]string{
	types.RankingWins:  "wins DESC, total_score DESC, username ASC",
	types.RankingScore: "total_score DESC, wins DESC, username ASC",
}

func orderFor(ranking types.RankingType) (string, error) {
	order, ok := rankingOrder[ranking]
	if !ok {
		return "", fmt.Errorf("unknown ranking type %q", ranking)
	}
	return order, nil
}

// windowArgs converts the window to nullable unix-second bounds
func windowArgs(w models.Window) (start, end *int64) {
	if w.Start != nil {
		s := w.Start.Unix()
		start = &s
	}
	if w.End != nil {
		e := w.End.Unix()
		end = &e
	}
	return start, end
}

// aggregateQuery groups the community's records in the window per player.
// $1 community, $2 start, $3 end.
const aggregateQuery = `
	SELECT username,
		COUNT(*) AS wins,
		COUNT(*) FILTER (WHERE game_mode <> 'Free For All') AS team_wins,
		COUNT(*) FILTER (WHERE game_mode = 'Free For All') AS ffa_wins,
		COALESCE(SUM(score), 0)::float8 AS total_score
	FROM win_records
	WHERE community_id = $1
	  AND ($2::bigint IS NULL OR game_start >= $2)
	  AND ($3::bigint IS NULL OR game_start < $3)
	GROUP BY username
`

// Insert stores a win unless the community already has one for the same
// player and game. Existing rows are never modified. Reports whether a row
// was inserted.
func (r *WinRecordRepository) Insert(ctx context.Context, rec *models.WinRecord) (bool, error) {
	query := `
		INSERT INTO win_records (community_id, username, game_id, game_mode, score, game_start)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (community_id, username, game_id) DO NOTHING
	`

	result, err := r.db.Pool().Exec(ctx, query,
		rec.CommunityID,
		rec.Username,
		rec.GameID,
		rec.GameMode,
		rec.Score,
		rec.GameStart.Unix(),
	)
	if err != nil {
		return false, apperrors.NewDatabaseError("insert win record", err)
	}
	return result.RowsAffected() == 1, nil
}

// Leaderboard returns one page of players ranked within the window
func (r *WinRecordRepository) Leaderboard(ctx context.Context, communityID string, window models.Window, ranking types.RankingType, limit, offset int) ([]models.LeaderboardEntry, error) {
	order, err := orderFor(ranking)
	if err != nil {
		return nil, err
	}
	start, end := windowArgs(window)

	query := `SELECT username, wins, team_wins, ffa_wins, total_score FROM (` +
		aggregateQuery + `) agg ORDER BY ` + order + ` LIMIT $4 OFFSET $5`

	rows, err := r.db.Pool().Query(ctx, query, communityID, start, end, limit, offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("query leaderboard", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.LeaderboardEntry, error) {
		var e models.LeaderboardEntry
		err := row.Scan(&e.Username, &e.Wins, &e.TeamWins, &e.FFAWins, &e.TotalScore)
		return e, err
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError("query leaderboard", err)
	}
	return entries, nil
}

// CountPlayers returns the number of distinct players with a win in the window
func (r *WinRecordRepository) CountPlayers(ctx context.Context, communityID string, window models.Window) (int64, error) {
	start, end := windowArgs(window)
	query := `
		SELECT COUNT(DISTINCT username)
		FROM win_records
		WHERE community_id = $1
		  AND ($2::bigint IS NULL OR game_start >= $2)
		  AND ($3::bigint IS NULL OR game_start < $3)
	`

	var n int64
	if err := r.db.Pool().QueryRow(ctx, query, communityID, start, end).Scan(&n); err != nil {
		return 0, apperrors.NewDatabaseError("count leaderboard players", err)
	}
	return n, nil
}

// PlayerRank returns a player's 1-based position in the window, or nil when
// the player has no wins in it
func (r *WinRecordRepository) PlayerRank(ctx context.Context, communityID, username string, window models.Window, ranking types.RankingType) (*models.PlayerRank, error) {
	order, err := orderFor(ranking)
	if err != nil {
		return nil, err
	}
	start, end := windowArgs(window)

	query := `
		SELECT username, rank, wins, total_score FROM (
			SELECT username, wins, total_score,
				ROW_NUMBER() OVER (ORDER BY ` + order + `) AS rank
			FROM (` + aggregateQuery + `) agg
		) ranked
		WHERE username = $4
	`

	var rank models.PlayerRank
	err = r.db.Pool().QueryRow(ctx, query, communityID, start, end, username).Scan(
		&rank.Username,
		&rank.Rank,
		&rank.Wins,
		&rank.TotalScore,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("query player rank", err)
	}
	return &rank, nil
}
