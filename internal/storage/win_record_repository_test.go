package storage

import (
	"testing"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func win(user, game, mode string, score float64, start time.Time) *models.WinRecord {
	return &models.WinRecord{
		CommunityID: "guild-1",
		Username:    user,
		GameID:      game,
		GameMode:    mode,
		Score:       score,
		GameStart:   start,
	}
}

func TestWinRecordRepository_InsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWinRecordRepository(db)
	ctx := testContext(t)
	start := time.Date(2025, 11, 5, 12, 0, 0, 0, time.UTC)

	inserted, err := repo.Insert(ctx, win("Alice", "g1", "Team", 50, start))
	require.NoError(t, err)
	assert.True(t, inserted)

	// second call with a different score must not overwrite
	inserted, err = repo.Insert(ctx, win("Alice", "g1", "Team", 999, start))
	require.NoError(t, err)
	assert.False(t, inserted)

	entries, err := repo.Leaderboard(ctx, "guild-1", models.Window{}, types.RankingWins, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Wins)
	assert.Equal(t, 50.0, entries[0].TotalScore)

	// the stored game start falls in its own month only
	monthEnd := start.AddDate(0, 1, 0)
	before := start.Add(-time.Second)
	count, err := repo.CountPlayers(ctx, "guild-1", models.Window{Start: &start, End: &monthEnd})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	count, err = repo.CountPlayers(ctx, "guild-1", models.Window{End: &before})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestWinRecordRepository_LeaderboardWindowAndOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWinRecordRepository(db)
	ctx := testContext(t)

	oct := time.Date(2025, 10, 31, 23, 59, 59, 0, time.UTC)
	nov := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	dec := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	for _, rec := range []*models.WinRecord{
		win("Alice", "g1", "Team", 10, nov),
		win("Alice", "g2", "Free For All", 0, nov.Add(time.Hour)),
		win("Bob", "g1", "Team", 10, nov),
		win("Bob", "g3", "Team", 40, nov.Add(2*time.Hour)),
		win("Carol", "g4", "Team", 500, oct),
		win("Dave", "g5", "Team", 5, dec),
	} {
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
	}

	window := models.Window{Start: &nov, End: &dec}

	entries, err := repo.Leaderboard(ctx, "guild-1", window, types.RankingWins, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// equal wins: Bob has more score
	assert.Equal(t, "Bob", entries[0].Username)
	assert.Equal(t, models.LeaderboardEntry{Username: "Alice", Wins: 2, TeamWins: 1, FFAWins: 1, TotalScore: 10}, entries[1])

	count, err := repo.CountPlayers(ctx, "guild-1", window)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	all, err := repo.Leaderboard(ctx, "guild-1", models.Window{}, types.RankingScore, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "Carol", all[0].Username)

	page, err := repo.Leaderboard(ctx, "guild-1", models.Window{}, types.RankingScore, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[2], page[0])

	rank, err := repo.PlayerRank(ctx, "guild-1", "Alice", window, types.RankingWins)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, int64(2), rank.Rank)
	assert.Equal(t, int64(2), rank.Wins)

	missing, err := repo.PlayerRank(ctx, "guild-1", "Carol", window, types.RankingWins)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWinRecordRepository_RankingWinsVersusScore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewWinRecordRepository(db)
	ctx := testContext(t)
	nov := time.Date(2025, 11, 3, 18, 0, 0, 0, time.UTC)

	// A: 3 wins for 100 points, B: 2 wins for 500 points
	for _, rec := range []*models.WinRecord{
		win("A", "a1", "Team", 40, nov),
		win("A", "a2", "Team", 30, nov.Add(time.Hour)),
		win("A", "a3", "Team", 30, nov.Add(2*time.Hour)),
		win("B", "b1", "Team", 300, nov),
		win("B", "b2", "Team", 200, nov.Add(time.Hour)),
	} {
		rec.CommunityID = "guild-rank"
		_, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
	}

	byWins, err := repo.Leaderboard(ctx, "guild-rank", models.Window{}, types.RankingWins, 10, 0)
	require.NoError(t, err)
	require.Len(t, byWins, 2)
	assert.Equal(t, []string{"A", "B"}, []string{byWins[0].Username, byWins[1].Username})
	assert.Equal(t, int64(3), byWins[0].Wins)
	assert.Equal(t, 100.0, byWins[0].TotalScore)

	byScore, err := repo.Leaderboard(ctx, "guild-rank", models.Window{}, types.RankingScore, 10, 0)
	require.NoError(t, err)
	require.Len(t, byScore, 2)
	assert.Equal(t, []string{"B", "A"}, []string{byScore[0].Username, byScore[1].Username})
	assert.Equal(t, 500.0, byScore[0].TotalScore)

	rank, err := repo.PlayerRank(ctx, "guild-rank", "B", models.Window{}, types.RankingWins)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, int64(2), rank.Rank)

	rank, err = repo.PlayerRank(ctx, "guild-rank", "B", models.Window{}, types.RankingScore)
	require.NoError(t, err)
	require.NotNil(t, rank)
	assert.Equal(t, int64(1), rank.Rank)
}
