package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/storage"
	"github.com/deshack/openfront-discord-bot/internal/types"
)

// Repository interfaces for dependency injection

// WinRecordStore persists win records and aggregates them into leaderboards
type WinRecordStore interface {
	Insert(ctx context.Context, rec *models.WinRecord) (bool, error)
	Leaderboard(ctx context.Context, communityID string, window models.Window, ranking types.RankingType, limit, offset int) ([]models.LeaderboardEntry, error)
	CountPlayers(ctx context.Context, communityID string, window models.Window) (int64, error)
	PlayerRank(ctx context.Context, communityID, username string, window models.Window, ranking types.RankingType) (*models.PlayerRank, error)
}

// LeaderboardCache caches query results under per-community generations
type LeaderboardCache interface {
	GenerateCacheKey(keyType storage.CacheKeyType, params ...string) string
	Generation(ctx context.Context, communityID string) (int64, error)
	BumpGeneration(ctx context.Context, communityID string) error
	Set(ctx context.Context, key string, value interface{}) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
}

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// StatsLedger records wins idempotently and answers windowed leaderboard
// queries over them. The cache is optional.
type StatsLedger struct {
	store WinRecordStore
	cache LeaderboardCache
	now   func() time.Time
}

// NewStatsLedger creates a ledger. Pass a nil cache to query the store directly.
func NewStatsLedger(store WinRecordStore, cache LeaderboardCache) *StatsLedger {
	return &StatsLedger{
		store: store,
		cache: cache,
		now:   time.Now,
	}
}

// Record stores a win unless the same (community, username, game) is already
// present. Reports whether a new record was inserted.
func (l *StatsLedger) Record(ctx context.Context, rec *models.WinRecord) (bool, error) {
	if rec.CommunityID == "" || rec.Username == "" || rec.GameID == "" {
		return false, apperrors.NewValidationError("winRecord", "community, username and game are required")
	}

	inserted, err := l.store.Insert(ctx, rec)
	if err != nil {
		return false, err
	}
	if inserted && l.cache != nil {
		if err := l.cache.BumpGeneration(ctx, rec.CommunityID); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("community_id", rec.CommunityID).
				Warn("failed to invalidate leaderboard cache")
		}
	}
	return inserted, nil
}

// LeaderboardQuery selects one page of a community leaderboard
type LeaderboardQuery struct {
	CommunityID string
	Period      types.Period
	Limit       int
	Offset      int
	// Month selects a calendar month for monthly queries; nil is the current month
	Month   *time.Time
	Ranking types.RankingType
}

// WindowFor returns the game start window of a period. The current month is
// open ended so games recorded late in the month are never cut off.
func WindowFor(period types.Period, month *time.Time, now time.Time) models.Window {
	if period == types.PeriodAllTime {
		return models.Window{}
	}

	now = now.UTC()
	ref := now
	if month != nil {
		ref = month.UTC()
	}
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)

	if ref.Year() == now.Year() && ref.Month() == now.Month() {
		return models.Window{Start: &start}
	}
	end := start.AddDate(0, 1, 0)
	return models.Window{Start: &start, End: &end}
}

func (q *LeaderboardQuery) normalize() error {
	if q.CommunityID == "" {
		return apperrors.NewValidationError("communityId", "must not be empty")
	}
	if q.Period == "" {
		q.Period = types.PeriodMonthly
	}
	if q.Period != types.PeriodMonthly && q.Period != types.PeriodAllTime {
		return apperrors.NewValidationError("period", fmt.Sprintf("unknown period %q", q.Period))
	}
	if q.Ranking == "" {
		q.Ranking = types.RankingWins
	}
	if q.Ranking != types.RankingWins && q.Ranking != types.RankingScore {
		return apperrors.NewValidationError("ranking", fmt.Sprintf("unknown ranking %q", q.Ranking))
	}
	if q.Limit <= 0 {
		q.Limit = defaultLeaderboardLimit
	}
	if q.Limit > maxLeaderboardLimit {
		q.Limit = maxLeaderboardLimit
	}
	if q.Offset < 0 {
		return apperrors.NewValidationError("offset", "must not be negative")
	}
	return nil
}

// windowKey identifies a window inside a cache key
func windowKey(w models.Window) string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "-"
		}
		return strconv.FormatInt(t.Unix(), 10)
	}
	return bound(w.Start) + "_" + bound(w.End)
}

// GetLeaderboard returns a ranked page of the community's window and the
// number of distinct players in it
func (l *StatsLedger) GetLeaderboard(ctx context.Context, q LeaderboardQuery) (*models.Leaderboard, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}
	window := WindowFor(q.Period, q.Month, l.now())

	key := l.cacheKey(ctx, storage.CacheKeyLeaderboard, q.CommunityID,
		windowKey(window), string(q.Ranking), strconv.Itoa(q.Limit), strconv.Itoa(q.Offset))

	var board models.Leaderboard
	if l.cacheGet(ctx, key, &board) {
		return &board, nil
	}

	entries, err := l.store.Leaderboard(ctx, q.CommunityID, window, q.Ranking, q.Limit, q.Offset)
	if err != nil {
		return nil, err
	}
	total, err := l.store.CountPlayers(ctx, q.CommunityID, window)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	board = models.Leaderboard{Entries: entries, TotalCount: total}
	l.cacheSet(ctx, key, &board)
	return &board, nil
}

// GetPlayerRank returns the player's standing in the window, or a not found
// error when the player has no wins in it
func (l *StatsLedger) GetPlayerRank(ctx context.Context, communityID, username string, period types.Period, month *time.Time, ranking types.RankingType) (*models.PlayerRank, error) {
	q := LeaderboardQuery{CommunityID: communityID, Period: period, Month: month, Ranking: ranking}
	if err := q.normalize(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" {
		return nil, apperrors.NewValidationError("username", "must not be empty")
	}
	window := WindowFor(q.Period, q.Month, l.now())

	key := l.cacheKey(ctx, storage.CacheKeyRank, communityID, windowKey(window), string(q.Ranking), username)

	var rank models.PlayerRank
	if l.cacheGet(ctx, key, &rank) {
		return &rank, nil
	}

	found, err := l.store.PlayerRank(ctx, communityID, username, window, q.Ranking)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apperrors.NewNotFoundError("player rank", username)
	}
	l.cacheSet(ctx, key, found)
	return found, nil
}

// cacheKey returns "" when caching is disabled or the generation is unreadable
func (l *StatsLedger) cacheKey(ctx context.Context, keyType storage.CacheKeyType, communityID string, params ...string) string {
	if l.cache == nil {
		return ""
	}
	gen, err := l.cache.Generation(ctx, communityID)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("leaderboard cache unavailable")
		return ""
	}
	parts := append([]string{communityID, strconv.FormatInt(gen, 10)}, params...)
	return l.cache.GenerateCacheKey(keyType, parts...)
}

func (l *StatsLedger) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if key == "" {
		return false
	}
	hit, err := l.cache.Get(ctx, key, dest)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("leaderboard cache read failed")
		return false
	}
	return hit
}

func (l *StatsLedger) cacheSet(ctx context.Context, key string, value interface{}) {
	if key == "" {
		return
	}
	if err := l.cache.Set(ctx, key, value); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("leaderboard cache write failed")
	}
}
