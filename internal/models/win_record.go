package models

import "time"

// WinRecord is one player's win in one game, counted once per community
type WinRecord struct {
	CommunityID string    `json:"communityId" db:"community_id"`
	Username    string    `json:"username" db:"username"`
	GameID      string    `json:"gameId" db:"game_id"`
	GameMode    string    `json:"gameMode" db:"game_mode"`
	Score       float64   `json:"score" db:"score"`
	GameStart   time.Time `json:"gameStart" db:"game_start"`
}

// LeaderboardEntry is one player's aggregate in a leaderboard window
type LeaderboardEntry struct {
	Username   string  `json:"username"`
	Wins       int64   `json:"wins"`
	TeamWins   int64   `json:"teamWins"`
	FFAWins    int64   `json:"ffaWins"`
	TotalScore float64 `json:"totalScore"`
}

// Leaderboard is one page of a ranked window
type Leaderboard struct {
	Entries    []LeaderboardEntry `json:"entries"`
	TotalCount int64              `json:"totalCount"`
}

// PlayerRank is a single player's standing in a leaderboard window
type PlayerRank struct {
	Username   string  `json:"username"`
	Rank       int64   `json:"rank"`
	Wins       int64   `json:"wins"`
	TotalScore float64 `json:"totalScore"`
}

// PlayerRegistration links a community member to a game player ID
type PlayerRegistration struct {
	CommunityID   string    `json:"communityId" db:"community_id"`
	DiscordUserID string    `json:"discordUserId" db:"discord_user_id"`
	PlayerID      string    `json:"playerId" db:"player_id"`
	ChannelID     string    `json:"channelId" db:"channel_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// Window is a half-open [Start, End) range of game start times.
// A nil bound is unbounded on that side.
type Window struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && !t.Before(*w.End) {
		return false
	}
	return true
}

// JobProgress is a scan job with its sub-task counts
type JobProgress struct {
	Job          *ScanJob   `json:"job"`
	ClanSessions TaskCounts `json:"clanSessions"`
	Players      TaskCounts `json:"players"`
	FFAGames     TaskCounts `json:"ffaGames"`
}
