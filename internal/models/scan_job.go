// Package models provides data models for scan jobs, sub-tasks and win records.
package models

import (
	"time"

	"github.com/deshack/openfront-discord-bot/internal/types"
)

// ScanJob represents a historical win backfill for one community
type ScanJob struct {
	ID           string          `json:"id" db:"id"`
	CommunityID  string          `json:"communityId" db:"community_id"`
	ChannelID    string          `json:"channelId" db:"channel_id"`
	ClanTag      *string         `json:"clanTag,omitempty" db:"clan_tag"`
	JobType      types.JobType   `json:"jobType" db:"job_type"`
	Status       types.JobStatus `json:"status" db:"status"`
	StartDate    time.Time       `json:"startDate" db:"start_date"`
	EndDate      time.Time       `json:"endDate" db:"end_date"`
	RecordsAdded int64           `json:"recordsAdded" db:"records_added"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
	StartedAt    *time.Time      `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage *string         `json:"errorMessage,omitempty" db:"error_message"`

	// Lease held by the invocation currently working the job
	ClaimToken *string    `json:"-" db:"claim_token"`
	ClaimedAt  *time.Time `json:"-" db:"claimed_at"`
}

// Tag returns the tracked clan tag, or "" when the job has none
func (j *ScanJob) Tag() string {
	if j.ClanTag == nil {
		return ""
	}
	return *j.ClanTag
}

// ClanSessionTask is one winning clan match to record
type ClanSessionTask struct {
	JobID        string           `json:"jobId" db:"job_id"`
	GameID       string           `json:"gameId" db:"game_id"`
	Status       types.TaskStatus `json:"status" db:"status"`
	Score        float64          `json:"score" db:"score"`
	ErrorMessage *string          `json:"errorMessage,omitempty" db:"error_message"`
}

// PlayerTask is one registered player whose sessions must be discovered
type PlayerTask struct {
	JobID    string           `json:"jobId" db:"job_id"`
	PlayerID string           `json:"playerId" db:"player_id"`
	Status   types.TaskStatus `json:"status" db:"status"`
}

// FFAGameTask is one free-for-all game found during player discovery
type FFAGameTask struct {
	JobID  string           `json:"jobId" db:"job_id"`
	GameID string           `json:"gameId" db:"game_id"`
	Status types.TaskStatus `json:"status" db:"status"`
}

// TaskCounts counts the sub-tasks of one table by status
type TaskCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// Open returns the number of tasks still in the backlog
func (c TaskCounts) Open() int64 {
	return c.Pending + c.Processing
}

// Total returns the number of tasks in all statuses
func (c TaskCounts) Total() int64 {
	return c.Pending + c.Processing + c.Completed + c.Failed
}

// Add records n tasks with the given status
func (c *TaskCounts) Add(status types.TaskStatus, n int64) {
	switch status {
	case types.TaskStatusPending:
		c.Pending += n
	case types.TaskStatusProcessing:
		c.Processing += n
	case types.TaskStatusCompleted:
		c.Completed += n
	case types.TaskStatusFailed:
		c.Failed += n
	}
}
