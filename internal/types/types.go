// Package types provides common type definitions for the scan pipeline and leaderboards.
package types

import (
	"fmt"
	"strings"
)

// JobType represents the kind of historical scan a job performs
type JobType string

const (
	// JobTypeClanScan scans the winning team sessions of a clan
	JobTypeClanScan JobType = "clan"
	// JobTypePlayerScan scans the free-for-all wins of registered players
	JobTypePlayerScan JobType = "players"
)

// Valid reports whether t is a known job type
func (t JobType) Valid() bool {
	return t == JobTypeClanScan || t == JobTypePlayerScan
}

// ParseJobType parses a job type from user input
func ParseJobType(s string) (JobType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clan", "clan_scan", "clanscan":
		return JobTypeClanScan, nil
	case "players", "player", "player_scan", "playerscan":
		return JobTypePlayerScan, nil
	default:
		return "", fmt.Errorf("unknown job type %q", s)
	}
}

// JobStatus represents the lifecycle state of a scan job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TaskStatus represents the lifecycle state of a scan sub-task
// (clan session, player, or FFA game)
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// transitions maps a target status to the statuses it may be entered from.
// Processing -> Processing is a stale reclaim.
var transitions = map[string][]string{
	"processing": {"pending", "processing"},
	"completed":  {"processing"},
	"failed":     {"processing"},
}

func allowedFrom(to string) []string {
	return transitions[to]
}

func canTransition(from, to string) bool {
	for _, s := range transitions[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Terminal reports whether the job can never change status again
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// AllowedFrom returns the statuses a job may move to s from.
// Store updates use this as their status guard.
func (s JobStatus) AllowedFrom() []string {
	return allowedFrom(string(s))
}

// CanTransition reports whether a job may move from s to next
func (s JobStatus) CanTransition(next JobStatus) bool {
	return canTransition(string(s), string(next))
}

// Terminal reports whether the task can never change status again
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Valid reports whether s is a known task status
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// AllowedFrom returns the statuses a task may move to s from
func (s TaskStatus) AllowedFrom() []string {
	return allowedFrom(string(s))
}

// CanTransition reports whether a task may move from s to next
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	return canTransition(string(s), string(next))
}

// OpenTaskStatuses are the statuses that still count as backlog
var OpenTaskStatuses = []string{string(TaskStatusPending), string(TaskStatusProcessing)}

// Period is the aggregation window of a leaderboard
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

// ParsePeriod parses a leaderboard period, defaulting to monthly
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "monthly", "month":
		return PeriodMonthly, nil
	case "all_time", "alltime", "all-time", "all":
		return PeriodAllTime, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// RankingType selects the primary sort key of a leaderboard
type RankingType string

const (
	RankingWins  RankingType = "wins"
	RankingScore RankingType = "score"
)

// ParseRankingType parses a ranking type, defaulting to wins
func ParseRankingType(s string) (RankingType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wins":
		return RankingWins, nil
	case "score", "points":
		return RankingScore, nil
	default:
		return "", fmt.Errorf("unknown ranking type %q", s)
	}
}

// Game modes and types as reported by the game-stats API
const (
	GameModeFFA  = "Free For All"
	GameModeTeam = "Team"

	GameTypePublic       = "Public"
	GameTypePrivate      = "Private"
	GameTypeSingleplayer = "Singleplayer"
)

// ValidateTransition returns an error when a job may not move from one status to another
func ValidateTransition(from, to JobStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid status transition %s -> %s", from, to)
	}
	return nil
}
