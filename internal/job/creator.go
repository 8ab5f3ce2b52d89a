package job

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/google/uuid"
)

// CreateScanJobInput represents input for creating a scan job
type CreateScanJobInput struct {
	CommunityID string        `json:"communityId"`
	ChannelID   string        `json:"channelId"`
	ClanTag     *string       `json:"clanTag,omitempty"`
	JobType     types.JobType `json:"jobType"`
	StartDate   time.Time     `json:"startDate"`
	EndDate     time.Time     `json:"endDate"`
}

// Creator creates scan jobs with their initial sub-tasks
type Creator struct {
	jobs          JobStore
	tasks         TaskStore
	registrations RegistrationStore
	api           StatsAPI
}

// NewCreator creates a job creator
func NewCreator(jobs JobStore, tasks TaskStore, registrations RegistrationStore, api StatsAPI) *Creator {
	return &Creator{
		jobs:          jobs,
		tasks:         tasks,
		registrations: registrations,
		api:           api,
	}
}

func (in *CreateScanJobInput) validate() error {
	in.CommunityID = strings.TrimSpace(in.CommunityID)
	in.ChannelID = strings.TrimSpace(in.ChannelID)
	if in.ClanTag != nil {
		tag := strings.ToUpper(strings.TrimSpace(*in.ClanTag))
		if tag == "" {
			in.ClanTag = nil
		} else {
			in.ClanTag = &tag
		}
	}

	switch {
	case in.CommunityID == "":
		return apperrors.NewValidationError("communityId", "must not be empty")
	case in.ChannelID == "":
		return apperrors.NewValidationError("channelId", "must not be empty")
	case !in.JobType.Valid():
		return apperrors.NewValidationError("jobType", "must be clan or players")
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return apperrors.NewValidationError("startDate", "start and end dates are required")
	case in.StartDate.After(in.EndDate):
		return apperrors.NewValidationError("startDate", "must not be after endDate")
	case in.JobType == types.JobTypeClanScan && in.ClanTag == nil:
		return apperrors.NewValidationError("clanTag", "required for clan scans")
	}
	return nil
}

// CreateScanJob validates input, discovers the job's initial sub-tasks and
// stores the job as pending
func (c *Creator) CreateScanJob(ctx context.Context, input CreateScanJobInput) (*models.ScanJob, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	job := &models.ScanJob{
		ID:          uuid.NewString(),
		CommunityID: input.CommunityID,
		ChannelID:   input.ChannelID,
		ClanTag:     input.ClanTag,
		JobType:     input.JobType,
		Status:      types.JobStatusPending,
		StartDate:   input.StartDate.UTC(),
		EndDate:     input.EndDate.UTC(),
	}

	var clanTasks []*models.ClanSessionTask
	var playerIDs []string
	var err error
	switch job.JobType {
	case types.JobTypeClanScan:
		clanTasks, err = c.clanTasks(ctx, job)
	case types.JobTypePlayerScan:
		playerIDs, err = c.playerIDs(ctx, job.CommunityID)
	}
	if err != nil {
		return nil, err
	}

	if err := c.jobs.CreateJob(ctx, job, clanTasks, playerIDs); err != nil {
		return nil, err
	}

	logging.FromContext(ctx).WithFields(logging.Fields{
		"job_id":       job.ID,
		"job_type":     job.JobType,
		"community_id": job.CommunityID,
		"clan_games":   len(clanTasks),
		"players":      len(playerIDs),
	}).Info("scan job created")
	return job, nil
}

// clanTasks returns one task per distinct winning game of the clan
func (c *Creator) clanTasks(ctx context.Context, job *models.ScanJob) ([]*models.ClanSessionTask, error) {
	sessions, err := c.api.ClanSessions(ctx, job.Tag(), job.StartDate, job.EndDate)
	if err != nil {
		return nil, apperrors.NewUpstreamError("openfront", err)
	}

	seen := make(map[string]bool)
	var tasks []*models.ClanSessionTask
	for _, s := range sessions {
		if !s.HasWon || s.GameID == "" || seen[s.GameID] {
			continue
		}
		seen[s.GameID] = true
		tasks = append(tasks, &models.ClanSessionTask{
			JobID:  job.ID,
			GameID: s.GameID,
			Status: types.TaskStatusPending,
			Score:  s.Score,
		})
	}
	return tasks, nil
}

// playerIDs returns the distinct player IDs registered in the community
func (c *Creator) playerIDs(ctx context.Context, communityID string) ([]string, error) {
	regs, err := c.registrations.ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var ids []string
	for _, reg := range regs {
		if reg.PlayerID == "" || seen[reg.PlayerID] {
			continue
		}
		seen[reg.PlayerID] = true
		ids = append(ids, reg.PlayerID)
	}
	return ids, nil
}

// GetProgress returns a job with its sub-task counts
func (c *Creator) GetProgress(ctx context.Context, jobID string) (*models.JobProgress, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, apperrors.NewValidationError("jobId", "must be a UUID")
	}

	job, err := c.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	clan, players, ffa, err := c.tasks.Progress(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &models.JobProgress{Job: job, ClanSessions: clan, Players: players, FFAGames: ffa}, nil
}

// maxListedJobs bounds ListJobs
const maxListedJobs = 50

// ListJobs returns a community's most recent scan jobs, newest first
func (c *Creator) ListJobs(ctx context.Context, communityID string, limit int) ([]*models.ScanJob, error) {
	if strings.TrimSpace(communityID) == "" {
		return nil, apperrors.NewValidationError("communityId", "must not be empty")
	}
	if limit <= 0 || limit > maxListedJobs {
		limit = maxListedJobs
	}

	jobs, err := c.jobs.ListJobs(ctx, communityID, limit)
	if err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []*models.ScanJob{}
	}
	return jobs, nil
}
