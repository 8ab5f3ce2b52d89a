package job

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/logging"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/google/uuid"
)

// finalizeTimeout bounds the store and notification calls made after a batch,
// which run even when the step's own deadline has passed
const finalizeTimeout = 30 * time.Second

// StepOutcome is what a step did with the job it claimed
type StepOutcome string

const (
	OutcomeIdle      StepOutcome = "idle"
	OutcomeReleased  StepOutcome = "released"
	OutcomeCompleted StepOutcome = "completed"
	OutcomeFailed    StepOutcome = "failed"
	// OutcomeLeaseLost means another invocation reclaimed the job mid-step
	OutcomeLeaseLost StepOutcome = "lease_lost"
)

// StepResult describes one scheduler invocation
type StepResult struct {
	StepID  string        `json:"stepId"`
	JobID   string        `json:"jobId,omitempty"`
	JobType types.JobType `json:"jobType,omitempty"`
	Outcome StepOutcome   `json:"outcome"`
	Batch   *BatchResult  `json:"batch,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Scheduler claims one job per invocation and advances it by one batch.
// Every state change is a conditional update in the store, so any number of
// schedulers may run at once.
type Scheduler struct {
	jobs           JobStore
	tasks          TaskStore
	processors     map[types.JobType]BatchProcessor
	notifier       Notifier
	staleThreshold time.Duration
	newToken       func() string
}

// NewScheduler creates a scheduler. notifier may be nil.
func NewScheduler(jobs JobStore, tasks TaskStore, processors map[types.JobType]BatchProcessor, notifier Notifier, staleThreshold time.Duration) *Scheduler {
	return &Scheduler{
		jobs:           jobs,
		tasks:          tasks,
		processors:     processors,
		notifier:       notifier,
		staleThreshold: staleThreshold,
		newToken:       uuid.NewString,
	}
}

// ClaimNextJob takes the oldest pending job, otherwise a processing job whose
// lease is stale or released. Returns nil when there is nothing to do.
func (s *Scheduler) ClaimNextJob(ctx context.Context) (*models.ScanJob, error) {
	job, err := s.jobs.ClaimPendingJob(ctx, s.newToken())
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending job: %w", err)
	}
	if job != nil {
		return job, nil
	}

	job, err = s.jobs.ClaimStaleJob(ctx, s.newToken(), s.staleThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale job: %w", err)
	}
	return job, nil
}

// Step claims a job, processes one batch and then completes, releases or
// fails it. A batch cut short by ctx releases the job instead of failing it.
// Errors are returned only when no job could be claimed.
func (s *Scheduler) Step(ctx context.Context) (*StepResult, error) {
	result := &StepResult{StepID: uuid.NewString(), Outcome: OutcomeIdle}
	logger := logging.FromContext(ctx).WithField("step_id", result.StepID)
	ctx = logging.WithLogger(ctx, logger)

	job, err := s.ClaimNextJob(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		logger.Debug("no scan job to run")
		return result, nil
	}

	result.JobID = job.ID
	result.JobType = job.JobType
	logger = logger.WithFields(logging.Fields{"job_id": job.ID, "job_type": job.JobType})
	ctx = logging.WithLogger(ctx, logger)
	token := ""
	if job.ClaimToken != nil {
		token = *job.ClaimToken
	}
	logger.Info("scan job claimed")

	batch, err := s.runBatch(ctx, job)
	result.Batch = batch

	// the batch may have used up the deadline; finishing must still happen
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if batch != nil && batch.Recorded > 0 {
		if err := s.jobs.AddRecordsAdded(fctx, job.ID, batch.Recorded); err != nil {
			logger.WithError(err).Error("failed to count recorded wins")
		}
	}

	switch {
	case err != nil && ctx.Err() != nil:
		// cut short by the step deadline or shutdown, not by the job itself
		logger.WithError(err).Warn("scan batch interrupted")
		s.release(fctx, job, token, result)
	case err != nil:
		s.fail(fctx, job, token, err, result)
	case batch.Done:
		s.complete(fctx, job, token, result)
	default:
		s.release(fctx, job, token, result)
	}
	return result, nil
}

// runBatch dispatches to the job type's processor. A panic fails the job.
func (s *Scheduler) runBatch(ctx context.Context, job *models.ScanJob) (batch *BatchResult, err error) {
	processor, ok := s.processors[job.JobType]
	if !ok {
		return nil, fmt.Errorf("no processor for job type %q", job.JobType)
	}

	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).WithField("stack", string(debug.Stack())).Error("scan batch panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return processor.ProcessBatch(ctx, job)
}

func (s *Scheduler) fail(ctx context.Context, job *models.ScanJob, token string, cause error, result *StepResult) {
	logger := logging.FromContext(ctx).WithError(cause)
	result.Error = cause.Error()

	failed, err := s.jobs.FailJob(ctx, job.ID, token, cause.Error())
	if err != nil {
		logger.WithField("fail_error", err.Error()).Error("failed to mark scan job failed")
		result.Outcome = OutcomeReleased
		return
	}
	if !failed {
		logger.Warn("scan job lease lost before failing")
		result.Outcome = OutcomeLeaseLost
		return
	}
	logger.Error("scan job failed")
	result.Outcome = OutcomeFailed
}

func (s *Scheduler) release(ctx context.Context, job *models.ScanJob, token string, result *StepResult) {
	logger := logging.FromContext(ctx)

	released, err := s.jobs.ReleaseJob(ctx, job.ID, token)
	if err != nil {
		// the lease expires on its own after the stale threshold
		logger.WithError(err).Warn("failed to release scan job")
	} else if !released {
		logger.Warn("scan job lease lost before release")
		result.Outcome = OutcomeLeaseLost
		return
	}
	result.Outcome = OutcomeReleased
	if result.Batch == nil {
		return
	}
	logger.WithFields(logging.Fields{
		"phase":     result.Batch.Phase,
		"processed": result.Batch.Processed,
		"recorded":  result.Batch.Recorded,
	}).Info("scan batch done")
}

func (s *Scheduler) complete(ctx context.Context, job *models.ScanJob, token string, result *StepResult) {
	logger := logging.FromContext(ctx)

	completed, err := s.jobs.CompleteJob(ctx, job.ID, token)
	if err != nil {
		logger.WithError(err).Error("failed to complete scan job")
		result.Error = err.Error()
		result.Outcome = OutcomeReleased
		return
	}
	if completed == nil {
		logger.Warn("scan job lease lost before completion")
		result.Outcome = OutcomeLeaseLost
		return
	}
	result.Outcome = OutcomeCompleted
	logger.WithField("records_added", completed.RecordsAdded).Info("scan job completed")

	if s.notifier == nil {
		return
	}
	clan, players, ffa, err := s.tasks.Progress(ctx, job.ID)
	if err != nil {
		logger.WithError(err).Warn("failed to load scan progress for notification")
		return
	}
	msg := CompletionMessage(&models.JobProgress{Job: completed, ClanSessions: clan, Players: players, FFAGames: ffa})
	if err := s.notifier.Notify(ctx, completed.ChannelID, msg); err != nil {
		logger.WithError(err).Warn("failed to send scan completion message")
	}
}
