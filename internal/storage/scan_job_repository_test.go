package storage

import (
	"sync"
	"testing"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(jobType types.JobType) *models.ScanJob {
	tag := "FOO"
	return &models.ScanJob{
		ID:          uuid.NewString(),
		CommunityID: "guild-1",
		ChannelID:   "chan-1",
		ClanTag:     &tag,
		JobType:     jobType,
		StartDate:   time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 11, 30, 23, 59, 59, 0, time.UTC),
	}
}

func TestScanJobRepository_ClaimPendingFIFO(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)
	ctx := testContext(t)

	first := newTestJob(types.JobTypeClanScan)
	second := newTestJob(types.JobTypePlayerScan)
	require.NoError(t, repo.CreateJob(ctx, first, nil, nil))
	require.NoError(t, repo.CreateJob(ctx, second, nil, []string{"p1"}))

	claimed, err := repo.ClaimPendingJob(ctx, uuid.NewString())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, types.JobStatusProcessing, claimed.Status)
	assert.NotNil(t, claimed.StartedAt)
	assert.NotNil(t, claimed.ClaimToken)

	claimed, err = repo.ClaimPendingJob(ctx, uuid.NewString())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, second.ID, claimed.ID)

	claimed, err = repo.ClaimPendingJob(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestScanJobRepository_ConcurrentClaimIsExclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)
	ctx := testContext(t)

	require.NoError(t, repo.CreateJob(ctx, newTestJob(types.JobTypeClanScan), nil, nil))

	const callers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := repo.ClaimPendingJob(ctx, uuid.NewString())
			assert.NoError(t, err)
			if job != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestScanJobRepository_StaleAndReleasedReclaim(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)
	ctx := testContext(t)

	job := newTestJob(types.JobTypeClanScan)
	require.NoError(t, repo.CreateJob(ctx, job, nil, nil))

	token := uuid.NewString()
	_, err := repo.ClaimPendingJob(ctx, token)
	require.NoError(t, err)

	// fresh lease is not stale
	stale, err := repo.ClaimStaleJob(ctx, uuid.NewString(), 300*time.Second)
	require.NoError(t, err)
	assert.Nil(t, stale)

	// another invocation cannot release a lease it does not hold
	released, err := repo.ReleaseJob(ctx, job.ID, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, released)

	released, err = repo.ReleaseJob(ctx, job.ID, token)
	require.NoError(t, err)
	assert.True(t, released)

	next := uuid.NewString()
	stale, err = repo.ClaimStaleJob(ctx, next, 300*time.Second)
	require.NoError(t, err)
	require.NotNil(t, stale)
	assert.Equal(t, job.ID, stale.ID)
	assert.Equal(t, next, *stale.ClaimToken)

	// lease older than the threshold
	_, err = db.Pool().Exec(ctx, `UPDATE scan_jobs SET claimed_at = NOW() - INTERVAL '301 seconds' WHERE id = $1::uuid`, job.ID)
	require.NoError(t, err)

	stale, err = repo.ClaimStaleJob(ctx, uuid.NewString(), 300*time.Second)
	require.NoError(t, err)
	require.NotNil(t, stale)

	// the old holder lost the lease
	done, err := repo.CompleteJob(ctx, job.ID, next)
	require.NoError(t, err)
	assert.Nil(t, done)
}

func TestScanJobRepository_CompleteAndFailAreTerminal(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)
	ctx := testContext(t)

	job := newTestJob(types.JobTypeClanScan)
	require.NoError(t, repo.CreateJob(ctx, job, nil, nil))
	token := uuid.NewString()
	_, err := repo.ClaimPendingJob(ctx, token)
	require.NoError(t, err)

	require.NoError(t, repo.AddRecordsAdded(ctx, job.ID, 3))

	done, err := repo.CompleteJob(ctx, job.ID, token)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, types.JobStatusCompleted, done.Status)
	assert.Equal(t, int64(3), done.RecordsAdded)
	assert.NotNil(t, done.CompletedAt)
	assert.Nil(t, done.ClaimToken)

	failed, err := repo.FailJob(ctx, job.ID, token, "late failure")
	require.NoError(t, err)
	assert.False(t, failed)

	stale, err := repo.ClaimStaleJob(ctx, uuid.NewString(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, stale)

	got, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, got.Status)
}

func TestScanJobRepository_GetJobNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)

	_, err := repo.GetJob(testContext(t), uuid.NewString())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestScanJobRepository_ListJobsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScanJobRepository(db)
	ctx := testContext(t)

	first := newTestJob(types.JobTypeClanScan)
	second := newTestJob(types.JobTypeClanScan)
	require.NoError(t, repo.CreateJob(ctx, first, nil, nil))
	require.NoError(t, repo.CreateJob(ctx, second, nil, nil))

	jobs, err := repo.ListJobs(ctx, "guild-1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second.ID, jobs[0].ID)

	jobs, err = repo.ListJobs(ctx, "guild-2", 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
