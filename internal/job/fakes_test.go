package job

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/deshack/openfront-discord-bot/internal/adapter"
	apperrors "github.com/deshack/openfront-discord-bot/internal/errors"
	"github.com/deshack/openfront-discord-bot/internal/models"
	"github.com/deshack/openfront-discord-bot/internal/types"
)

// memTask is one sub-task row of memStore
type memTask struct {
	status    types.TaskStatus
	claimedAt time.Time
	score     float64
	errMsg    *string
}

// memStore is an in-memory JobStore, TaskStore and RegistrationStore with
// the same conditional update semantics as the Postgres repositories
type memStore struct {
	mu      sync.Mutex
	clock   time.Time
	jobs    map[string]*models.ScanJob
	order   []string
	clan    map[string]map[string]*memTask
	players map[string]map[string]*memTask
	ffa     map[string]map[string]*memTask
	regs    []*models.PlayerRegistration

	failOpenClan error
}

func newMemStore() *memStore {
	return &memStore{
		clock:   time.Date(2025, 12, 1, 12, 0, 0, 0, time.UTC),
		jobs:    make(map[string]*models.ScanJob),
		clan:    make(map[string]map[string]*memTask),
		players: make(map[string]map[string]*memTask),
		ffa:     make(map[string]map[string]*memTask),
	}
}

func (m *memStore) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(d)
}

func copyJob(j *models.ScanJob) *models.ScanJob {
	cp := *j
	return &cp
}

func (m *memStore) CreateJob(ctx context.Context, job *models.ScanJob, clanTasks []*models.ClanSessionTask, playerIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = types.JobStatusPending
	// distinct creation times keep FIFO order stable
	job.CreatedAt = m.clock.Add(time.Duration(len(m.order)) * time.Millisecond)
	m.jobs[job.ID] = copyJob(job)
	m.order = append(m.order, job.ID)

	m.clan[job.ID] = make(map[string]*memTask)
	for _, t := range clanTasks {
		if _, ok := m.clan[job.ID][t.GameID]; !ok {
			m.clan[job.ID][t.GameID] = &memTask{status: types.TaskStatusPending, score: t.Score}
		}
	}
	m.players[job.ID] = make(map[string]*memTask)
	for _, id := range playerIDs {
		m.players[job.ID][id] = &memTask{status: types.TaskStatusPending}
	}
	m.ffa[job.ID] = make(map[string]*memTask)
	return nil
}

func (m *memStore) GetJob(ctx context.Context, jobID string) (*models.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, apperrors.NewNotFoundError("scan job", jobID)
	}
	return copyJob(j), nil
}

func (m *memStore) ListJobs(ctx context.Context, communityID string, limit int) ([]*models.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ScanJob
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		if j := m.jobs[m.order[i]]; j.CommunityID == communityID {
			out = append(out, copyJob(j))
		}
	}
	return out, nil
}

func (m *memStore) transition(j *models.ScanJob, to types.JobStatus) bool {
	if err := types.ValidateTransition(j.Status, to); err != nil {
		return false
	}
	j.Status = to
	return true
}

func (m *memStore) ClaimPendingJob(ctx context.Context, token string) (*models.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		j := m.jobs[id]
		if j.Status != types.JobStatusPending || !m.transition(j, types.JobStatusProcessing) {
			continue
		}
		now := m.clock
		j.StartedAt, j.ClaimedAt, j.ClaimToken = &now, &now, &token
		return copyJob(j), nil
	}
	return nil, nil
}

func (m *memStore) ClaimStaleJob(ctx context.Context, token string, threshold time.Duration) (*models.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		j := m.jobs[id]
		if j.Status != types.JobStatusProcessing {
			continue
		}
		if j.ClaimedAt != nil && !j.ClaimedAt.Before(m.clock.Add(-threshold)) {
			continue
		}
		now := m.clock
		j.ClaimedAt, j.ClaimToken = &now, &token
		return copyJob(j), nil
	}
	return nil, nil
}

func (m *memStore) holds(jobID, token string) (*models.ScanJob, bool) {
	j, ok := m.jobs[jobID]
	if !ok || j.ClaimToken == nil || *j.ClaimToken != token || j.Status != types.JobStatusProcessing {
		return nil, false
	}
	return j, true
}

func (m *memStore) ReleaseJob(ctx context.Context, jobID, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.holds(jobID, token)
	if !ok {
		return false, nil
	}
	j.ClaimedAt, j.ClaimToken = nil, nil
	return true, nil
}

func (m *memStore) CompleteJob(ctx context.Context, jobID, token string) (*models.ScanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.holds(jobID, token)
	if !ok || !m.transition(j, types.JobStatusCompleted) {
		return nil, nil
	}
	now := m.clock
	j.CompletedAt, j.ClaimedAt, j.ClaimToken = &now, nil, nil
	return copyJob(j), nil
}

func (m *memStore) FailJob(ctx context.Context, jobID, token, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.holds(jobID, token)
	if !ok || !m.transition(j, types.JobStatusFailed) {
		return false, nil
	}
	now := m.clock
	j.CompletedAt, j.ErrorMessage, j.ClaimedAt, j.ClaimToken = &now, &message, nil, nil
	return true, nil
}

func (m *memStore) AddRecordsAdded(ctx context.Context, jobID string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID].RecordsAdded += n
	return nil
}

// claim marks up to limit pending or stale rows processing, ordered by key
func (m *memStore) claim(table map[string]*memTask, limit int, stale time.Duration) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var claimed []string
	for _, k := range keys {
		if len(claimed) == limit {
			break
		}
		t := table[k]
		open := t.status == types.TaskStatusPending ||
			(t.status == types.TaskStatusProcessing && t.claimedAt.Before(m.clock.Add(-stale)))
		if !open {
			continue
		}
		t.status = types.TaskStatusProcessing
		t.claimedAt = m.clock
		claimed = append(claimed, k)
	}
	return claimed
}

func (m *memStore) complete(table map[string]*memTask, key string, errMsg *string) error {
	t, ok := table[key]
	if !ok {
		return fmt.Errorf("no task %s", key)
	}
	if !t.status.CanTransition(types.TaskStatusCompleted) {
		return nil
	}
	t.status = types.TaskStatusCompleted
	t.errMsg = errMsg
	return nil
}

func openCount(table map[string]*memTask) int64 {
	var n int64
	for _, t := range table {
		if t.status == types.TaskStatusPending || t.status == types.TaskStatusProcessing {
			n++
		}
	}
	return n
}

func counts(table map[string]*memTask) models.TaskCounts {
	var c models.TaskCounts
	for _, t := range table {
		c.Add(t.status, 1)
	}
	return c
}

func (m *memStore) ClaimClanTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.ClanSessionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ClanSessionTask
	for _, k := range m.claim(m.clan[jobID], limit, stale) {
		out = append(out, &models.ClanSessionTask{JobID: jobID, GameID: k, Status: types.TaskStatusProcessing, Score: m.clan[jobID][k].score})
	}
	return out, nil
}

func (m *memStore) CompleteClanTask(ctx context.Context, jobID, gameID string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.complete(m.clan[jobID], gameID, errMsg)
}

func (m *memStore) OpenClanTasks(ctx context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.failOpenClan != nil {
		return 0, m.failOpenClan
	}
	return openCount(m.clan[jobID]), nil
}

func (m *memStore) ClaimPlayerTasks(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.PlayerTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PlayerTask
	for _, k := range m.claim(m.players[jobID], limit, stale) {
		out = append(out, &models.PlayerTask{JobID: jobID, PlayerID: k, Status: types.TaskStatusProcessing})
	}
	return out, nil
}

func (m *memStore) CompletePlayerTask(ctx context.Context, jobID, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.complete(m.players[jobID], playerID, nil)
}

func (m *memStore) OpenPlayerTasks(ctx context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return openCount(m.players[jobID]), nil
}

func (m *memStore) AddFFAGames(ctx context.Context, jobID string, gameIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var added int64
	for _, id := range gameIDs {
		if _, ok := m.ffa[jobID][id]; ok {
			continue
		}
		m.ffa[jobID][id] = &memTask{status: types.TaskStatusPending}
		added++
	}
	return added, nil
}

func (m *memStore) ClaimFFAGames(ctx context.Context, jobID string, limit int, stale time.Duration) ([]*models.FFAGameTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.FFAGameTask
	for _, k := range m.claim(m.ffa[jobID], limit, stale) {
		out = append(out, &models.FFAGameTask{JobID: jobID, GameID: k, Status: types.TaskStatusProcessing})
	}
	return out, nil
}

func (m *memStore) CompleteFFAGame(ctx context.Context, jobID, gameID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.complete(m.ffa[jobID], gameID, nil)
}

func (m *memStore) OpenFFAGames(ctx context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return openCount(m.ffa[jobID]), nil
}

func (m *memStore) Progress(ctx context.Context, jobID string) (clan, players, ffa models.TaskCounts, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return counts(m.clan[jobID]), counts(m.players[jobID]), counts(m.ffa[jobID]), nil
}

func (m *memStore) ListByCommunity(ctx context.Context, communityID string) ([]*models.PlayerRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PlayerRegistration
	for _, r := range m.regs {
		if r.CommunityID == communityID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) taskStatus(table map[string]map[string]*memTask, jobID, key string) types.TaskStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return table[jobID][key].status
}

// fakeAPI serves canned sessions and games
type fakeAPI struct {
	mu             sync.Mutex
	clanSessions   []adapter.ClanSession
	playerSessions map[string][]adapter.PlayerSession
	playerErr      map[string]error
	games          map[string]*adapter.GameInfo
	gameErr        map[string]error
	gameCalls      int
	onGame         func(gameID string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		playerSessions: make(map[string][]adapter.PlayerSession),
		playerErr:      make(map[string]error),
		games:          make(map[string]*adapter.GameInfo),
		gameErr:        make(map[string]error),
	}
}

func (f *fakeAPI) ClanSessions(ctx context.Context, clanTag string, start, end time.Time) ([]adapter.ClanSession, error) {
	return f.clanSessions, nil
}

func (f *fakeAPI) PlayerSessions(ctx context.Context, playerID string, start, end time.Time) ([]adapter.PlayerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.playerErr[playerID]; err != nil {
		return nil, err
	}
	return f.playerSessions[playerID], nil
}

func (f *fakeAPI) GameInfo(ctx context.Context, gameID string) (*adapter.GameInfo, error) {
	f.mu.Lock()
	f.gameCalls++
	hook := f.onGame
	err := f.gameErr[gameID]
	info, ok := f.games[gameID]
	f.mu.Unlock()

	if hook != nil {
		hook(gameID)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, adapter.ErrNoData
	}
	return info, nil
}

// fakeRecorder stores records once per (community, username, game)
type fakeRecorder struct {
	mu       sync.Mutex
	records  map[string]*models.WinRecord
	err      error
	onRecord func()
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{records: make(map[string]*models.WinRecord)}
}

func (r *fakeRecorder) Record(ctx context.Context, rec *models.WinRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.onRecord != nil {
		r.onRecord()
	}
	if r.err != nil {
		return false, r.err
	}
	key := rec.CommunityID + "|" + rec.Username + "|" + rec.GameID
	if _, ok := r.records[key]; ok {
		return false, nil
	}
	cp := *rec
	r.records[key] = &cp
	return true, nil
}

// winsByUser counts records per username
func (r *fakeRecorder) winsByUser() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, rec := range r.records {
		out[rec.Username]++
	}
	return out
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// fakeNotifier captures sent messages
type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
	err      error
}

func (n *fakeNotifier) Notify(ctx context.Context, channelID, content string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.messages == nil {
		n.messages = make(map[string][]string)
	}
	n.messages[channelID] = append(n.messages[channelID], content)
	return n.err
}

func (n *fakeNotifier) sent(channelID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.messages[channelID]
}

func strPtr(s string) *string { return &s }

func player(clientID, username, tag string) adapter.GamePlayer {
	p := adapter.GamePlayer{ClientID: clientID, Username: username}
	if tag != "" {
		p.ClanTag = strPtr(tag)
	}
	return p
}
