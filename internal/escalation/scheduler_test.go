package escalation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/escalation"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/observability"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/service"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var escalationCfg = config.EscalationConfig{
	OverdueWindow:      4 * time.Hour,
	DelegateIdleWindow: 24 * time.Hour,
	PollInterval:       time.Hour,
	BatchSize:          10,
	RetryDelay:         time.Minute,
	MaxAttempts:        3,
	Lease:              time.Minute,
}

type fixture struct {
	clock       *clock
	store       *repository.MemoryStore
	appeals     *service.AppealService
	assignments *service.AssignmentService
	metrics     *observability.Metrics
	scheduler   *escalation.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(c.Now)
	metrics := observability.NewMetrics()
	deps := service.Dependencies{
		Store:   store,
		Planner: escalation.NewPlanner(escalationCfg),
		Metrics: metrics,
		Now:     c.Now,
	}
	appeals := service.NewAppealService(deps)
	ctx := context.Background()
	for _, id := range []string{"O1", "O2"} {
		require.NoError(t, store.CreateOperator(ctx, &domain.Operator{ID: id, DisplayName: id}))
	}
	return &fixture{
		clock:       c,
		store:       store,
		appeals:     appeals,
		assignments: service.NewAssignmentService(deps),
		metrics:     metrics,
		scheduler:   escalation.NewScheduler(store, appeals, escalationCfg, zap.NewNop(), metrics, c.Now),
	}
}

func (f *fixture) claimedAppeal(t *testing.T, serial string) int64 {
	t.Helper()
	ctx := context.Background()
	result, err := f.appeals.Submit(ctx, service.SubmitInput{Serial: serial, RequesterID: "req", Description: "broken " + serial})
	require.NoError(t, err)
	_, err = f.assignments.Claim(ctx, domain.Actor{OperatorID: "O1"}, result.AppealID)
	require.NoError(t, err)
	return result.AppealID
}

func (f *fixture) status(t *testing.T, id int64) domain.AppealStatus {
	t.Helper()
	appeal, err := f.store.GetAppeal(context.Background(), id)
	require.NoError(t, err)
	return appeal.Status
}

func TestPlannerStampsDeadlines(t *testing.T) {
	planner := escalation.NewPlanner(escalationCfg)
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	out := &domain.Outcome{Checks: []domain.EscalationCheck{{Kind: domain.CheckOverdue}, {Kind: domain.CheckDelegateIdle}}}

	planner.Plan(out, at)

	assert.Equal(t, at, out.Checks[0].ArmedAt)
	assert.Equal(t, at.Add(4*time.Hour), out.Checks[0].DueAt)
	assert.Equal(t, at.Add(24*time.Hour), out.Checks[1].DueAt)
}

func TestRunDueEscalatesStaleAppeal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.claimedAppeal(t, "SN1")

	result, err := f.scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Leased)

	f.clock.Advance(4*time.Hour + time.Second)
	result, err = f.scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.RunResult{Leased: 1, Fired: 1}, result)
	assert.Equal(t, domain.AppealStatusOverdue, f.status(t, id))

	checks := f.store.Checks(id)
	require.Len(t, checks, 1)
	assert.Equal(t, domain.CheckStateDone, checks[0].State)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Checks["overdue|fired"])
}

func TestRunDueSkipsSupersededCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.claimedAppeal(t, "SN1")

	f.clock.Advance(time.Hour)
	_, err := f.appeals.Respond(ctx, domain.Actor{OperatorID: "O1"}, id, "looking", nil)
	require.NoError(t, err)

	// only the first check is due; the respond re-armed a later one
	f.clock.Advance(3*time.Hour + time.Second)
	result, err := f.scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.RunResult{Leased: 1, Skipped: 1}, result)
	assert.Equal(t, domain.AppealStatusInProgress, f.status(t, id))

	f.clock.Advance(time.Hour)
	result, err = f.scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fired)
	assert.Equal(t, domain.AppealStatusOverdue, f.status(t, id))
}

func TestChecksSurviveRestart(t *testing.T) {
	f := newFixture(t)
	first := f.claimedAppeal(t, "SN1")
	second := f.claimedAppeal(t, "SN2")

	// a fresh scheduler over the same store picks up checks that came due while down
	f.clock.Advance(10 * time.Hour)
	restarted := escalation.NewScheduler(f.store, f.appeals, escalationCfg, zap.NewNop(), nil, f.clock.Now)
	ctx, cancel := context.WithCancel(context.Background())
	restarted.Start(ctx)
	assert.Eventually(t, func() bool {
		appeal, err := f.store.GetAppeal(context.Background(), second)
		return err == nil && appeal.Status == domain.AppealStatusOverdue
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	restarted.Stop()

	assert.Equal(t, domain.AppealStatusOverdue, f.status(t, first))
}

func TestStopWithoutStart(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	go func() {
		f.scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop blocked")
	}
}

type flakyHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *flakyHandler) Escalate(context.Context, int64, string, int64) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return false, h.err
}

func (h *flakyHandler) AlertDelegationIdle(context.Context, int64, string, time.Time) (bool, error) {
	panic("unexpected")
}

func TestFailingCheckRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.claimedAppeal(t, "SN1")
	handler := &flakyHandler{err: errors.New("store unavailable")}
	scheduler := escalation.NewScheduler(f.store, handler, escalationCfg, zap.NewNop(), nil, f.clock.Now)

	f.clock.Advance(5 * time.Hour)
	for attempt := 1; attempt < escalationCfg.MaxAttempts; attempt++ {
		result, err := scheduler.RunDue(ctx)
		require.NoError(t, err)
		assert.Equal(t, escalation.RunResult{Leased: 1, Retried: 1}, result)

		// backoff grows with every attempt
		checks := f.store.Checks(id)
		require.Len(t, checks, 1)
		assert.Equal(t, f.clock.Now().Add(time.Duration(attempt)*time.Minute), checks[0].DueAt)
		f.clock.Advance(time.Duration(attempt) * time.Minute)
	}

	result, err := scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.RunResult{Leased: 1, Failed: 1}, result)

	checks := f.store.Checks(id)
	require.Len(t, checks, 1)
	assert.Equal(t, domain.CheckStateFailed, checks[0].State)
	assert.Equal(t, "store unavailable", checks[0].LastError)
	assert.Equal(t, escalationCfg.MaxAttempts, handler.calls)
	assert.Equal(t, domain.AppealStatusInProgress, f.status(t, id))
}

func TestPanickingHandlerIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.claimedAppeal(t, "SN1")
	_, err := f.assignments.Delegate(ctx, domain.Actor{OperatorID: "O1"}, id, "O2", "")
	require.NoError(t, err)
	scheduler := escalation.NewScheduler(f.store, &flakyHandler{}, escalationCfg, zap.NewNop(), nil, f.clock.Now)

	f.clock.Advance(2 * time.Hour)
	for _, check := range f.store.Checks(id) {
		if check.Kind != domain.CheckDelegateIdle {
			require.NoError(t, f.store.CompleteCheck(ctx, check.ID, f.clock.Now()))
		}
	}
	f.clock.Advance(23 * time.Hour)

	result, err := scheduler.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, escalation.RunResult{Leased: 1, Retried: 1}, result)
}
