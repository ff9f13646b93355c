package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/config"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/escalation"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/observability"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(eventType events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, event := range r.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

type harness struct {
	clock        *testClock
	store        *repository.MemoryStore
	dispatcher   events.Dispatcher
	recorder     *eventRecorder
	metrics      *observability.Metrics
	appeals      *AppealService
	assignments  *AssignmentService
	replacements *ReplacementService
	operators    *OperatorService
	devices      *DeviceService
}

var testEscalation = config.EscalationConfig{
	OverdueWindow:      4 * time.Hour,
	DelegateIdleWindow: 24 * time.Hour,
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(clock.Now)
	dispatcher := events.NewInMemoryDispatcher(nil)
	recorder := &eventRecorder{}
	for _, eventType := range []events.EventType{
		events.EventAppealCreated,
		events.EventAppealStatusChanged,
		events.EventAppealAssigned,
		events.EventAppealResponded,
		events.EventAppealEscalated,
		events.EventAppealDelegationIdle,
	} {
		dispatcher.Subscribe(eventType, recorder.handle)
	}
	metrics := observability.NewMetrics()
	deps := Dependencies{
		Store:      store,
		Planner:    escalation.NewPlanner(testEscalation),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Now:        clock.Now,
	}
	h := &harness{
		clock:        clock,
		store:        store,
		dispatcher:   dispatcher,
		recorder:     recorder,
		metrics:      metrics,
		appeals:      NewAppealService(deps),
		assignments:  NewAssignmentService(deps),
		replacements: NewReplacementService(deps),
		operators:    NewOperatorService(store, 4, nil),
		devices:      NewDeviceService(store, nil),
	}
	for _, id := range []string{"O1", "O2"} {
		_, err := h.operators.CreateOperator(context.Background(), CreateOperatorInput{ID: id, DisplayName: id, Password: "password-" + id})
		require.NoError(t, err)
	}
	_, err := h.operators.CreateOperator(context.Background(), CreateOperatorInput{ID: "SUP", DisplayName: "Supervisor", Password: "password-sup", Privileged: true})
	require.NoError(t, err)
	return h
}

func (h *harness) submit(t *testing.T, serial, requester, description string) int64 {
	t.Helper()
	result, err := h.appeals.Submit(context.Background(), SubmitInput{Serial: serial, RequesterID: requester, Description: description})
	require.NoError(t, err)
	return result.AppealID
}

func (h *harness) takenCount(t *testing.T, operatorID string) int {
	t.Helper()
	op, err := h.operators.GetOperator(context.Background(), operatorID)
	require.NoError(t, err)
	return op.TakenCount
}

func (h *harness) appeal(t *testing.T, id int64) *domain.Appeal {
	t.Helper()
	details, err := h.appeals.Get(context.Background(), id)
	require.NoError(t, err)
	return details.Appeal
}

func (h *harness) pendingChecks(id int64, kind domain.CheckKind) []domain.EscalationCheck {
	var out []domain.EscalationCheck
	for _, check := range h.store.Checks(id) {
		if check.Kind == kind && check.State == domain.CheckStatePending {
			out = append(out, check)
		}
	}
	return out
}

func operator(id string) domain.Actor {
	return domain.Actor{OperatorID: id}
}
