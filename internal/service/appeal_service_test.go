package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/events"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

func TestSubmitCreatesAppealAndCountsDevice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.appeals.Submit(ctx, SubmitInput{
		Serial:      " sn12345678 ",
		RequesterID: "req-1",
		Description: "Drone does not take off",
		Media:       []string{"photo-1", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.AppealCount)

	appeal := h.appeal(t, result.AppealID)
	assert.Equal(t, "SN12345678", appeal.Serial)
	assert.Equal(t, domain.AppealStatusNew, appeal.Status)
	assert.Nil(t, appeal.OwnerID)
	assert.Equal(t, []string{"photo-1"}, appeal.Media)

	device, err := h.devices.GetDevice(ctx, "sn12345678")
	require.NoError(t, err)
	assert.Equal(t, 1, device.AppealCount)

	created := h.recorder.ofType(events.EventAppealCreated)
	require.Len(t, created, 1)
	payload, ok := created[0].Payload.(events.AppealCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, 1, payload.AppealCount)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.appeals.Submit(context.Background(), SubmitInput{Serial: " ", RequesterID: "r", Description: "x"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = h.appeals.Submit(context.Background(), SubmitInput{Serial: "SN1", RequesterID: "r", Description: strings.Repeat("a", maxDescriptionLength+1)})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestDuplicateAppealSuppressedUntilClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "Battery drains fast")

	_, err := h.appeals.Submit(ctx, SubmitInput{Serial: "sn1", RequesterID: "req-1", Description: "battery   DRAINS fast"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDuplicateAppeal))

	// different requester is not a duplicate
	other, err := h.appeals.Submit(ctx, SubmitInput{Serial: "SN1", RequesterID: "req-2", Description: "Battery drains fast"})
	require.NoError(t, err)
	assert.Equal(t, 2, other.AppealCount)

	_, err = h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)
	_, err = h.appeals.Close(ctx, operator("O1"), id, "")
	require.NoError(t, err)

	again, err := h.appeals.Submit(ctx, SubmitInput{Serial: "SN1", RequesterID: "req-1", Description: "Battery drains fast"})
	require.NoError(t, err)
	assert.NotEqual(t, id, again.AppealID)
	assert.Equal(t, 3, again.AppealCount)
}

func TestScenarioClaimThenOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN12345678", "req-1", "no video")

	claimed, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusInProgress, claimed.Status)
	assert.Equal(t, "O1", claimed.Owner())
	assert.Equal(t, 1, h.takenCount(t, "O1"))

	checks := h.pendingChecks(id, domain.CheckOverdue)
	require.Len(t, checks, 1)
	assert.Equal(t, h.clock.Now().Add(4*time.Hour), checks[0].DueAt)

	fired, err := h.appeals.Escalate(ctx, id, checks[0].ExpectedOwner, checks[0].ExpectedVersion)
	require.NoError(t, err)
	assert.True(t, fired)

	appeal := h.appeal(t, id)
	assert.Equal(t, domain.AppealStatusOverdue, appeal.Status)
	assert.Equal(t, "O1", appeal.Owner())
	assert.Equal(t, 1, h.takenCount(t, "O1"))
	require.Len(t, h.recorder.ofType(events.EventAppealEscalated), 1)
}

func TestEscalateIsNoOpWhenSuperseded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "no video")

	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)
	stale := h.pendingChecks(id, domain.CheckOverdue)[0]

	_, err = h.appeals.Respond(ctx, operator("O1"), id, "working on it", nil)
	require.NoError(t, err)

	fired, err := h.appeals.Escalate(ctx, id, stale.ExpectedOwner, stale.ExpectedVersion)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, domain.AppealStatusInProgress, h.appeal(t, id).Status)

	_, err = h.appeals.Postpone(ctx, operator("O1"), id, "waiting for parts")
	require.NoError(t, err)
	latest := h.pendingChecks(id, domain.CheckOverdue)
	fired, err = h.appeals.Escalate(ctx, id, "O1", latest[len(latest)-1].ExpectedVersion)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Equal(t, domain.AppealStatusPostponed, h.appeal(t, id).Status)

	fired, err = h.appeals.Escalate(ctx, 404, "O1", 2)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, h.recorder.ofType(events.EventAppealEscalated))
}

func TestScenarioDelegation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "gimbal noise")

	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)
	oldCheck := h.pendingChecks(id, domain.CheckOverdue)[0]

	h.clock.Advance(time.Hour)
	delegated, err := h.assignments.Delegate(ctx, operator("O1"), id, "O2", "please take over")
	require.NoError(t, err)
	assert.Equal(t, "O2", delegated.Owner())
	assert.Equal(t, domain.AppealStatusInProgress, delegated.Status)
	assert.Equal(t, 0, h.takenCount(t, "O1"))
	assert.Equal(t, 1, h.takenCount(t, "O2"))

	var fresh *domain.EscalationCheck
	for _, check := range h.pendingChecks(id, domain.CheckOverdue) {
		if check.ExpectedOwner == "O2" {
			check := check
			fresh = &check
		}
	}
	require.NotNil(t, fresh)
	assert.Equal(t, h.clock.Now().Add(4*time.Hour), fresh.DueAt)

	idle := h.pendingChecks(id, domain.CheckDelegateIdle)
	require.Len(t, idle, 1)
	assert.Equal(t, "O2", idle[0].ExpectedOwner)
	assert.Equal(t, h.clock.Now(), idle[0].ArmedAt)

	// the check armed for O1 no longer applies
	fired, err := h.appeals.Escalate(ctx, id, oldCheck.ExpectedOwner, oldCheck.ExpectedVersion)
	require.NoError(t, err)
	assert.False(t, fired)

	details, err := h.appeals.Get(ctx, id)
	require.NoError(t, err)
	last := details.History[len(details.History)-1]
	assert.Equal(t, domain.EventDelegate, last.Event)
	assert.Equal(t, "O1", *last.FromOwner)
	assert.Equal(t, "O2", *last.ToOwner)
	assert.Equal(t, "please take over", last.Note)

	assigned := h.recorder.ofType(events.EventAppealAssigned)
	require.Len(t, assigned, 2)
	payload := assigned[1].Payload.(events.AssignedPayload)
	assert.Equal(t, "O2", payload.ToOperatorID)
	assert.Equal(t, "O1", *payload.FromOperatorID)
}

func (h *harness) delegatedAppeal(t *testing.T, serial string) (int64, domain.EscalationCheck) {
	t.Helper()
	ctx := context.Background()
	id := h.submit(t, serial, "req-1", "gimbal noise")
	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)
	_, err = h.assignments.Delegate(ctx, operator("O1"), id, "O2", "")
	require.NoError(t, err)
	idle := h.pendingChecks(id, domain.CheckDelegateIdle)
	require.Len(t, idle, 1)
	return id, idle[0]
}

func TestDelegationIdleAlert(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, idle := h.delegatedAppeal(t, "SN1")

	h.clock.Advance(25 * time.Hour)
	fired, err := h.appeals.AlertDelegationIdle(ctx, id, idle.ExpectedOwner, idle.ArmedAt)
	require.NoError(t, err)
	assert.True(t, fired)
	alerts := h.recorder.ofType(events.EventAppealDelegationIdle)
	require.Len(t, alerts, 1)
	payload := alerts[0].Payload.(events.DelegationIdlePayload)
	assert.Equal(t, "O2", payload.OwnerID)
	assert.Equal(t, idle.ArmedAt, payload.DelegatedAt)

	// handing the appeal on supersedes the check
	_, err = h.assignments.Delegate(ctx, operator("O2"), id, "O1", "")
	require.NoError(t, err)
	fired, err = h.appeals.AlertDelegationIdle(ctx, id, idle.ExpectedOwner, idle.ArmedAt)
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestDelegationIdleAlertWhenDelegateOnlyPostponed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, idle := h.delegatedAppeal(t, "SN1")

	_, err := h.appeals.Postpone(ctx, operator("O2"), id, "later")
	require.NoError(t, err)
	h.clock.Advance(25 * time.Hour)

	fired, err := h.appeals.AlertDelegationIdle(ctx, id, idle.ExpectedOwner, idle.ArmedAt)
	require.NoError(t, err)
	assert.True(t, fired)
	assert.Equal(t, domain.AppealStatusPostponed, h.appeal(t, id).Status)
}

func TestDelegationIdleSilentOutsideWatchedStatuses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	overdueID, overdueIdle := h.delegatedAppeal(t, "SN1")
	h.clock.Advance(5 * time.Hour)
	for _, check := range h.pendingChecks(overdueID, domain.CheckOverdue) {
		if check.ExpectedOwner != "O2" {
			continue
		}
		fired, err := h.appeals.Escalate(ctx, overdueID, check.ExpectedOwner, check.ExpectedVersion)
		require.NoError(t, err)
		require.True(t, fired)
	}
	require.Equal(t, domain.AppealStatusOverdue, h.appeal(t, overdueID).Status)

	parkedID, parkedIdle := h.delegatedAppeal(t, "SN2")
	_, err := h.appeals.RequestSpecialist(ctx, operator("O2"), parkedID, "needs a technician")
	require.NoError(t, err)

	h.clock.Advance(20 * time.Hour)
	fired, err := h.appeals.AlertDelegationIdle(ctx, overdueID, overdueIdle.ExpectedOwner, overdueIdle.ArmedAt)
	require.NoError(t, err)
	assert.False(t, fired)
	fired, err = h.appeals.AlertDelegationIdle(ctx, parkedID, parkedIdle.ExpectedOwner, parkedIdle.ArmedAt)
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, h.recorder.ofType(events.EventAppealDelegationIdle))
}

func TestScenarioReplacement(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.devices.Import(ctx, []DeviceImportItem{{Serial: "SNNEW0002"}})
	require.NoError(t, err)
	id := h.submit(t, "SNOLD0001", "req-1", "motor burnt")
	_, err = h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)

	marked, err := h.replacements.MarkForReplacement(ctx, operator("O1"), id, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusReplacement, marked.Status)

	_, err = h.replacements.MarkForReplacement(ctx, operator("O1"), id, "", "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyReplacing))

	_, err = h.replacements.CompleteReplacement(ctx, operator("O1"), id, "SNFAKE999", "", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeUnknownDevice))
	assert.Equal(t, domain.AppealStatusReplacement, h.appeal(t, id).Status)

	done, err := h.replacements.CompleteReplacement(ctx, operator("O1"), id, "snnew0002", "new unit shipped", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusProcessed, done.Status)
	assert.Equal(t, "SNNEW0002", *done.ReplacementTarget)
	assert.Equal(t, "SNOLD0001", *done.ReplacementOrigin)

	old, err := h.devices.GetDevice(ctx, "SNOLD0001")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusReturned, old.ReturnStatus)
	assert.Equal(t, domain.DeviceStatusReturned, old.Status)

	fresh, err := h.devices.GetDevice(ctx, "SNNEW0002")
	require.NoError(t, err)
	assert.Equal(t, domain.DeviceStatusActive, fresh.Status)
}

func TestScenarioConcurrentClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		id := h.submit(t, "SN-RACE", "req-"+string(rune('a'+round)), "race")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
			owned   int
		)
		for _, op := range []string{"O1", "O2"} {
			wg.Add(1)
			go func(op string) {
				defer wg.Done()
				_, err := h.assignments.Claim(ctx, operator(op), id)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					success++
				case apperrors.IsCode(err, apperrors.CodeAlreadyOwned):
					owned++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(op)
		}
		wg.Wait()
		assert.Equal(t, 1, success)
		assert.Equal(t, 1, owned)
	}
	assert.Equal(t, 20, h.takenCount(t, "O1")+h.takenCount(t, "O2"))
}

func TestCloseTwiceIsIllegal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "x")
	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)

	closed, err := h.appeals.Close(ctx, operator("O1"), id, "fixed")
	require.NoError(t, err)
	assert.Nil(t, closed.OwnerID)
	assert.Equal(t, "O1", *closed.ResolvedBy)
	assert.Equal(t, 1, h.takenCount(t, "O1"))

	_, err = h.appeals.Close(ctx, operator("O1"), id, "again")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIllegalTransition))
}

func TestRespondRecordsResponseLog(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "x")
	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)

	_, err = h.appeals.Respond(ctx, operator("O2"), id, "not mine", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeAlreadyOwned))

	_, err = h.appeals.Respond(ctx, domain.Actor{OperatorID: "SUP", Privileged: true}, id, "supervisor note", nil)
	require.NoError(t, err)
	_, err = h.appeals.Respond(ctx, operator("O1"), id, "", []string{"video-1"})
	require.NoError(t, err)

	details, err := h.appeals.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, details.Responses, 2)
	assert.Equal(t, "SUP", details.Responses[0].OperatorID)
	assert.Equal(t, []string{"video-1"}, details.Responses[1].Media)
	assert.Equal(t, "supervisor note", details.Appeal.Response)
	assert.Len(t, h.recorder.ofType(events.EventAppealResponded), 2)
}

func TestRejectAndRequestSpecialist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	spam := h.submit(t, "SN1", "req-1", "spam")
	rejected, err := h.appeals.Reject(ctx, operator("O2"), spam, "not a device issue")
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusClosed, rejected.Status)
	assert.Equal(t, 0, h.takenCount(t, "O2"))

	hard := h.submit(t, "SN2", "req-1", "firmware bricked")
	_, err = h.assignments.Claim(ctx, operator("O1"), hard)
	require.NoError(t, err)
	parked, err := h.appeals.RequestSpecialist(ctx, operator("O1"), hard, "needs vendor")
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusAwaitingSpecialist, parked.Status)
	assert.Equal(t, "O1", parked.Owner())

	_, err = h.assignments.Claim(ctx, operator("O2"), hard)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIllegalTransition))
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.submit(t, "SN1", "req-1", "one")
	h.submit(t, "SN2", "req-1", "two")
	h.submit(t, "SN3", "req-2", "three")
	_, err := h.assignments.Claim(ctx, operator("O1"), first)
	require.NoError(t, err)

	mine := "O1"
	owned, err := h.appeals.List(ctx, AppealListFilter{OwnerID: &mine})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, first, owned[0].ID)

	fresh, err := h.appeals.List(ctx, AppealListFilter{Statuses: []domain.AppealStatus{domain.AppealStatusNew}})
	require.NoError(t, err)
	assert.Len(t, fresh, 2)

	own, err := h.appeals.ListForRequester(ctx, "req-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	_, err = h.appeals.ListForRequester(ctx, " ", 10, 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestTransitionsAreCounted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.submit(t, "SN1", "req-1", "x")
	_, err := h.assignments.Claim(ctx, operator("O1"), id)
	require.NoError(t, err)

	snapshot := h.metrics.Snapshot()
	assert.Equal(t, int64(1), snapshot.Transitions["claim|new|in_progress"])
}
