package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

var appealRowColumns = []string{
	"id", "serial", "requester_id", "description", "media", "status", "owner_id", "resolved_by",
	"created_at", "claimed_at", "closed_at", "last_activity_at", "response",
	"replacement_target", "replacement_origin", "version",
}

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func matchSQL(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

// newAppealRow returns an unowned appeal in status new at the given version.
func newAppealRow(id, version int64) *pgxmock.Rows {
	return pgxmock.NewRows(appealRowColumns).AddRow(
		id, "SN-1", "r1", "no power", []string{}, domain.AppealStatusNew, nil, nil,
		storeNow, nil, nil, storeNow, "",
		nil, nil, version,
	)
}

func errorDetails(t *testing.T, err error) map[string]any {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	return domainErr.Details
}

func TestPostgresCreateAppealCommits(t *testing.T) {
	store, mock := newMockStore(t)
	in := domain.NewAppeal{Serial: "SN-1", RequesterID: "r1", Description: "No  Power", At: storeNow}

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("description_norm=$3")).
		WithArgs("SN-1", "r1", "no power", domain.AppealStatusProcessed, domain.AppealStatusClosed).
		WillReturnRows(pgxmock.NewRows(appealRowColumns))
	mock.ExpectExec(matchSQL("INSERT INTO devices")).
		WithArgs("SN-1", storeNow, domain.DeviceStatusActive).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(matchSQL("INSERT INTO appeals")).
		WithArgs("SN-1", "r1", "No  Power", "no power", []string{}, domain.AppealStatusNew, storeNow).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery(matchSQL("UPDATE devices SET appeal_count = appeal_count + 1")).
		WithArgs("SN-1").
		WillReturnRows(pgxmock.NewRows([]string{"appeal_count"}).AddRow(2))
	mock.ExpectCommit()

	id, count, err := store.CreateAppeal(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppealRejectsOpenDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("description_norm=$3")).
		WithArgs(anyArgs(5)...).
		WillReturnRows(newAppealRow(3, 1))
	mock.ExpectRollback()

	_, _, err := store.CreateAppeal(context.Background(), domain.NewAppeal{Serial: "SN-1", RequesterID: "r1", Description: "no power", At: storeNow})
	require.True(t, apperrors.IsCode(err, apperrors.CodeDuplicateAppeal), "%v", err)
	assert.Equal(t, int64(3), errorDetails(t, err)["existing_appeal_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppealLosesRaceToUniqueIndex(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("description_norm=$3")).
		WithArgs(anyArgs(5)...).
		WillReturnRows(pgxmock.NewRows(appealRowColumns))
	mock.ExpectExec(matchSQL("INSERT INTO devices")).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectQuery(matchSQL("INSERT INTO appeals")).
		WithArgs(anyArgs(7)...).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: openDuplicateIndex})
	mock.ExpectRollback()
	// the winner is looked up outside the aborted transaction
	mock.ExpectQuery(matchSQL("description_norm=$3")).
		WithArgs(anyArgs(5)...).
		WillReturnRows(newAppealRow(9, 1))

	_, _, err := store.CreateAppeal(context.Background(), domain.NewAppeal{Serial: "SN-1", RequesterID: "r1", Description: "no power", At: storeNow})
	require.True(t, apperrors.IsCode(err, apperrors.CodeDuplicateAppeal), "%v", err)
	assert.Equal(t, int64(9), errorDetails(t, err)["existing_appeal_id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateAppealOtherUniqueViolationIsNotDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("description_norm=$3")).
		WithArgs(anyArgs(5)...).
		WillReturnRows(pgxmock.NewRows(appealRowColumns))
	mock.ExpectExec(matchSQL("INSERT INTO devices")).
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(matchSQL("INSERT INTO appeals")).
		WithArgs(anyArgs(7)...).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "appeals_pkey"})
	mock.ExpectRollback()

	_, _, err := store.CreateAppeal(context.Background(), domain.NewAppeal{Serial: "SN-1", RequesterID: "r1", Description: "no power", At: storeNow})
	require.Error(t, err)
	assert.False(t, apperrors.IsCode(err, apperrors.CodeDuplicateAppeal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectClaimWrites(mock pgxmock.PgxPoolIface, id, version int64) {
	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("FROM appeals WHERE id=$1 FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(newAppealRow(id, version))
	mock.ExpectExec(matchSQL("UPDATE appeals SET status=$1")).
		WithArgs(append(anyArgs(10), id, version)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func TestPostgresApplyTransitionCommitsOutcome(t *testing.T) {
	store, mock := newMockStore(t)

	expectClaimWrites(mock, 7, 4)
	mock.ExpectExec(matchSQL("UPDATE operators SET taken_count")).
		WithArgs(1, "alice").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(matchSQL("INSERT INTO appeal_history")).
		WithArgs(anyArgs(9)...).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectQuery(matchSQL("INSERT INTO escalation_checks")).
		WithArgs(append(anyArgs(4), int64(5), pgxmock.AnyArg(), storeNow.Add(time.Hour), domain.CheckStatePending)...).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(storeNow))
	mock.ExpectCommit()

	out, err := store.ApplyTransition(context.Background(), 7, claimBy("alice"))
	require.NoError(t, err)
	assert.Equal(t, domain.AppealStatusInProgress, out.Appeal.Status)
	assert.Equal(t, int64(5), out.Appeal.Version)
	assert.Equal(t, int64(11), out.History[0].ID)
	require.Len(t, out.Checks, 1)
	assert.NotEmpty(t, out.Checks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyTransitionVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(newAppealRow(7, 4))
	mock.ExpectExec(matchSQL("UPDATE appeals SET status=$1")).
		WithArgs(append(anyArgs(10), int64(7), int64(4))...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := store.ApplyTransition(context.Background(), 7, claimBy("alice"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyTransitionUnknownAppeal(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("FOR UPDATE")).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows(appealRowColumns))
	mock.ExpectRollback()

	_, err := store.ApplyTransition(context.Background(), 404, claimBy("alice"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound), "%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyTransitionRejectedEventWritesNothing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(matchSQL("FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(newAppealRow(7, 1))
	mock.ExpectRollback()

	_, err := store.ApplyTransition(context.Background(), 7, func(ctx context.Context, current *domain.Appeal, lookup domain.Lookup) (*domain.Outcome, error) {
		return domain.Apply(ctx, current, domain.Event{Kind: domain.EventClose, Actor: domain.Actor{OperatorID: "alice"}, At: storeNow}, lookup)
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeIllegalTransition), "%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApplyTransitionDeadlockIsRetryable(t *testing.T) {
	store, mock := newMockStore(t)

	expectClaimWrites(mock, 7, 1)
	mock.ExpectExec(matchSQL("UPDATE operators SET taken_count")).
		WithArgs(1, "alice").
		WillReturnError(&pgconn.PgError{Code: deadlockDetected})
	mock.ExpectRollback()

	_, err := store.ApplyTransition(context.Background(), 7, claimBy("alice"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConcurrentUpdate), "%v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterDeltasLockOperatorsInIDOrder(t *testing.T) {
	_, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	tx, err := mock.Begin(ctx)
	require.NoError(t, err)

	// map iteration order is random, so repeat to catch an unsorted walk
	for i := 0; i < 5; i++ {
		for _, step := range []struct {
			id    string
			delta int
		}{{"O1", 1}, {"O2", -1}, {"O3", 1}} {
			mock.ExpectExec(matchSQL("UPDATE operators SET taken_count")).
				WithArgs(step.delta, step.id).
				WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		}
		require.NoError(t, applyCounterDeltas(ctx, tx, map[string]int{"O3": 1, "O2": -1, "O1": 1, "O4": 0}))
		require.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestCounterDeltasUnknownOperator(t *testing.T) {
	_, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(matchSQL("UPDATE operators SET taken_count")).
		WithArgs(1, "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(ctx)
	require.NoError(t, err)
	err = applyCounterDeltas(ctx, tx, map[string]int{"ghost": 1})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound), "%v", err)
}

func TestPostgresLeaseDueChecks(t *testing.T) {
	store, mock := newMockStore(t)
	lease := 2 * time.Minute
	columns := []string{"id", "appeal_id", "kind", "expected_owner", "expected_version", "armed_at", "due_at",
		"state", "attempts", "last_error", "locked_until", "created_at", "finished_at"}
	lockedUntil := storeNow.Add(lease)

	mock.ExpectQuery(matchSQL("FOR UPDATE SKIP LOCKED")).
		WithArgs(storeNow, lockedUntil, domain.CheckStatePending, 10).
		WillReturnRows(pgxmock.NewRows(columns).AddRow(
			"c-1", int64(7), domain.CheckOverdue, "alice", int64(2), storeNow.Add(-4*time.Hour), storeNow,
			domain.CheckStatePending, 1, "", &lockedUntil, storeNow.Add(-4*time.Hour), nil,
		))

	checks, err := store.LeaseDueChecks(context.Background(), storeNow, 10, lease)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "c-1", checks[0].ID)
	assert.Equal(t, domain.CheckOverdue, checks[0].Kind)
	assert.Equal(t, 1, checks[0].Attempts)
	require.NotNil(t, checks[0].LockedUntil)
	assert.Equal(t, lockedUntil, *checks[0].LockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCheckUpdates(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(matchSQL("UPDATE escalation_checks SET state=$1, finished_at=$2, locked_until=NULL")).
		WithArgs(domain.CheckStateDone, storeNow, "c-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(matchSQL("UPDATE escalation_checks SET due_at=$1")).
		WithArgs(storeNow.Add(time.Minute), "timeout", "c-2", domain.CheckStatePending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(matchSQL("last_error=$3")).
		WithArgs(domain.CheckStateFailed, storeNow, "boom", "c-3").
		WillReturnError(errors.New("connection reset"))

	require.NoError(t, store.CompleteCheck(ctx, "c-1", storeNow))
	err := store.RetryCheck(ctx, "c-2", storeNow.Add(time.Minute), "timeout")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound), "%v", err)
	assert.EqualError(t, store.FailCheck(ctx, "c-3", storeNow, "boom"), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
