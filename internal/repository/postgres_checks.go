package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const checkColumns = `id, appeal_id, kind, expected_owner, expected_version, armed_at, due_at, state, attempts,
               last_error, locked_until, created_at, finished_at`

func insertChecks(ctx context.Context, tx pgx.Tx, checks []domain.EscalationCheck) error {
	const query = `
        INSERT INTO escalation_checks (id, appeal_id, kind, expected_owner, expected_version, armed_at, due_at, state, attempts, last_error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,'')
        RETURNING created_at`
	for i := range checks {
		check := &checks[i]
		if err := tx.QueryRow(ctx, query,
			check.ID,
			check.AppealID,
			check.Kind,
			check.ExpectedOwner,
			check.ExpectedVersion,
			check.ArmedAt,
			check.DueAt,
			check.State,
		).Scan(&check.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) LeaseDueChecks(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]domain.EscalationCheck, error) {
	query := `
        UPDATE escalation_checks SET locked_until=$2, attempts=attempts+1
        WHERE id IN (
            SELECT id FROM escalation_checks
            WHERE state=$3 AND due_at <= $1 AND (locked_until IS NULL OR locked_until <= $1)
            ORDER BY due_at ASC
            LIMIT $4
            FOR UPDATE SKIP LOCKED)
        RETURNING ` + checkColumns
	rows, err := s.pool.Query(ctx, query, now, now.Add(lease), domain.CheckStatePending, normalizeLimit(limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationCheck
	for rows.Next() {
		var check domain.EscalationCheck
		if err := rows.Scan(
			&check.ID,
			&check.AppealID,
			&check.Kind,
			&check.ExpectedOwner,
			&check.ExpectedVersion,
			&check.ArmedAt,
			&check.DueAt,
			&check.State,
			&check.Attempts,
			&check.LastError,
			&check.LockedUntil,
			&check.CreatedAt,
			&check.FinishedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, check)
	}
	return result, rows.Err()
}

func (s *PostgresStore) CompleteCheck(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE escalation_checks SET state=$1, finished_at=$2, locked_until=NULL
        WHERE id=$3`
	return s.execCheckUpdate(ctx, id, query, domain.CheckStateDone, at, id)
}

func (s *PostgresStore) RetryCheck(ctx context.Context, id string, nextDue time.Time, cause string) error {
	const query = `
        UPDATE escalation_checks SET due_at=$1, last_error=$2, locked_until=NULL
        WHERE id=$3 AND state=$4`
	return s.execCheckUpdate(ctx, id, query, nextDue, cause, id, domain.CheckStatePending)
}

func (s *PostgresStore) FailCheck(ctx context.Context, id string, at time.Time, cause string) error {
	const query = `
        UPDATE escalation_checks SET state=$1, finished_at=$2, last_error=$3, locked_until=NULL
        WHERE id=$4`
	return s.execCheckUpdate(ctx, id, query, domain.CheckStateFailed, at, cause, id)
}

func (s *PostgresStore) execCheckUpdate(ctx context.Context, id, query string, args ...any) error {
	cmd, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("escalation check", map[string]any{"check_id": id})
	}
	return nil
}
