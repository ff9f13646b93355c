package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const operatorColumns = `id, display_name, taken_count, is_privileged, password_hash, created_at`

func (s *PostgresStore) CreateOperator(ctx context.Context, op *domain.Operator) error {
	const query = `
        INSERT INTO operators (id, display_name, taken_count, is_privileged, password_hash)
        VALUES ($1,$2,0,$3,$4)
        RETURNING taken_count, created_at`

	err := s.pool.QueryRow(ctx, query,
		op.ID,
		op.DisplayName,
		op.IsPrivileged,
		op.PasswordHash,
	).Scan(&op.TakenCount, &op.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperrors.NewConflict("operator already exists", map[string]any{"operator_id": op.ID})
	}
	return err
}

func (s *PostgresStore) GetOperator(ctx context.Context, id string) (*domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators WHERE id=$1`
	op, err := scanOperator(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("operator", map[string]any{"operator_id": id})
	}
	return op, err
}

func (s *PostgresStore) ListOperators(ctx context.Context, filter OperatorFilter) ([]domain.Operator, error) {
	query := `SELECT ` + operatorColumns + ` FROM operators`
	args := []any{}
	clauses := []string{}

	if filter.Privileged != nil {
		args = append(args, *filter.Privileged)
		clauses = append(clauses, fmt.Sprintf("is_privileged=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC"
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", normalizeLimit(filter.Limit, 50), normalizeOffset(filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *op)
	}
	return result, rows.Err()
}

// applyCounterDeltas adjusts workload counters inside the transition transaction.
// Rows are locked in id order so opposite delegations cannot deadlock. The
// taken_count >= 0 CHECK turns an underflow into a rollback.
func applyCounterDeltas(ctx context.Context, tx pgx.Tx, deltas map[string]int) error {
	const query = `UPDATE operators SET taken_count = taken_count + $1 WHERE id=$2`
	ids := make([]string, 0, len(deltas))
	for operatorID, delta := range deltas {
		if delta != 0 {
			ids = append(ids, operatorID)
		}
	}
	sort.Strings(ids)
	for _, operatorID := range ids {
		delta := deltas[operatorID]
		cmd, err := tx.Exec(ctx, query, delta, operatorID)
		if err != nil {
			return fmt.Errorf("adjust taken_count for %s: %w", operatorID, err)
		}
		if cmd.RowsAffected() == 0 {
			return apperrors.NewNotFound("operator", map[string]any{"operator_id": operatorID})
		}
	}
	return nil
}

func scanOperator(row pgx.Row) (*domain.Operator, error) {
	var op domain.Operator
	if err := row.Scan(
		&op.ID,
		&op.DisplayName,
		&op.TakenCount,
		&op.IsPrivileged,
		&op.PasswordHash,
		&op.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &op, nil
}
