package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const (
	uniqueViolation      = "23505"
	checkViolation       = "23514"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"

	openDuplicateIndex = "appeals_open_duplicate_idx"
)

const appealColumns = `id, serial, requester_id, description, media, status, owner_id, resolved_by,
               created_at, claimed_at, closed_at, last_activity_at, response,
               replacement_target, replacement_origin, version`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the part of *pgxpool.Pool the store uses.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var _ DB = (*pgxpool.Pool)(nil)

// PostgresStore is the durable Ticket Store backed by pgx.
type PostgresStore struct {
	pool DB
}

// NewPostgresStore instantiates the store.
func NewPostgresStore(pool DB) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// inTx commits when fn succeeds and rolls back otherwise.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateAppeal(ctx context.Context, in domain.NewAppeal) (int64, int, error) {
	var (
		appealID    int64
		appealCount int
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		existing, err := findOpenDuplicate(ctx, tx, in.Serial, in.RequesterID, in.Description)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperrors.NewDuplicateAppeal(existing.ID)
		}

		const ensureDevice = `
        INSERT INTO devices (serial, first_seen, appeal_count, status, return_status)
        VALUES ($1,$2,0,$3,'')
        ON CONFLICT (serial) DO NOTHING`
		if _, err := tx.Exec(ctx, ensureDevice, in.Serial, in.At, domain.DeviceStatusActive); err != nil {
			return fmt.Errorf("ensure device: %w", err)
		}

		const insertAppeal = `
        INSERT INTO appeals (serial, requester_id, description, description_norm, media, status,
                             created_at, last_activity_at, response, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$7,'',1)
        RETURNING id`
		media := in.Media
		if media == nil {
			media = []string{}
		}
		if err := tx.QueryRow(ctx, insertAppeal,
			in.Serial,
			in.RequesterID,
			in.Description,
			domain.NormalizeDescription(in.Description),
			media,
			domain.AppealStatusNew,
			in.At,
		).Scan(&appealID); err != nil {
			return err
		}

		const bumpCount = `
        UPDATE devices SET appeal_count = appeal_count + 1
        WHERE serial=$1
        RETURNING appeal_count`
		return tx.QueryRow(ctx, bumpCount, in.Serial).Scan(&appealCount)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openDuplicateIndex {
			// lost the race against a concurrent identical submission
			existing, lookupErr := findOpenDuplicate(ctx, s.pool, in.Serial, in.RequesterID, in.Description)
			if lookupErr == nil && existing != nil {
				return 0, 0, apperrors.NewDuplicateAppeal(existing.ID)
			}
			return 0, 0, apperrors.NewDuplicateAppeal(0)
		}
		return 0, 0, err
	}
	return appealID, appealCount, nil
}

func (s *PostgresStore) GetAppeal(ctx context.Context, id int64) (*domain.Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals WHERE id=$1`
	appeal, err := scanAppeal(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("appeal", map[string]any{"appeal_id": id})
	}
	return appeal, err
}

func (s *PostgresStore) FindOpenDuplicate(ctx context.Context, serial, requesterID, description string) (*domain.Appeal, error) {
	return findOpenDuplicate(ctx, s.pool, serial, requesterID, description)
}

func findOpenDuplicate(ctx context.Context, q querier, serial, requesterID, description string) (*domain.Appeal, error) {
	query := `SELECT ` + appealColumns + `
        FROM appeals
        WHERE serial=$1 AND requester_id=$2 AND description_norm=$3
          AND status NOT IN ($4,$5)
        ORDER BY id ASC LIMIT 1`
	appeal, err := scanAppeal(q.QueryRow(ctx, query,
		serial,
		requesterID,
		domain.NormalizeDescription(description),
		domain.AppealStatusProcessed,
		domain.AppealStatusClosed,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return appeal, err
}

func (s *PostgresStore) ApplyTransition(ctx context.Context, id int64, fn TransitionFunc) (*domain.Outcome, error) {
	var outcome *domain.Outcome
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + appealColumns + ` FROM appeals WHERE id=$1 FOR UPDATE`
		current, err := scanAppeal(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewNotFound("appeal", map[string]any{"appeal_id": id})
			}
			return err
		}

		out, err := fn(ctx, current, txLookup{tx: tx})
		if err != nil {
			return err
		}
		if err := validateOutcome(current, out); err != nil {
			return err
		}
		if err := writeAppeal(ctx, tx, current.Version, &out.Appeal); err != nil {
			return err
		}
		if err := applyCounterDeltas(ctx, tx, out.CounterDeltas); err != nil {
			return err
		}
		if err := applyDeviceChanges(ctx, tx, out.Devices); err != nil {
			return err
		}
		if err := insertHistory(ctx, tx, out.History); err != nil {
			return err
		}
		if err := insertResponses(ctx, tx, out.Responses); err != nil {
			return err
		}
		if err := insertChecks(ctx, tx, out.Checks); err != nil {
			return err
		}
		outcome = out
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case checkViolation:
				return nil, apperrors.NewInternalError(err)
			case deadlockDetected, serializationFailure:
				return nil, apperrors.NewConcurrentUpdate(id, err)
			}
		}
		return nil, err
	}
	return outcome, nil
}

func writeAppeal(ctx context.Context, tx pgx.Tx, expectedVersion int64, appeal *domain.Appeal) error {
	const query = `
        UPDATE appeals SET status=$1, owner_id=$2, resolved_by=$3, claimed_at=$4, closed_at=$5,
            last_activity_at=$6, response=$7, replacement_target=$8, replacement_origin=$9, version=$10
        WHERE id=$11 AND version=$12`
	cmd, err := tx.Exec(ctx, query,
		appeal.Status,
		appeal.OwnerID,
		appeal.ResolvedBy,
		appeal.ClaimedAt,
		appeal.ClosedAt,
		appeal.LastActivityAt,
		appeal.Response,
		appeal.ReplacementTarget,
		appeal.ReplacementOrigin,
		appeal.Version,
		appeal.ID,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewConflict("appeal changed concurrently", map[string]any{"appeal_id": appeal.ID})
	}
	return nil
}

func (s *PostgresStore) ListAppeals(ctx context.Context, filter AppealFilter) ([]domain.Appeal, error) {
	base := `SELECT ` + appealColumns + ` FROM appeals`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_id=$%d", len(args)))
	}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.Serial != nil {
		args = append(args, *filter.Serial)
		clauses = append(clauses, fmt.Sprintf("serial=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY id DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), normalizeLimit(filter.Limit, 20), normalizeOffset(filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Appeal
	for rows.Next() {
		appeal, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *appeal)
	}
	return result, rows.Err()
}

func scanAppeal(row pgx.Row) (*domain.Appeal, error) {
	var appeal domain.Appeal
	if err := row.Scan(
		&appeal.ID,
		&appeal.Serial,
		&appeal.RequesterID,
		&appeal.Description,
		&appeal.Media,
		&appeal.Status,
		&appeal.OwnerID,
		&appeal.ResolvedBy,
		&appeal.CreatedAt,
		&appeal.ClaimedAt,
		&appeal.ClosedAt,
		&appeal.LastActivityAt,
		&appeal.Response,
		&appeal.ReplacementTarget,
		&appeal.ReplacementOrigin,
		&appeal.Version,
	); err != nil {
		return nil, err
	}
	return &appeal, nil
}

// txLookup answers state machine lookups inside the transition transaction.
type txLookup struct {
	tx pgx.Tx
}

func (l txLookup) DeviceExists(ctx context.Context, serial string) (bool, error) {
	var exists bool
	err := l.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM devices WHERE serial=$1)`, serial).Scan(&exists)
	return exists, err
}

func (l txLookup) OperatorExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := l.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM operators WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}
