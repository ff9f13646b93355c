package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

func insertHistory(ctx context.Context, tx pgx.Tx, entries []domain.AppealHistory) error {
	const query = `
        INSERT INTO appeal_history (appeal_id, event, actor_id, from_status, to_status, from_owner, to_owner, note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id`
	for i := range entries {
		entry := &entries[i]
		if err := tx.QueryRow(ctx, query,
			entry.AppealID,
			entry.Event,
			entry.ActorID,
			entry.FromStatus,
			entry.ToStatus,
			entry.FromOwner,
			entry.ToOwner,
			entry.Note,
			entry.CreatedAt,
		).Scan(&entry.ID); err != nil {
			return err
		}
	}
	return nil
}

func insertResponses(ctx context.Context, tx pgx.Tx, responses []domain.AppealResponse) error {
	const query = `
        INSERT INTO appeal_responses (appeal_id, operator_id, text, media, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	for i := range responses {
		response := &responses[i]
		media := response.Media
		if media == nil {
			media = []string{}
		}
		if err := tx.QueryRow(ctx, query,
			response.AppealID,
			response.OperatorID,
			response.Text,
			media,
			response.CreatedAt,
		).Scan(&response.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, appealID int64) ([]domain.AppealHistory, error) {
	const query = `
        SELECT id, appeal_id, event, actor_id, from_status, to_status, from_owner, to_owner, note, created_at
        FROM appeal_history WHERE appeal_id=$1 ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AppealHistory
	for rows.Next() {
		var entry domain.AppealHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.AppealID,
			&entry.Event,
			&entry.ActorID,
			&entry.FromStatus,
			&entry.ToStatus,
			&entry.FromOwner,
			&entry.ToOwner,
			&entry.Note,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ListResponses(ctx context.Context, appealID int64) ([]domain.AppealResponse, error) {
	const query = `
        SELECT id, appeal_id, operator_id, text, media, created_at
        FROM appeal_responses WHERE appeal_id=$1 ORDER BY id ASC`
	rows, err := s.pool.Query(ctx, query, appealID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AppealResponse
	for rows.Next() {
		var response domain.AppealResponse
		if err := rows.Scan(
			&response.ID,
			&response.AppealID,
			&response.OperatorID,
			&response.Text,
			&response.Media,
			&response.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, rows.Err()
}
