package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
	apperrors "github.com/sssheik1337/BESPILOTNIK-sub000/pkg/util/errorutil"
)

const deviceColumns = `serial, first_seen, appeal_count, status, return_status`

func (s *PostgresStore) GetDevice(ctx context.Context, serial string) (*domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial=$1`
	device, err := scanDevice(s.pool.QueryRow(ctx, query, serial))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("device", map[string]any{"serial": serial})
	}
	return device, err
}

func (s *PostgresStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]domain.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices`
	args := []any{}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += " WHERE status=$1"
	}
	query += fmt.Sprintf(" ORDER BY serial ASC LIMIT %d OFFSET %d",
		normalizeLimit(filter.Limit, 100), normalizeOffset(filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *device)
	}
	return result, rows.Err()
}

func (s *PostgresStore) ImportDevices(ctx context.Context, devices []domain.Device) (int, error) {
	const query = `
        INSERT INTO devices (serial, first_seen, appeal_count, status, return_status)
        VALUES ($1,$2,0,$3,$4)
        ON CONFLICT (serial) DO NOTHING`
	created := 0
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		for _, device := range devices {
			firstSeen := device.FirstSeen
			if firstSeen.IsZero() {
				firstSeen = time.Now().UTC()
			}
			status := device.Status
			if status == "" {
				status = domain.DeviceStatusActive
			}
			cmd, err := tx.Exec(ctx, query, device.Serial, firstSeen, status, device.ReturnStatus)
			if err != nil {
				return fmt.Errorf("import %s: %w", device.Serial, err)
			}
			created += int(cmd.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

func applyDeviceChanges(ctx context.Context, tx pgx.Tx, changes []domain.DeviceChange) error {
	const query = `
        UPDATE devices SET status=$1, return_status=COALESCE($2, return_status)
        WHERE serial=$3`
	for _, change := range changes {
		cmd, err := tx.Exec(ctx, query, change.Status, change.ReturnStatus, change.Serial)
		if err != nil {
			return fmt.Errorf("update device %s: %w", change.Serial, err)
		}
		if cmd.RowsAffected() == 0 {
			return apperrors.NewUnknownDevice(change.Serial)
		}
	}
	return nil
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var device domain.Device
	if err := row.Scan(
		&device.Serial,
		&device.FirstSeen,
		&device.AppealCount,
		&device.Status,
		&device.ReturnStatus,
	); err != nil {
		return nil, err
	}
	return &device, nil
}
