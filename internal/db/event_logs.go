package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/models"
)

const eventLogColumns = `id, tenant_id, idempotency_key, source, type, status, retry_count, error, raw_payload, processed_at, created_at, updated_at`

func scanEventLog(row pgx.Row) (models.EventLog, error) {
	var (
		e   models.EventLog
		raw []byte
	)
	err := row.Scan(&e.ID, &e.TenantID, &e.IdempotencyKey, &e.Source, &e.Type, &e.Status, &e.RetryCount, &e.Error, &raw, &e.ProcessedAt, &e.CreatedAt, &e.UpdatedAt)
	e.RawPayload = raw
	return e, err
}

// ClaimEventLog records an inbound event in one statement: insert as pending,
// or bump retry_count when a not-yet-processed row holds the key. A processed
// row is left untouched and reported with alreadyProcessed = true.
func (s *Store) ClaimEventLog(ctx context.Context, e models.EventLog) (models.EventLog, bool, error) {
	var raw any
	if len(e.RawPayload) > 0 {
		raw = string(e.RawPayload)
	}
	claimed, err := scanEventLog(s.Pool.QueryRow(ctx, `
		INSERT INTO event_logs (id, tenant_id, idempotency_key, source, type, status, retry_count, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', 0, $6::jsonb, NOW(), NOW())
		ON CONFLICT (idempotency_key) DO UPDATE
			SET retry_count = event_logs.retry_count + 1, updated_at = NOW()
			WHERE event_logs.status <> 'processed'
		RETURNING `+eventLogColumns,
		e.ID, e.TenantID, e.IdempotencyKey, e.Source, e.Type, raw))
	if err == nil {
		return claimed, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.EventLog{}, false, err
	}
	existing, err := scanEventLog(s.Pool.QueryRow(ctx, `SELECT `+eventLogColumns+` FROM event_logs WHERE idempotency_key = $1`, e.IdempotencyKey))
	if err != nil {
		return models.EventLog{}, false, notFound("event log", err)
	}
	return existing, true, nil
}

func (s *Store) MarkEventProcessed(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE event_logs SET status = 'processed', error = NULL, processed_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *Store) MarkEventFailed(ctx context.Context, id string, reason string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE event_logs SET status = 'failed', error = $1, updated_at = NOW() WHERE id = $2`, reason, id)
	return err
}

func (s *Store) ListEventLogs(ctx context.Context, tenantID, status string, limit, offset int) ([]models.EventLog, error) {
	limit, offset = clampPage(limit, offset)
	query := `SELECT ` + eventLogColumns + ` FROM event_logs WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EventLog
	for rows.Next() {
		e, err := scanEventLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
