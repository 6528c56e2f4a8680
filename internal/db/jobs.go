package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/models"
)

const jobColumns = `id, tenant_id, job_type, payload, status, attempts, last_error, run_after, created_at, updated_at`

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		j       models.Job
		payload []byte
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.JobType, &payload, &j.Status, &j.Attempts, &j.LastError, &j.RunAfter, &j.CreatedAt, &j.UpdatedAt)
	j.Payload = payload
	return j, err
}

func (s *Store) EnqueueJob(ctx context.Context, j models.Job) (models.Job, error) {
	runAfter := j.RunAfter
	if runAfter.IsZero() {
		runAfter = time.Now().UTC()
	}
	payload := "{}"
	if len(j.Payload) > 0 {
		payload = string(j.Payload)
	}
	return scanJob(s.Pool.QueryRow(ctx, `
		INSERT INTO jobs (id, tenant_id, job_type, payload, status, attempts, run_after, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, 'queued', 0, $5, NOW(), NOW())
		RETURNING `+jobColumns, j.ID, j.TenantID, j.JobType, payload, runAfter))
}

// ClaimNextJob locks the oldest runnable job and marks it running. Runnable
// means queued and due, failed with attempts left and past the retry delay,
// or running but locked longer than staleRunning.
func (s *Store) ClaimNextJob(ctx context.Context, maxAttempts int, retryDelay, staleRunning time.Duration) (*models.Job, error) {
	now := time.Now().UTC()
	var claimed *models.Job
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx, `
			SELECT `+jobColumns+` FROM jobs
			WHERE (status = 'queued' AND run_after <= $1)
				OR (status = 'failed' AND attempts < $2 AND (last_error_at IS NULL OR last_error_at < $3))
				OR (status = 'running' AND locked_at < $4)
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, now, maxAttempts, now.Add(-retryDelay), now.Add(-staleRunning)))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE jobs SET status = 'running', attempts = attempts + 1, locked_at = $1, updated_at = $1
			WHERE id = $2`, now, j.ID); err != nil {
			return err
		}
		j.Status = models.JobRunning
		j.Attempts++
		claimed = &j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) CompleteJob(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE jobs SET status = 'succeeded', last_error = NULL, locked_at = NULL, updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *Store) FailJob(ctx context.Context, id string, reason string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE jobs SET status = 'failed', last_error = $1, last_error_at = NOW(), locked_at = NULL, updated_at = NOW()
		WHERE id = $2`, reason, id)
	return err
}
