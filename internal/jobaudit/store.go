// Package jobaudit keeps a durable trail of finished jobs in the job_audit
// table, next to the short-lived records the queue broker holds.
package jobaudit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"busybeaver/internal/platform/database"
	"busybeaver/internal/queue"
	"busybeaver/pkg/platform/sentinel"
)

// Entry is one audited job.
type Entry struct {
	JobID      string
	Name       string
	Status     queue.Status
	Error      string
	EnqueuedAt time.Time
	EndedAt    *time.Time
}

// PostgresStore writes entries through the database executor, so inside a
// test session they vanish on rollback.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Record upserts the job's current state.
func (s *PostgresStore) Record(ctx context.Context, job *queue.Job) error {
	query := `
		INSERT INTO job_audit (job_id, name, status, error, enqueued_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			ended_at = EXCLUDED.ended_at
	`
	var ended sql.NullTime
	if job.EndedAt != nil {
		ended = sql.NullTime{Time: *job.EndedAt, Valid: true}
	}
	_, err := s.db.Executor(ctx).ExecContext(ctx, query,
		job.ID, job.Name, string(job.Status), job.Error, job.EnqueuedAt, ended)
	if err != nil {
		return fmt.Errorf("record job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns sentinel.ErrNotFound for jobs never recorded.
func (s *PostgresStore) Get(ctx context.Context, jobID string) (*Entry, error) {
	query := `SELECT job_id, name, status, error, enqueued_at, ended_at FROM job_audit WHERE job_id = $1`
	var (
		e      Entry
		status string
		ended  sql.NullTime
	)
	err := s.db.Executor(ctx).QueryRowContext(ctx, query, jobID).
		Scan(&e.JobID, &e.Name, &status, &e.Error, &e.EnqueuedAt, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job audit %s: %w", jobID, err)
	}
	e.Status = queue.Status(status)
	if ended.Valid {
		t := ended.Time
		e.EndedAt = &t
	}
	return &e, nil
}

// CountByStatus counts audited jobs in a status.
func (s *PostgresStore) CountByStatus(ctx context.Context, status queue.Status) (int, error) {
	var n int
	err := s.db.Executor(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM job_audit WHERE status = $1`, string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count job audit: %w", err)
	}
	return n, nil
}

// Hook adapts the store into a queue hook. Failures are logged; auditing
// never changes a job's outcome.
func (s *PostgresStore) Hook(logger *slog.Logger) queue.Hook {
	return func(ctx context.Context, job *queue.Job) {
		if err := s.Record(ctx, job); err != nil {
			logger.WarnContext(ctx, "audit job", "job_id", job.ID, "error", err)
		}
	}
}
