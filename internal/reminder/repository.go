package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/guardportal/booking/internal/db"
)

var ErrJobNotFound = errors.New("job not found")

type Repository interface {
	Enqueue(ctx context.Context, kind string, appointmentID uuid.UUID, runAt time.Time) (*Job, error)
	// CancelPending cancels every pending job of the appointment.
	CancelPending(ctx context.Context, appointmentID uuid.UUID) (int64, error)

	// RequeueStale returns running jobs locked before cutoff to pending.
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	// ClaimDue marks up to limit due jobs as running. Jobs claimed by another
	// worker are skipped.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	Finish(ctx context.Context, id uuid.UUID, status JobStatus, lastErr *string) error
	Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error
	// Release hands a claimed job back untouched and refunds its attempt.
	Release(ctx context.Context, id uuid.UUID) error
}

const jobColumns = `id, kind, appointment_id, run_at, status, attempts, last_error, locked_at, created_at, updated_at`

type PgRepository struct {
	db db.DBTX
}

func NewPgRepository(conn db.DBTX) *PgRepository {
	return &PgRepository{db: conn}
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job

	err := row.Scan(
		&j.ID,
		&j.Kind,
		&j.AppointmentID,
		&j.RunAt,
		&j.Status,
		&j.Attempts,
		&j.LastError,
		&j.LockedAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return &j, nil
}

func (r *PgRepository) Enqueue(ctx context.Context, kind string, appointmentID uuid.UUID, runAt time.Time) (*Job, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO scheduled_jobs (id, kind, appointment_id, run_at, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+jobColumns,
		uuid.New(), kind, appointmentID, runAt)

	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return j, nil
}

func (r *PgRepository) CancelPending(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = 'cancelled',
		    updated_at = now()
		WHERE appointment_id = $1
		  AND status = 'pending'
	`, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel pending jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = 'pending',
		    locked_at = NULL,
		    updated_at = now()
		WHERE status = 'running'
		  AND locked_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE scheduled_jobs
		SET status = 'running',
		    attempts = attempts + 1,
		    locked_at = $1,
		    updated_at = now()
		WHERE id IN (
			SELECT id
			FROM scheduled_jobs
			WHERE status = 'pending'
			  AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return jobs, nil
}

func (r *PgRepository) Finish(ctx context.Context, id uuid.UUID, status JobStatus, lastErr *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = $2,
		    last_error = COALESCE($3, last_error),
		    locked_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, status, lastErr)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PgRepository) Retry(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = 'pending',
		    run_at = $2,
		    last_error = $3,
		    locked_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, id, runAt, lastErr)
	if err != nil {
		return fmt.Errorf("retry job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *PgRepository) Release(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE scheduled_jobs
		SET status = 'pending',
		    attempts = GREATEST(attempts - 1, 0),
		    locked_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'running'
	`, id)
	if err != nil {
		return fmt.Errorf("release job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
