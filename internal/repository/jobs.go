package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tokenpad/presale-core/internal/domain"
)

const jobCols = `id, recipient, template_id, vars, status, attempts,
	next_attempt_at, last_attempt_at, last_error,
	COALESCE(locked_by, ''), locked_until, lease_seconds, created_at`

func scanJob(row pgx.Row) (*domain.NotificationJob, error) {
	var (
		j            domain.NotificationJob
		vars         []byte
		leaseSeconds int
	)
	err := row.Scan(
		&j.ID, &j.Recipient, &j.TemplateID, &vars, &j.Status, &j.Attempts,
		&j.NextAttemptAt, &j.LastAttemptAt, &j.LastError,
		&j.LockedBy, &j.LockedUntil, &leaseSeconds, &j.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &j.Vars); err != nil {
			return nil, fmt.Errorf("unmarshal job vars: %w", err)
		}
	}
	j.Lease = time.Duration(leaseSeconds) * time.Second
	return &j, nil
}

func insertJob(ctx context.Context, q querier, d JobDraft) (*domain.NotificationJob, error) {
	vars, err := json.Marshal(d.Vars)
	if err != nil {
		return nil, fmt.Errorf("marshal job vars: %w", err)
	}
	row := q.QueryRow(ctx, `
		INSERT INTO notification_jobs (id, recipient, template_id, vars, status, next_attempt_at, lease_seconds)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		RETURNING `+jobCols,
		uuid.New(), d.Recipient, d.TemplateID, vars,
		domain.JobStatusPending, int(d.Lease.Seconds()),
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

// EnqueueJob inserts a PENDING job due immediately.
func (s *Store) EnqueueJob(ctx context.Context, d JobDraft) (*domain.NotificationJob, error) {
	return insertJob(ctx, s.pool, d)
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.NotificationJob, error) {
	return getJob(ctx, s.pool, id, "")
}

func getJob(ctx context.Context, q querier, id uuid.UUID, lock string) (*domain.NotificationJob, error) {
	row := q.QueryRow(ctx, `SELECT `+jobCols+` FROM notification_jobs WHERE id = $1 `+lock, id)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ClaimNext atomically selects one eligible job and places it under the
// worker's lease. Selection and locking happen in a single statement; SKIP
// LOCKED keeps two racing workers off the same row. Returns
// domain.ErrNoJobAvailable when nothing is due.
func (s *Store) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*domain.NotificationJob, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE notification_jobs SET
			locked_by = $1,
			locked_until = now() + make_interval(secs => $2::float8),
			lease_seconds = $2
		WHERE id = (
			SELECT id FROM notification_jobs
			WHERE status = $3
				AND next_attempt_at <= now()
				AND (locked_by IS NULL OR locked_until <= now())
			ORDER BY next_attempt_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobCols,
		workerID, int(lease.Seconds()), domain.JobStatusPending,
	)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoJobAvailable
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return j, nil
}

// CompleteJob marks the job SENT and releases the lease. Calling it on a job
// already in a terminal state is a no-op.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_jobs
		SET status = $2, locked_by = NULL, locked_until = NULL, last_attempt_at = now()
		WHERE id = $1 AND status NOT IN ('sent', 'cancelled')`,
		id, domain.JobStatusSent,
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob records a delivery failure. Below the attempt limit the job is
// rescheduled with exponential backoff and stays PENDING; at the limit it
// becomes FAILED until an admin retries it. The lease is released either
// way. Terminal jobs are left untouched.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, deliveryErr string, policy domain.RetryPolicy) (*domain.NotificationJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := getJob(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if before.Status.Terminal() {
		return before, tx.Commit(ctx)
	}

	attempts := before.Attempts + 1
	var row pgx.Row
	if attempts >= policy.MaxAttempts {
		row = tx.QueryRow(ctx, `
			UPDATE notification_jobs SET
				status = $2, attempts = $3, last_error = $4,
				last_attempt_at = now(), locked_by = NULL, locked_until = NULL
			WHERE id = $1
			RETURNING `+jobCols,
			id, domain.JobStatusFailed, attempts, deliveryErr,
		)
	} else {
		row = tx.QueryRow(ctx, `
			UPDATE notification_jobs SET
				status = $2, attempts = $3, last_error = $4,
				next_attempt_at = now() + make_interval(secs => $5::float8),
				last_attempt_at = now(), locked_by = NULL, locked_until = NULL
			WHERE id = $1
			RETURNING `+jobCols,
			id, domain.JobStatusPending, attempts, deliveryErr,
			policy.Delay(attempts).Seconds(),
		)
	}
	after, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// RetryJob resets a FAILED or CANCELLED job back to PENDING with the attempt
// counter cleared and next attempt due immediately. Audited.
func (s *Store) RetryJob(ctx context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := getJob(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if before.Status != domain.JobStatusFailed && before.Status != domain.JobStatusCancelled {
		return nil, domain.ErrInvalidTransition
	}

	row := tx.QueryRow(ctx, `
		UPDATE notification_jobs SET
			status = $2, attempts = 0, next_attempt_at = now(),
			last_error = '', locked_by = NULL, locked_until = NULL
		WHERE id = $1
		RETURNING `+jobCols,
		id, domain.JobStatusPending,
	)
	after, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("retry job: %w", err)
	}

	if err := insertAudit(ctx, tx, domain.AuditJobRetried, actor, id.String(), before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// CancelJob removes a PENDING job from future claims. A job held under an
// unexpired lease is not cancelled out from under its worker; the call
// fails with ErrJobLocked and must be retried after the lease runs out.
func (s *Store) CancelJob(ctx context.Context, id uuid.UUID, actor string) (*domain.NotificationJob, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	before, err := getJob(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return nil, err
	}
	if before.Status != domain.JobStatusPending {
		return nil, domain.ErrInvalidTransition
	}

	row := tx.QueryRow(ctx, `
		UPDATE notification_jobs SET
			status = $2, locked_by = NULL, locked_until = NULL
		WHERE id = $1 AND status = 'pending'
			AND (locked_by IS NULL OR locked_until <= now())
		RETURNING `+jobCols,
		id, domain.JobStatusCancelled,
	)
	after, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobLocked
		}
		return nil, fmt.Errorf("cancel job: %w", err)
	}

	if err := insertAudit(ctx, tx, domain.AuditJobCancelled, actor, id.String(), before, after); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return after, nil
}

// BulkRetryJobs applies RetryJob to every id currently eligible and skips
// the rest. Only rows actually mutated count as affected.
func (s *Store) BulkRetryJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error) {
	var res domain.BulkResult
	for _, id := range ids {
		_, err := s.RetryJob(ctx, id, actor)
		switch {
		case err == nil:
			res.Affected++
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrJobNotFound):
			res.Skipped++
		default:
			return res, err
		}
	}
	return res, nil
}

// BulkCancelJobs applies CancelJob to every eligible id. Jobs in flight
// under an unexpired lease are skipped, never overwritten.
func (s *Store) BulkCancelJobs(ctx context.Context, ids []uuid.UUID, actor string) (domain.BulkResult, error) {
	var res domain.BulkResult
	for _, id := range ids {
		_, err := s.CancelJob(ctx, id, actor)
		switch {
		case err == nil:
			res.Affected++
		case errors.Is(err, domain.ErrInvalidTransition),
			errors.Is(err, domain.ErrJobNotFound),
			errors.Is(err, domain.ErrJobLocked):
			res.Skipped++
		default:
			return res, err
		}
	}
	return res, nil
}

func (s *Store) JobCountsByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*) FROM notification_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status domain.JobStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// StuckJobs returns non-terminal jobs whose lease expired without
// resolution. Read-only; recovery happens through the normal claim path.
func (s *Store) StuckJobs(ctx context.Context) ([]*domain.NotificationJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobCols+` FROM notification_jobs
		WHERE locked_by IS NOT NULL AND locked_until <= now()
			AND status NOT IN ('sent', 'cancelled')
		ORDER BY locked_until`)
	if err != nil {
		return nil, fmt.Errorf("list stuck jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.NotificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
