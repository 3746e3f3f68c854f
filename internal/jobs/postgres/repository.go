package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quantumlink/quantumlink/internal/jobs"
	"github.com/quantumlink/quantumlink/internal/query"
)

const jobColumns = `job_id, principal, status, plan_json, output_path, output_format, rows_written, size_bytes, object_key, message, duration_ms, created_at, started_at, finished_at`

var _ jobs.Store = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping jobs db: %w", err)
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, in jobs.CreateInput) (jobs.Job, error) {
	planJSON, err := json.Marshal(in.Plan)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("encode job plan: %w", err)
	}

	job := jobs.Job{
		ID:          jobs.NewID(),
		Principal:   in.Principal,
		Status:      jobs.StatusPending,
		Plan:        in.Plan,
		OutputPath:  in.OutputPath,
		Format:      in.Format,
		RowsWritten: -1,
	}

	stmt := `
INSERT INTO quantumlink_job (job_id, principal, status, plan_json, output_path, output_format, rows_written)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, stmt,
		job.ID, job.Principal, string(job.Status), string(planJSON), job.OutputPath, string(job.Format), job.RowsWritten,
	).Scan(&job.CreatedAt); err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (r *Repository) MarkRunning(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE quantumlink_job
SET status = 'running', started_at = NOW()
WHERE job_id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark job running rows affected: %w", err)
	}
	if affected == 0 {
		return jobs.ErrNotFound
	}
	return nil
}

func (r *Repository) Finish(ctx context.Context, in jobs.FinishInput) (jobs.Job, error) {
	if !in.Status.Terminal() {
		return jobs.Job{}, fmt.Errorf("finish job %s with non-terminal status %q", in.ID, in.Status)
	}

	stmt := `
UPDATE quantumlink_job
SET status = $2, message = $3, rows_written = $4, size_bytes = $5, object_key = $6, duration_ms = $7, finished_at = NOW()
WHERE job_id = $1
RETURNING ` + jobColumns
	job, err := scanJob(r.db.QueryRowContext(ctx, stmt,
		in.ID, string(in.Status), in.Message, in.RowsWritten, in.SizeBytes, in.ObjectKey, in.Duration.Milliseconds(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNotFound
		}
		return jobs.Job{}, fmt.Errorf("finish job: %w", err)
	}
	return job, nil
}

func (r *Repository) Get(ctx context.Context, id string) (jobs.Job, error) {
	stmt := `
SELECT ` + jobColumns + `
FROM quantumlink_job
WHERE job_id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, stmt, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return jobs.Job{}, jobs.ErrNotFound
		}
		return jobs.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

func (r *Repository) List(ctx context.Context, filter jobs.ListFilter) ([]jobs.Job, error) {
	stmt := `
SELECT ` + jobColumns + `
FROM quantumlink_job
ORDER BY created_at DESC, job_id DESC
LIMIT $1`
	args := []any{jobs.NormalizeLimit(filter.Limit)}
	if filter.Principal != "" {
		stmt = `
SELECT ` + jobColumns + `
FROM quantumlink_job
WHERE principal = $2
ORDER BY created_at DESC, job_id DESC
LIMIT $1`
		args = append(args, filter.Principal)
	}
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]jobs.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (jobs.Job, error) {
	var (
		job        jobs.Job
		status     string
		format     string
		planJSON   []byte
		objectKey  sql.NullString
		message    sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	if err := row.Scan(
		&job.ID,
		&job.Principal,
		&status,
		&planJSON,
		&job.OutputPath,
		&format,
		&job.RowsWritten,
		&job.SizeBytes,
		&objectKey,
		&message,
		&job.DurationMS,
		&job.CreatedAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return jobs.Job{}, err
	}

	var plan query.ChainPlan
	if len(planJSON) > 0 {
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			return jobs.Job{}, fmt.Errorf("decode job plan: %w", err)
		}
	}
	job.Plan = plan
	job.Status = jobs.Status(status)
	job.Format = query.OutputFormat(format)
	job.ObjectKey = objectKey.String
	job.Message = message.String
	job.StartedAt = nullTime(startedAt)
	job.FinishedAt = nullTime(finishedAt)
	return job, nil
}

func nullTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
