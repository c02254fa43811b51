package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bermybanana/api/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `
	id, user_id, provider, mode, prompt, reference_id, status, provider_task_id,
	cost_credits, error_kind, error_message, created_at, updated_at
`

func (r *JobRepository) Create(ctx context.Context, job models.GenerationJob) error {
	const query = `
		INSERT INTO generation_jobs (
			id, user_id, provider, mode, prompt, reference_id, status, status_rank,
			provider_task_id, cost_credits, error_kind, error_message, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.Provider,
		job.Mode,
		job.Prompt,
		job.ReferenceID,
		job.Status,
		job.Status.Rank(),
		job.ProviderTaskID,
		job.CostCredits,
		job.ErrorKind,
		job.ErrorMessage,
	)
	return err
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (models.GenerationJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetForUser conflates not-found and not-owned so existence of other users'
// jobs never leaks.
func (r *JobRepository) GetForUser(ctx context.Context, id, userID string) (models.GenerationJob, error) {
	const query = `SELECT ` + jobColumns + ` FROM generation_jobs WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

func (r *JobRepository) GetByProviderTask(ctx context.Context, provider, taskID, userID string) (models.GenerationJob, error) {
	const query = `SELECT ` + jobColumns + `
		FROM generation_jobs WHERE provider = $1 AND provider_task_id = $2 AND user_id = $3`
	return r.scanOne(r.pool.QueryRow(ctx, query, provider, taskID, userID))
}

func (r *JobRepository) scanOne(row pgx.Row) (models.GenerationJob, error) {
	var job models.GenerationJob
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Provider,
		&job.Mode,
		&job.Prompt,
		&job.ReferenceID,
		&job.Status,
		&job.ProviderTaskID,
		&job.CostCredits,
		&job.ErrorKind,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.GenerationJob{}, ErrJobNotFound
		}
		return models.GenerationJob{}, err
	}
	return job, nil
}

// Advance moves the job forward. The status_rank guard rejects regressions
// and repeated writes of the same state; the caller learns whether its write
// won via the returned flag.
func (r *JobRepository) Advance(ctx context.Context, id string, to models.JobStatus, providerTaskID string) (bool, error) {
	const query = `
		UPDATE generation_jobs
		SET status = $2, status_rank = $3,
		    provider_task_id = CASE WHEN $4 <> '' THEN $4 ELSE provider_task_id END,
		    updated_at = NOW()
		WHERE id = $1 AND status_rank < $3
	`
	cmd, err := r.pool.Exec(ctx, query, id, to, to.Rank(), providerTaskID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// MarkTerminal records completion or failure exactly once. A job already in a
// terminal state is left untouched and the caller is told the write was a
// no-op, which is what keeps refunds from doubling.
func (r *JobRepository) MarkTerminal(ctx context.Context, id string, status models.JobStatus, kind models.ErrorKind, message string) (bool, error) {
	if !status.Terminal() {
		return false, errors.New("MarkTerminal requires a terminal status")
	}

	const query = `
		UPDATE generation_jobs
		SET status = $2, status_rank = $3, error_kind = $4, error_message = $5, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`
	cmd, err := r.pool.Exec(ctx, query, id, status, status.Rank(), kind, message)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *JobRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationJob, error) {
	const query = `SELECT ` + jobColumns + `
		FROM generation_jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]models.GenerationJob, error) {
	const query = `SELECT ` + jobColumns + `
		FROM generation_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	return r.list(ctx, query, limit, offset)
}

func (r *JobRepository) list(ctx context.Context, query string, args ...any) ([]models.GenerationJob, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.GenerationJob
	for rows.Next() {
		var job models.GenerationJob
		if err := rows.Scan(
			&job.ID,
			&job.UserID,
			&job.Provider,
			&job.Mode,
			&job.Prompt,
			&job.ReferenceID,
			&job.Status,
			&job.ProviderTaskID,
			&job.CostCredits,
			&job.ErrorKind,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
