package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bermybanana/api/internal/models"
)

// ErrOutputNotFound covers both missing and foreign-owned outputs; callers
// cannot tell the two apart.
var ErrOutputNotFound = errors.New("output not found")

type OutputRepository struct {
	pool *pgxpool.Pool
}

func NewOutputRepository(pool *pgxpool.Pool) *OutputRepository {
	return &OutputRepository{pool: pool}
}

const outputColumns = `
	o.id, o.job_id, o.type, o.bucket, o.object_key, o.url, o.state, o.persist_until,
	o.created_at, o.updated_at
`

func (r *OutputRepository) Create(ctx context.Context, output models.OutputAsset) error {
	const query = `
		INSERT INTO output_assets (
			id, job_id, type, bucket, object_key, url, state, persist_until, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		output.ID,
		output.JobID,
		output.Type,
		output.Bucket,
		output.ObjectKey,
		output.URL,
		output.State,
		output.PersistUntil,
	)
	return err
}

// Persist pins the output. Ownership is resolved through the owning job
// inside the same UPDATE, so the check and the mutation cannot be separated
// by a concurrent write. Persisting a removed asset resurrects it.
func (r *OutputRepository) Persist(ctx context.Context, outputID, userID string, until *time.Time) (models.OutputAsset, error) {
	const query = `
		UPDATE output_assets o
		SET state = 'persisted', persist_until = $3, updated_at = NOW()
		FROM generation_jobs j
		WHERE o.id = $1 AND j.id = o.job_id AND j.user_id = $2
		RETURNING ` + outputColumns

	return r.scanOne(r.pool.QueryRow(ctx, query, outputID, userID, until))
}

// Remove soft-deletes the output. Storage bytes stay put until the sweeper
// reclaims them.
func (r *OutputRepository) Remove(ctx context.Context, outputID, userID string) (models.OutputAsset, error) {
	const query = `
		UPDATE output_assets o
		SET state = 'removed', updated_at = NOW()
		FROM generation_jobs j
		WHERE o.id = $1 AND j.id = o.job_id AND j.user_id = $2
		RETURNING ` + outputColumns

	return r.scanOne(r.pool.QueryRow(ctx, query, outputID, userID))
}

func (r *OutputRepository) GetForUser(ctx context.Context, outputID, userID string) (models.OutputAsset, error) {
	const query = `
		SELECT ` + outputColumns + `
		FROM output_assets o
		JOIN generation_jobs j ON j.id = o.job_id
		WHERE o.id = $1 AND j.user_id = $2 AND o.state <> 'removed'
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, outputID, userID))
}

func (r *OutputRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.OutputAsset, error) {
	const query = `
		SELECT ` + outputColumns + `
		FROM output_assets o
		JOIN generation_jobs j ON j.id = o.job_id
		WHERE j.user_id = $1 AND o.state <> 'removed'
		ORDER BY o.created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

func (r *OutputRepository) ListByJob(ctx context.Context, jobID string) ([]models.OutputAsset, error) {
	const query = `
		SELECT ` + outputColumns + `
		FROM output_assets o
		WHERE o.job_id = $1 AND o.state <> 'removed'
		ORDER BY o.created_at ASC
	`
	return r.list(ctx, query, jobID)
}

// GetForAudit ignores the removed filter; it backs the admin audit read path
// only.
func (r *OutputRepository) GetForAudit(ctx context.Context, outputID string) (models.OutputAsset, error) {
	const query = `
		SELECT ` + outputColumns + `
		FROM output_assets o
		WHERE o.id = $1
	`
	return r.scanOne(r.pool.QueryRow(ctx, query, outputID))
}

// ExpirePersisted demotes pins whose deadline passed. Returns how many rows
// moved back to the transient state.
func (r *OutputRepository) ExpirePersisted(ctx context.Context, now time.Time) (int64, error) {
	const query = `
		UPDATE output_assets
		SET state = 'active', persist_until = NULL, updated_at = NOW()
		WHERE state = 'persisted' AND persist_until IS NOT NULL AND persist_until < $1
	`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ListReclaimable returns assets whose storage may be reclaimed: removed
// assets, and transient assets older than the retention horizon. An asset
// saved as a reference image shares its object key with that reference, so
// it stays out of the reclaim set for as long as the reference row lives.
func (r *OutputRepository) ListReclaimable(ctx context.Context, cutoff time.Time, limit int) ([]models.OutputAsset, error) {
	const query = `
		SELECT ` + outputColumns + `
		FROM output_assets o
		WHERE ((o.state = 'removed' AND o.updated_at < $1)
		   OR (o.state = 'active' AND o.created_at < $1))
		  AND NOT EXISTS (
			SELECT 1 FROM reference_images ri
			WHERE ri.bucket = o.bucket AND ri.object_key = o.object_key
		  )
		ORDER BY o.updated_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, cutoff, limit)
}

func (r *OutputRepository) HardDelete(ctx context.Context, outputID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM output_assets WHERE id = $1`, outputID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrOutputNotFound
	}
	return nil
}

func (r *OutputRepository) scanOne(row pgx.Row) (models.OutputAsset, error) {
	var output models.OutputAsset
	if err := row.Scan(
		&output.ID,
		&output.JobID,
		&output.Type,
		&output.Bucket,
		&output.ObjectKey,
		&output.URL,
		&output.State,
		&output.PersistUntil,
		&output.CreatedAt,
		&output.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OutputAsset{}, ErrOutputNotFound
		}
		return models.OutputAsset{}, err
	}
	return output, nil
}

func (r *OutputRepository) list(ctx context.Context, query string, args ...any) ([]models.OutputAsset, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outputs []models.OutputAsset
	for rows.Next() {
		var output models.OutputAsset
		if err := rows.Scan(
			&output.ID,
			&output.JobID,
			&output.Type,
			&output.Bucket,
			&output.ObjectKey,
			&output.URL,
			&output.State,
			&output.PersistUntil,
			&output.CreatedAt,
			&output.UpdatedAt,
		); err != nil {
			return nil, err
		}
		outputs = append(outputs, output)
	}
	return outputs, rows.Err()
}
