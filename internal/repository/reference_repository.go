package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
)

var (
	ErrReferenceNotFound = errors.New("reference image not found")
	// ErrUnsupportedType means the source output is not an image.
	ErrUnsupportedType = errors.New("output type cannot be saved as a reference image")
)

type ReferenceRepository struct {
	pool *pgxpool.Pool
}

func NewReferenceRepository(pool *pgxpool.Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

func (r *ReferenceRepository) Create(ctx context.Context, ref models.ReferenceImage) error {
	const query = `
		INSERT INTO reference_images (
			id, user_id, source_output_id, bucket, object_key, url, is_avatar, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		ref.ID,
		ref.UserID,
		ref.SourceOutputID,
		ref.Bucket,
		ref.ObjectKey,
		ref.URL,
		ref.IsAvatar,
	)
	return err
}

// CreateFromOutput turns a generated image into a reference image. Ownership
// check, type check and insert run inside one transaction with the output row
// locked, so the output cannot be mutated between the check and the insert.
// The new row points at the same object key; no bytes are copied.
func (r *ReferenceRepository) CreateFromOutput(ctx context.Context, outputID, userID string, isAvatar bool) (models.ReferenceImage, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return models.ReferenceImage{}, err
	}
	defer tx.Rollback(ctx)

	const lookup = `
		SELECT o.type, o.bucket, o.object_key, o.url
		FROM output_assets o
		JOIN generation_jobs j ON j.id = o.job_id
		WHERE o.id = $1 AND j.user_id = $2 AND o.state <> 'removed'
		FOR UPDATE OF o
	`

	var (
		outputType models.OutputType
		bucket     string
		objectKey  string
		url        string
	)
	if err := tx.QueryRow(ctx, lookup, outputID, userID).Scan(&outputType, &bucket, &objectKey, &url); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ReferenceImage{}, ErrOutputNotFound
		}
		return models.ReferenceImage{}, err
	}

	if outputType != models.OutputTypeImage {
		return models.ReferenceImage{}, ErrUnsupportedType
	}

	ref := models.ReferenceImage{
		ID:             ids.New(),
		UserID:         userID,
		SourceOutputID: &outputID,
		Bucket:         bucket,
		ObjectKey:      objectKey,
		URL:            url,
		IsAvatar:       isAvatar,
	}

	const insert = `
		INSERT INTO reference_images (
			id, user_id, source_output_id, bucket, object_key, url, is_avatar, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, NOW()
		) RETURNING created_at
	`
	if err := tx.QueryRow(ctx, insert,
		ref.ID, ref.UserID, ref.SourceOutputID, ref.Bucket, ref.ObjectKey, ref.URL, ref.IsAvatar,
	).Scan(&ref.CreatedAt); err != nil {
		return models.ReferenceImage{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.ReferenceImage{}, err
	}
	return ref, nil
}

func (r *ReferenceRepository) GetForUser(ctx context.Context, refID, userID string) (models.ReferenceImage, error) {
	const query = `
		SELECT id, user_id, source_output_id, bucket, object_key, url, is_avatar, created_at
		FROM reference_images
		WHERE id = $1 AND user_id = $2
	`

	var ref models.ReferenceImage
	if err := r.pool.QueryRow(ctx, query, refID, userID).Scan(
		&ref.ID,
		&ref.UserID,
		&ref.SourceOutputID,
		&ref.Bucket,
		&ref.ObjectKey,
		&ref.URL,
		&ref.IsAvatar,
		&ref.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ReferenceImage{}, ErrReferenceNotFound
		}
		return models.ReferenceImage{}, err
	}
	return ref, nil
}

func (r *ReferenceRepository) ListByUser(ctx context.Context, userID string, avatarsOnly bool) ([]models.ReferenceImage, error) {
	query := `
		SELECT id, user_id, source_output_id, bucket, object_key, url, is_avatar, created_at
		FROM reference_images
		WHERE user_id = $1
	`
	if avatarsOnly {
		query += ` AND is_avatar`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []models.ReferenceImage
	for rows.Next() {
		var ref models.ReferenceImage
		if err := rows.Scan(
			&ref.ID,
			&ref.UserID,
			&ref.SourceOutputID,
			&ref.Bucket,
			&ref.ObjectKey,
			&ref.URL,
			&ref.IsAvatar,
			&ref.CreatedAt,
		); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// ObjectInUse reports whether any reference image still points at the stored
// object. The sweeper must not delete bytes an avatar shares.
func (r *ReferenceRepository) ObjectInUse(ctx context.Context, bucket, objectKey string) (bool, error) {
	var inUse bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM reference_images WHERE bucket = $1 AND object_key = $2)`,
		bucket, objectKey,
	).Scan(&inUse)
	return inUse, err
}

func (r *ReferenceRepository) DeleteForUser(ctx context.Context, refID, userID string) error {
	cmd, err := r.pool.Exec(ctx,
		`DELETE FROM reference_images WHERE id = $1 AND user_id = $2`,
		refID, userID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrReferenceNotFound
	}
	return nil
}
