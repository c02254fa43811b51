package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/queue"
	"bermybanana/api/internal/repository"
)

// OutputLifecycleStore is the slice of the output repository the persistence
// manager needs. Every mutation resolves ownership and applies the change in
// a single statement or transaction.
type OutputLifecycleStore interface {
	GetForUser(ctx context.Context, outputID, userID string) (models.OutputAsset, error)
	Persist(ctx context.Context, outputID, userID string, until *time.Time) (models.OutputAsset, error)
	Remove(ctx context.Context, outputID, userID string) (models.OutputAsset, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.OutputAsset, error)
}

type ReferenceLifecycleStore interface {
	CreateFromOutput(ctx context.Context, outputID, userID string, isAvatar bool) (models.ReferenceImage, error)
	ListByUser(ctx context.Context, userID string, avatarsOnly bool) ([]models.ReferenceImage, error)
	DeleteForUser(ctx context.Context, refID, userID string) error
	ObjectInUse(ctx context.Context, bucket, objectKey string) (bool, error)
}

// OutputService governs the asset lifecycle: transient by default, pinned on
// request, soft-deleted on removal.
type OutputService struct {
	outputs OutputLifecycleStore
	refs    ReferenceLifecycleStore
	events  *queue.Publisher
	audit   *AuditService
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewOutputService(
	outputs OutputLifecycleStore,
	refs ReferenceLifecycleStore,
	events *queue.Publisher,
	audit *AuditService,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *OutputService {
	return &OutputService{
		outputs: outputs,
		refs:    refs,
		events:  events,
		audit:   audit,
		cfg:     cfg,
		log:     log,
	}
}

// Persist pins an output, optionally until a deadline. A nil until pins
// indefinitely.
func (s *OutputService) Persist(ctx context.Context, userID, outputID string, until *time.Time) (models.OutputAsset, error) {
	if until != nil && until.Before(time.Now()) {
		return models.OutputAsset{}, invalidField("until", "must be in the future")
	}

	output, err := s.outputs.Persist(ctx, outputID, userID, until)
	if err != nil {
		if errors.Is(err, repository.ErrOutputNotFound) {
			return models.OutputAsset{}, ErrNotFoundOrForbidden
		}
		return models.OutputAsset{}, err
	}

	s.audit.Record(ctx, userID, "output.persist", outputID, "")
	return output, nil
}

// Remove soft-deletes the output and queues its storage for reclamation.
// Storage bytes are the sweeper's problem, not this request's.
func (s *OutputService) Remove(ctx context.Context, userID, outputID string) error {
	output, err := s.outputs.Remove(ctx, outputID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOutputNotFound) {
			return ErrNotFoundOrForbidden
		}
		return err
	}

	if output.Bucket != "" {
		// An output saved as a reference shares its stored object; cleanup
		// waits until the retention sweep finds the object unreferenced.
		inUse, err := s.refs.ObjectInUse(ctx, output.Bucket, output.ObjectKey)
		if err != nil {
			s.log.Warn().Err(err).Str("output_id", output.ID).Msg("reference check failed, deferring cleanup to sweep")
		} else if !inUse {
			if err := s.events.Publish(ctx, s.cfg.Retention.CleanupStream, map[string]any{
				"outputId": output.ID,
				"bucket":   output.Bucket,
				"object":   output.ObjectKey,
			}); err != nil {
				s.log.Warn().Err(err).Str("output_id", output.ID).Msg("enqueue cleanup failed")
			}
		}
	}

	s.audit.Record(ctx, userID, "output.remove", outputID, "")
	return nil
}

// SaveAsAvatar turns an image output into a reusable avatar reference. Video
// outputs are rejected.
func (s *OutputService) SaveAsAvatar(ctx context.Context, userID, outputID string) (models.ReferenceImage, error) {
	ref, err := s.refs.CreateFromOutput(ctx, outputID, userID, true)
	if err != nil {
		if errors.Is(err, repository.ErrOutputNotFound) {
			return models.ReferenceImage{}, ErrNotFoundOrForbidden
		}
		return models.ReferenceImage{}, err
	}

	s.audit.Record(ctx, userID, "output.save_as_avatar", outputID, ref.ID)
	return ref, nil
}

func (s *OutputService) List(ctx context.Context, userID string, limit, offset int) ([]models.OutputAsset, error) {
	return s.outputs.ListByUser(ctx, userID, limit, offset)
}

func (s *OutputService) Get(ctx context.Context, userID, outputID string) (models.OutputAsset, error) {
	output, err := s.outputs.GetForUser(ctx, outputID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrOutputNotFound) {
			return models.OutputAsset{}, ErrNotFoundOrForbidden
		}
		return models.OutputAsset{}, err
	}
	return output, nil
}

func (s *OutputService) ListReferences(ctx context.Context, userID string, avatarsOnly bool) ([]models.ReferenceImage, error) {
	return s.refs.ListByUser(ctx, userID, avatarsOnly)
}

func (s *OutputService) DeleteReference(ctx context.Context, userID, refID string) error {
	if err := s.refs.DeleteForUser(ctx, refID, userID); err != nil {
		if errors.Is(err, repository.ErrReferenceNotFound) {
			return ErrNotFoundOrForbidden
		}
		return err
	}
	s.audit.Record(ctx, userID, "reference.delete", refID, "")
	return nil
}
