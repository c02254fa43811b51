package jobs

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/storage"
)

// Reclaimer consumes cleanup messages and releases what an output still
// holds: the stored object first, then the database row. A missing object or
// row is treated as already reclaimed.
type Reclaimer struct {
	outputs *repository.OutputRepository
	refs    *repository.ReferenceRepository
	store   *storage.ObjectStore
	log     zerolog.Logger
}

func NewReclaimer(outputs *repository.OutputRepository, refs *repository.ReferenceRepository, store *storage.ObjectStore, log zerolog.Logger) *Reclaimer {
	return &Reclaimer{
		outputs: outputs,
		refs:    refs,
		store:   store,
		log:     log,
	}
}

func (r *Reclaimer) Handle(ctx context.Context, msg redis.XMessage) error {
	outputID, _ := msg.Values["outputId"].(string)
	bucket, _ := msg.Values["bucket"].(string)
	object, _ := msg.Values["object"].(string)

	if outputID == "" {
		r.log.Warn().Str("message_id", msg.ID).Msg("cleanup message without outputId")
		return nil
	}

	if bucket != "" && object != "" {
		// A reference image saved from this output shares the object key.
		// The row goes, the bytes stay.
		inUse, err := r.refs.ObjectInUse(ctx, bucket, object)
		if err != nil {
			return err
		}
		if inUse {
			r.log.Info().Str("output_id", outputID).Str("object", object).Msg("object still referenced, keeping bytes")
		} else if err := r.store.Delete(ctx, bucket, object); err != nil {
			return err
		}
	}

	if err := r.outputs.HardDelete(ctx, outputID); err != nil {
		if errors.Is(err, repository.ErrOutputNotFound) {
			return nil
		}
		return err
	}

	r.log.Info().Str("output_id", outputID).Msg("output reclaimed")
	return nil
}
