package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/clock"
	"bermybanana/api/internal/config"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/queue"
)

type RetentionStore interface {
	ExpirePersisted(ctx context.Context, now time.Time) (int64, error)
	ListReclaimable(ctx context.Context, cutoff time.Time, limit int) ([]models.OutputAsset, error)
}

// RetentionService implements the periodic sweep: expired pins fall back to
// the transient state, and reclaimable assets are queued for the sweeper to
// delete.
type RetentionService struct {
	outputs RetentionStore
	events  *queue.Publisher
	clk     clock.Clock
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewRetentionService(outputs RetentionStore, events *queue.Publisher, clk clock.Clock, cfg *config.AppConfig, log zerolog.Logger) *RetentionService {
	return &RetentionService{
		outputs: outputs,
		events:  events,
		clk:     clk,
		cfg:     cfg,
		log:     log,
	}
}

func (s *RetentionService) Sweep(ctx context.Context) error {
	now := s.clk.Now()

	expired, err := s.outputs.ExpirePersisted(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.log.Info().Int64("count", expired).Msg("expired persisted outputs demoted")
	}

	cutoff := now.Add(-s.cfg.Retention.DefaultHorizon)
	reclaimable, err := s.outputs.ListReclaimable(ctx, cutoff, 200)
	if err != nil {
		return err
	}

	for _, output := range reclaimable {
		if err := s.events.Publish(ctx, s.cfg.Retention.CleanupStream, map[string]any{
			"outputId": output.ID,
			"bucket":   output.Bucket,
			"object":   output.ObjectKey,
		}); err != nil {
			s.log.Warn().Err(err).Str("output_id", output.ID).Msg("enqueue cleanup failed")
		}
	}

	return nil
}
