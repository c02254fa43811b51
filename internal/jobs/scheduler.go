package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/service"
)

// Scheduler runs the retention sweep on a cron spec. The sweep itself only
// flips database state and enqueues cleanup work; the sweeper process does
// the deleting.
type Scheduler struct {
	cron      *cron.Cron
	retention *service.RetentionService
	cfg       *config.AppConfig
	log       zerolog.Logger
}

func NewScheduler(retention *service.RetentionService, cfg *config.AppConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		retention: retention,
		cfg:       cfg,
		log:       log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Retention.SweepSpec, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for in-flight sweeps, bounded by a timeout.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.retention.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("retention sweep failed")
	}
}
