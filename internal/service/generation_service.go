package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/clock"
	"bermybanana/api/internal/config"
	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/provider"
	"bermybanana/api/internal/queue"
	"bermybanana/api/internal/repository"
)

type JobStore interface {
	Create(ctx context.Context, job models.GenerationJob) error
	GetForUser(ctx context.Context, id, userID string) (models.GenerationJob, error)
	GetByProviderTask(ctx context.Context, providerName, taskID, userID string) (models.GenerationJob, error)
	Advance(ctx context.Context, id string, to models.JobStatus, providerTaskID string) (bool, error)
	MarkTerminal(ctx context.Context, id string, status models.JobStatus, kind models.ErrorKind, message string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.GenerationJob, error)
}

type OutputStore interface {
	Create(ctx context.Context, output models.OutputAsset) error
	ListByJob(ctx context.Context, jobID string) ([]models.OutputAsset, error)
}

type ReferenceStore interface {
	GetForUser(ctx context.Context, refID, userID string) (models.ReferenceImage, error)
}

// BlobStore is the slice of the object store the orchestrator needs to
// archive finished generations.
type BlobStore interface {
	Put(ctx context.Context, bucket, objectKey string, r io.Reader, size int64, contentType string) (int64, error)
	PublicURL(bucket, objectKey string) string
	OutputsBucket() string
}

// GenerationService owns the job lifecycle: affordability, submission to a
// vendor adapter, the bounded polling loop, and terminal bookkeeping.
//
// Credit policy: the cost is debited when the job is submitted and refunded
// automatically, exactly once, if the job ends in failure. Completion keeps
// the debit.
type GenerationService struct {
	jobs      JobStore
	outputs   OutputStore
	refs      ReferenceStore
	ledger    CreditStore
	providers *provider.Registry
	store     BlobStore
	events    *queue.Publisher
	clk       clock.Clock
	cfg       *config.AppConfig
	log       zerolog.Logger
	http      *http.Client

	runCtx  context.Context
	runStop context.CancelFunc
}

func NewGenerationService(
	jobs JobStore,
	outputs OutputStore,
	refs ReferenceStore,
	ledger CreditStore,
	providers *provider.Registry,
	store BlobStore,
	events *queue.Publisher,
	clk clock.Clock,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *GenerationService {
	runCtx, runStop := context.WithCancel(context.Background())
	return &GenerationService{
		jobs:      jobs,
		outputs:   outputs,
		refs:      refs,
		ledger:    ledger,
		providers: providers,
		store:     store,
		events:    events,
		clk:       clk,
		cfg:       cfg,
		log:       log,
		http:      &http.Client{Timeout: 2 * time.Minute},
		runCtx:    runCtx,
		runStop:   runStop,
	}
}

// Stop aborts the in-flight polling loops. Jobs stay in their current state;
// remote tasks are not cancelled.
func (s *GenerationService) Stop() {
	s.runStop()
}

type SubmitInput struct {
	Provider    string
	Mode        models.GenerationMode
	Prompt      string
	ReferenceID string
}

func (s *GenerationService) Submit(ctx context.Context, user models.User, input SubmitInput) (models.GenerationJob, error) {
	adapter, err := s.providers.Get(input.Provider)
	if err != nil {
		return models.GenerationJob{}, invalidField("provider", "unknown provider")
	}
	if input.Mode != models.ModeImage && input.Mode != models.ModeVideo {
		return models.GenerationJob{}, invalidField("mode", "must be image or video")
	}
	if input.Prompt == "" {
		return models.GenerationJob{}, invalidField("prompt", "required")
	}

	req := provider.Request{
		Mode:   input.Mode,
		Prompt: input.Prompt,
		Pro:    user.Tier == models.TierPro && input.Mode == models.ModeVideo,
	}

	var referenceID *string
	if input.ReferenceID != "" {
		ref, err := s.refs.GetForUser(ctx, input.ReferenceID, user.ID)
		if err != nil {
			if errors.Is(err, repository.ErrReferenceNotFound) {
				return models.GenerationJob{}, ErrNotFoundOrForbidden
			}
			return models.GenerationJob{}, err
		}
		req.ReferenceImageURL = ref.URL
		referenceID = &ref.ID
	}

	cost := s.cost(input.Mode, user.Tier)
	jobID := ids.New()

	// The reservation commits before the (possibly slow) vendor call; no
	// database transaction spans the HTTP exchange.
	if _, err := s.ledger.Reserve(ctx, user.ID, cost, jobID); err != nil {
		return models.GenerationJob{}, err
	}

	job := models.GenerationJob{
		ID:          jobID,
		UserID:      user.ID,
		Provider:    input.Provider,
		Mode:        input.Mode,
		Prompt:      input.Prompt,
		ReferenceID: referenceID,
		Status:      models.JobStatusPending,
		CostCredits: cost,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// The reservation exists but the job row does not; refund so the
		// user is not charged for work that never started. The refund must
		// not die with the request context: with no job row there is no
		// terminal-failure path left to repair the ledger.
		if _, refundErr := s.ledger.RefundJob(context.WithoutCancel(ctx), user.ID, cost, jobID); refundErr != nil {
			s.log.Error().Err(refundErr).Str("job_id", jobID).Msg("refund after create failure failed")
		}
		return models.GenerationJob{}, err
	}

	submitCtx, cancel := context.WithTimeout(ctx, s.providerCfg(input.Provider).SubmitTimeout)
	defer cancel()

	handle, err := adapter.Submit(submitCtx, req)
	if err != nil {
		s.failJob(context.WithoutCancel(ctx), job, models.ErrorKindProvider, err.Error())
		return models.GenerationJob{}, err
	}

	if _, err := s.jobs.Advance(ctx, jobID, models.JobStatusSubmitted, handle.TaskID); err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("advance to submitted failed")
	}
	job.Status = models.JobStatusSubmitted
	job.ProviderTaskID = handle.TaskID
	s.publishEvent(job)

	go func() {
		if err := s.PollUntilTerminal(s.runCtx, job, handle); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Str("job_id", jobID).Msg("polling loop ended with error")
		}
	}()

	return job, nil
}

// PollUntilTerminal drives one job to a terminal state: wait one interval,
// poll once, repeat until the vendor reports a terminal state or the attempt
// budget runs out. Context cancellation stops the loop between steps without
// touching job state or the remote task.
func (s *GenerationService) PollUntilTerminal(ctx context.Context, job models.GenerationJob, handle provider.TaskHandle) error {
	adapter, err := s.providers.Get(job.Provider)
	if err != nil {
		return err
	}
	pcfg := s.providerCfg(job.Provider)

	if _, err := s.jobs.Advance(ctx, job.ID, models.JobStatusPolling, ""); err != nil {
		return fmt.Errorf("advance to polling: %w", err)
	}
	job.Status = models.JobStatusPolling
	s.publishEvent(job)

	var lastErr error
	for attempt := 0; attempt < pcfg.PollBudget; attempt++ {
		if err := s.clk.Sleep(ctx, pcfg.PollInterval); err != nil {
			return err
		}

		progress, err := adapter.Poll(ctx, handle)
		if err != nil {
			// Vendor hiccups consume an attempt; the budget is the only
			// retry mechanism.
			lastErr = err
			s.log.Warn().Err(err).Str("job_id", job.ID).Int("attempt", attempt+1).Msg("poll attempt failed")
			continue
		}

		switch progress.State {
		case provider.StateSucceeded:
			s.completeJob(ctx, job, progress)
			return nil
		case provider.StateFailed:
			s.failJob(ctx, job, models.ErrorKindProvider, progress.Message)
			return nil
		}
	}

	message := "polling budget exhausted"
	if lastErr != nil {
		message = fmt.Sprintf("%s; last error: %v", message, lastErr)
	}
	s.failJob(ctx, job, models.ErrorKindTimeout, message)
	return nil
}

// completeJob records success at most once. Whoever wins the terminal write
// archives the asset and creates the output row; losers do nothing.
func (s *GenerationService) completeJob(ctx context.Context, job models.GenerationJob, progress provider.Progress) {
	won, err := s.jobs.MarkTerminal(ctx, job.ID, models.JobStatusCompleted, models.ErrorKindNone, "")
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("mark completed failed")
		return
	}
	if !won {
		return
	}

	output := models.OutputAsset{
		ID:    ids.New(),
		JobID: job.ID,
		Type:  progress.OutputType,
		State: models.OutputStateActive,
	}

	bucket, objectKey, url, err := s.archive(ctx, job, output.ID, progress)
	if err != nil {
		// The vendor URL still works for a while; record it rather than
		// losing the asset.
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("archive failed, recording vendor url")
		bucket, objectKey, url = "", "", progress.OutputURL
	}
	output.Bucket = bucket
	output.ObjectKey = objectKey
	output.URL = url

	if err := s.outputs.Create(ctx, output); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("create output failed")
	}

	job.Status = models.JobStatusCompleted
	s.publishEvent(job)
	s.log.Info().Str("job_id", job.ID).Str("output_id", output.ID).Msg("generation completed")
}

// failJob records failure at most once and refunds the reservation. The
// refund rides on the terminal write winning, so a repeated failure report
// can never refund twice.
func (s *GenerationService) failJob(ctx context.Context, job models.GenerationJob, kind models.ErrorKind, message string) {
	won, err := s.jobs.MarkTerminal(ctx, job.ID, models.JobStatusFailed, kind, message)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("mark failed failed")
		return
	}
	if !won {
		return
	}

	if _, err := s.ledger.RefundJob(ctx, job.UserID, job.CostCredits, job.ID); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("refund failed")
	}

	job.Status = models.JobStatusFailed
	s.publishEvent(job)
	s.log.Warn().
		Str("job_id", job.ID).
		Str("kind", string(kind)).
		Str("message", message).
		Msg("generation failed")
}

// Cancel aborts a running job on the user's behalf: the remote task is
// cancelled through the adapter, the job is failed and the reservation
// refunded.
func (s *GenerationService) Cancel(ctx context.Context, userID, jobID string) (models.GenerationJob, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return models.GenerationJob{}, ErrNotFoundOrForbidden
		}
		return models.GenerationJob{}, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	if job.ProviderTaskID != "" {
		adapter, err := s.providers.Get(job.Provider)
		if err == nil {
			handle := provider.TaskHandle{Provider: job.Provider, TaskID: job.ProviderTaskID}
			if err := adapter.Cancel(ctx, handle); err != nil && !errors.Is(err, provider.ErrCancelNotSupported) {
				s.log.Warn().Err(err).Str("job_id", job.ID).Msg("remote cancel failed")
			}
		}
	}

	s.failJob(ctx, job, models.ErrorKindCanceled, "cancelled by user")
	return s.jobs.GetForUser(ctx, jobID, userID)
}

type JobStatusResult struct {
	Job     models.GenerationJob
	Outputs []models.OutputAsset
}

// Status serves the client-facing poll endpoint: the job's current state and
// any outputs, looked up by the vendor task id.
func (s *GenerationService) Status(ctx context.Context, userID, providerName, taskID string) (JobStatusResult, error) {
	job, err := s.jobs.GetByProviderTask(ctx, providerName, taskID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return JobStatusResult{}, ErrNotFoundOrForbidden
		}
		return JobStatusResult{}, err
	}

	outputs, err := s.outputs.ListByJob(ctx, job.ID)
	if err != nil {
		return JobStatusResult{}, err
	}
	return JobStatusResult{Job: job, Outputs: outputs}, nil
}

func (s *GenerationService) ListJobs(ctx context.Context, userID string, limit, offset int) ([]models.GenerationJob, error) {
	return s.jobs.ListByUser(ctx, userID, limit, offset)
}

func (s *GenerationService) GetJob(ctx context.Context, userID, jobID string) (models.GenerationJob, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return models.GenerationJob{}, ErrNotFoundOrForbidden
		}
		return models.GenerationJob{}, err
	}
	return job, nil
}

func (s *GenerationService) cost(mode models.GenerationMode, tier models.SubscriptionTier) int64 {
	if mode == models.ModeImage {
		return s.cfg.Credits.ImageCost
	}
	if tier == models.TierPro {
		return s.cfg.Credits.ProVideoCost
	}
	return s.cfg.Credits.VideoCost
}

func (s *GenerationService) providerCfg(name string) config.ProviderConfig {
	if name == provider.ProviderVeo {
		return s.cfg.Providers.Veo
	}
	return s.cfg.Providers.Kling
}

// archive copies the vendor's output into our bucket so the asset outlives
// the vendor's retention window.
func (s *GenerationService) archive(ctx context.Context, job models.GenerationJob, outputID string, progress provider.Progress) (bucket, objectKey, url string, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, progress.OutputURL, nil)
	if err != nil {
		return "", "", "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := s.http.Do(httpReq)
	if err != nil {
		return "", "", "", fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", "", fmt.Errorf("download output: unexpected status %d", resp.StatusCode)
	}

	ext, contentType := "mp4", "video/mp4"
	if progress.OutputType == models.OutputTypeImage {
		ext, contentType = "png", "image/png"
	}

	bucket = s.store.OutputsBucket()
	objectKey = path.Join(job.UserID, fmt.Sprintf("%s.%s", outputID, ext))

	if _, err := s.store.Put(ctx, bucket, objectKey, resp.Body, resp.ContentLength, contentType); err != nil {
		return "", "", "", err
	}
	return bucket, objectKey, s.store.PublicURL(bucket, objectKey), nil
}

func (s *GenerationService) publishEvent(job models.GenerationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.events.Publish(ctx, s.cfg.Retention.EventStream, map[string]any{
		"jobId":    job.ID,
		"userId":   job.UserID,
		"provider": job.Provider,
		"status":   string(job.Status),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("publish job event failed")
	}
}
