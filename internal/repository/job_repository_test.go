package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bermybanana/api/internal/models"
)

func TestAdvance_NeverRegresses(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewJobRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 0)
	job := createTestJob(t, pool, user.ID, 10)

	advanced, err := repo.Advance(ctx, job.ID, models.JobStatusSubmitted, "task-1")
	if err != nil {
		t.Fatalf("advance to submitted: %v", err)
	}
	if !advanced {
		t.Fatal("expected pending -> submitted to apply")
	}

	advanced, err = repo.Advance(ctx, job.ID, models.JobStatusPolling, "")
	if err != nil {
		t.Fatalf("advance to polling: %v", err)
	}
	if !advanced {
		t.Fatal("expected submitted -> polling to apply")
	}

	// A stale writer trying to move the job backwards is a silent no-op.
	advanced, err = repo.Advance(ctx, job.ID, models.JobStatusSubmitted, "task-stale")
	if err != nil {
		t.Fatalf("stale advance: %v", err)
	}
	if advanced {
		t.Fatal("expected polling -> submitted to be rejected")
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.JobStatusPolling {
		t.Fatalf("expected status polling, got %s", got.Status)
	}
	if got.ProviderTaskID != "task-1" {
		t.Fatalf("expected task id preserved, got %q", got.ProviderTaskID)
	}
}

func TestMarkTerminal_FirstWriterWins(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewJobRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 0)
	job := createTestJob(t, pool, user.ID, 10)

	won, err := repo.MarkTerminal(ctx, job.ID, models.JobStatusCompleted, models.ErrorKindNone, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !won {
		t.Fatal("expected first terminal write to win")
	}

	// A late failure cannot overwrite the completion.
	won, err = repo.MarkTerminal(ctx, job.ID, models.JobStatusFailed, models.ErrorKindTimeout, "too late")
	if err != nil {
		t.Fatalf("late fail: %v", err)
	}
	if won {
		t.Fatal("expected second terminal write to lose")
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("expected status completed, got %s", got.Status)
	}
	if got.ErrorKind != models.ErrorKindNone || got.ErrorMessage != "" {
		t.Fatalf("late failure leaked into job: %+v", got)
	}
}

func TestMarkTerminal_ConcurrentSingleWinner(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewJobRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 0)
	job := createTestJob(t, pool, user.ID, 10)

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			status := models.JobStatusCompleted
			if n%2 == 0 {
				status = models.JobStatusFailed
			}
			won, err := repo.MarkTerminal(ctx, job.ID, status, models.ErrorKindNone, "")
			if err != nil {
				t.Errorf("mark terminal: %v", err)
				return
			}
			wins <- won
		}(i)
	}

	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one terminal winner, got %d", winners)
	}
}

func TestGetForUser_OwnershipGuard(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewJobRepository(pool)
	ctx := context.Background()

	owner := createTestUser(t, pool, 0)
	stranger := createTestUser(t, pool, 0)
	job := createTestJob(t, pool, owner.ID, 10)

	if _, err := repo.GetForUser(ctx, job.ID, stranger.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for foreign user, got %v", err)
	}
	if _, err := repo.GetForUser(ctx, job.ID, owner.ID); err != nil {
		t.Fatalf("owner read: %v", err)
	}
}

func TestGetByProviderTask(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewJobRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 0)
	job := createTestJob(t, pool, user.ID, 10)

	if _, err := repo.Advance(ctx, job.ID, models.JobStatusSubmitted, "vendor-42"); err != nil {
		t.Fatalf("advance: %v", err)
	}

	got, err := repo.GetByProviderTask(ctx, "kling", "vendor-42", user.ID)
	if err != nil {
		t.Fatalf("get by provider task: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("expected job %s, got %s", job.ID, got.ID)
	}

	if _, err := repo.GetByProviderTask(ctx, "veo", "vendor-42", user.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for wrong provider, got %v", err)
	}
}
