package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"bermybanana/api/internal/ids"
)

func TestReserve_ConcurrentNeverOverdraws(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 100)

	const workers = 20
	const cost = 10

	jobs := make([]string, workers)
	for i := range jobs {
		jobs[i] = createTestJob(t, pool, user.ID, cost).ID
	}

	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(jobID string) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, user.ID, cost, jobID)
			results <- err
		}(jobs[i])
	}

	wg.Wait()
	close(results)

	succeeded := 0
	rejected := 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			var insufficient *InsufficientCreditsError
			if !errors.As(err, &insufficient) {
				t.Fatalf("unexpected reserve error: %v", err)
			}
			rejected++
		}
	}

	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful reservations, got %d (rejected %d)", succeeded, rejected)
	}

	balance, err := repo.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 0 {
		t.Fatalf("expected balance 0 after exhausting credits, got %d", balance)
	}
}

func TestReserve_InsufficientReportsAmounts(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 30)
	job := createTestJob(t, pool, user.ID, 50)

	_, err := repo.Reserve(ctx, user.ID, 50, job.ID)
	var insufficient *InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if insufficient.Required != 50 || insufficient.Available != 30 {
		t.Fatalf("expected required=50 available=30, got %+v", insufficient)
	}

	// A failed reservation must leave no ledger row behind.
	count, err := repo.CountByJob(ctx, job.ID, "debit")
	if err != nil {
		t.Fatalf("count by job: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no debit rows for rejected reservation, got %d", count)
	}
}

func TestReserve_UnknownUser(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)

	_, err := repo.Reserve(context.Background(), ids.New(), 10, ids.New())
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRefundJob_ExactlyOnce(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 100)
	job := createTestJob(t, pool, user.ID, 40)

	if _, err := repo.Reserve(ctx, user.ID, 40, job.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	refunded, err := repo.RefundJob(ctx, user.ID, 40, job.ID)
	if err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if !refunded {
		t.Fatal("expected first refund to apply")
	}

	refunded, err = repo.RefundJob(ctx, user.ID, 40, job.ID)
	if err != nil {
		t.Fatalf("second refund: %v", err)
	}
	if refunded {
		t.Fatal("expected second refund to be a no-op")
	}

	balance, err := repo.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected balance restored to 100, got %d", balance)
	}
}

func TestRefundJob_ConcurrentSingleWinner(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 100)
	job := createTestJob(t, pool, user.ID, 25)

	if _, err := repo.Reserve(ctx, user.ID, 25, job.ID); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refunded, err := repo.RefundJob(ctx, user.ID, 25, job.ID)
			if err != nil {
				t.Errorf("refund: %v", err)
				return
			}
			wins <- refunded
		}()
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
		t.Fatalf("expected exactly one refund winner, got %d", winners)
	}

	balance, err := repo.Balance(ctx, user.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}
}

func TestGrant_AppendsLedgerRow(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewLedgerRepository(pool)
	ctx := context.Background()

	user := createTestUser(t, pool, 0)

	balance, err := repo.Grant(ctx, user.ID, 100, "signup", nil)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected balance 100, got %d", balance)
	}

	entries, err := repo.ListByUser(ctx, user.ID, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(entries))
	}
	if entries[0].Kind != "grant" || entries[0].Reason != "signup" || entries[0].BalanceAfter != 100 {
		t.Fatalf("unexpected ledger entry: %+v", entries[0])
	}
}
