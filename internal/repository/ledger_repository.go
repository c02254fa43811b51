package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
)

// InsufficientCreditsError reports a failed reservation with the amounts the
// caller needs to explain the refusal.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Reserve debits amount from the user's balance and writes the matching
// ledger row in one transaction. The conditional UPDATE is what makes
// concurrent reservations safe: two stale affordability checks cannot both
// pass because the balance comparison happens inside the statement.
func (r *LedgerRepository) Reserve(ctx context.Context, userID string, amount int64, jobID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const debit = `
		UPDATE users
		SET credit_balance = credit_balance - $2, updated_at = NOW()
		WHERE id = $1 AND credit_balance >= $2
		RETURNING credit_balance
	`

	var balance int64
	if err := tx.QueryRow(ctx, debit, userID, amount).Scan(&balance); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		var available int64
		if err := tx.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1`, userID).Scan(&available); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return 0, ErrUserNotFound
			}
			return 0, err
		}
		return 0, &InsufficientCreditsError{Required: amount, Available: available}
	}

	if err := insertLedgerRow(ctx, tx, models.LedgerEntry{
		ID:           ids.New(),
		UserID:       userID,
		JobID:        &jobID,
		Kind:         models.LedgerKindDebit,
		Reason:       "generation",
		Amount:       amount,
		BalanceAfter: balance,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// Grant credits amount to the user and records the ledger row.
func (r *LedgerRepository) Grant(ctx context.Context, userID string, amount int64, reason string, jobID *string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	const credit = `
		UPDATE users
		SET credit_balance = credit_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credit_balance
	`

	var balance int64
	if err := tx.QueryRow(ctx, credit, userID, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}

	if err := insertLedgerRow(ctx, tx, models.LedgerEntry{
		ID:           ids.New(),
		UserID:       userID,
		JobID:        jobID,
		Kind:         models.LedgerKindGrant,
		Reason:       reason,
		Amount:       amount,
		BalanceAfter: balance,
	}); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// RefundJob returns the job's reservation to the owner. The partial unique
// index on (job_id) WHERE kind = 'refund' makes the operation idempotent: a
// second call inserts nothing and leaves the balance untouched.
func (r *LedgerRepository) RefundJob(ctx context.Context, userID string, amount int64, jobID string) (refunded bool, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Lock the user row so balance_after in the ledger matches the balance
	// the UPDATE below produces.
	var balance int64
	if err := tx.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, err
	}

	const insert = `
		INSERT INTO credit_ledger (id, user_id, job_id, kind, reason, amount, balance_after, created_at)
		VALUES ($1, $2, $3, 'refund', $4, $5, $6, NOW())
		ON CONFLICT (job_id) WHERE kind = 'refund' DO NOTHING
	`
	cmd, err := tx.Exec(ctx, insert, ids.New(), userID, jobID, "generation failed", amount, balance+amount)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET credit_balance = credit_balance + $2, updated_at = NOW() WHERE id = $1`,
		userID, amount,
	); err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}

func (r *LedgerRepository) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return balance, err
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error) {
	const query = `
		SELECT id, user_id, job_id, kind, reason, amount, balance_after, created_at
		FROM credit_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.JobID,
			&entry.Kind,
			&entry.Reason,
			&entry.Amount,
			&entry.BalanceAfter,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *LedgerRepository) CountByJob(ctx context.Context, jobID string, kind models.LedgerKind) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM credit_ledger WHERE job_id = $1 AND kind = $2`,
		jobID, kind,
	).Scan(&count)
	return count, err
}

func insertLedgerRow(ctx context.Context, tx pgx.Tx, entry models.LedgerEntry) error {
	const query = `
		INSERT INTO credit_ledger (id, user_id, job_id, kind, reason, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := tx.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.JobID,
		entry.Kind,
		entry.Reason,
		entry.Amount,
		entry.BalanceAfter,
	)
	return err
}
