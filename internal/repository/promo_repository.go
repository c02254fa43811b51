package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
)

var (
	ErrPromoNotFound   = errors.New("promo code not found")
	ErrPromoInactive   = errors.New("promo code inactive")
	ErrPromoExpired    = errors.New("promo code expired")
	ErrPromoExhausted  = errors.New("promo code exhausted")
	ErrAlreadyRedeemed = errors.New("promo code already redeemed")
)

const pgUniqueViolation = "23505"

type PromoRepository struct {
	pool *pgxpool.Pool
}

func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

func (r *PromoRepository) Create(ctx context.Context, promo models.PromoCode) error {
	const query = `
		INSERT INTO promo_codes (id, code, credits, max_uses, used_count, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		promo.ID,
		promo.Code,
		promo.Credits,
		promo.MaxUses,
		promo.UsedCount,
		promo.ExpiresAt,
		promo.Active,
	)
	return err
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (models.PromoCode, error) {
	const query = `
		SELECT id, code, credits, max_uses, used_count, expires_at, active, created_at
		FROM promo_codes WHERE code = $1
	`

	var promo models.PromoCode
	if err := r.pool.QueryRow(ctx, query, code).Scan(
		&promo.ID,
		&promo.Code,
		&promo.Credits,
		&promo.MaxUses,
		&promo.UsedCount,
		&promo.ExpiresAt,
		&promo.Active,
		&promo.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PromoCode{}, ErrPromoNotFound
		}
		return models.PromoCode{}, err
	}
	return promo, nil
}

// Redeem runs the whole redemption as one transaction: lock the code, check
// validity, insert the redemption proof, bump used_count, credit the balance
// and write the ledger row. The unique (user_id, promo_id) constraint closes
// the race between checking for a prior redemption and inserting one; a
// duplicate insert surfaces as ErrAlreadyRedeemed and nothing is granted.
func (r *PromoRepository) Redeem(ctx context.Context, userID, code string) (credits int64, balance int64, err error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	const lockPromo = `
		SELECT id, credits, max_uses, used_count, expires_at, active
		FROM promo_codes WHERE code = $1
		FOR UPDATE
	`

	var (
		promoID   string
		maxUses   int
		usedCount int
		expiresAt *time.Time
		active    bool
	)
	if err := tx.QueryRow(ctx, lockPromo, code).Scan(&promoID, &credits, &maxUses, &usedCount, &expiresAt, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrPromoNotFound
		}
		return 0, 0, err
	}

	if !active {
		return 0, 0, ErrPromoInactive
	}
	if expiresAt != nil && expiresAt.Before(time.Now()) {
		return 0, 0, ErrPromoExpired
	}
	if usedCount >= maxUses {
		return 0, 0, ErrPromoExhausted
	}

	const insertRedemption = `
		INSERT INTO promo_redemptions (id, user_id, promo_id, credits, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := tx.Exec(ctx, insertRedemption, ids.New(), userID, promoID, credits); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, 0, ErrAlreadyRedeemed
		}
		return 0, 0, err
	}

	const bumpUses = `
		UPDATE promo_codes SET used_count = used_count + 1 WHERE id = $1 AND used_count < max_uses
	`
	cmd, err := tx.Exec(ctx, bumpUses, promoID)
	if err != nil {
		return 0, 0, err
	}
	if cmd.RowsAffected() == 0 {
		return 0, 0, ErrPromoExhausted
	}

	const credit = `
		UPDATE users SET credit_balance = credit_balance + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING credit_balance
	`
	if err := tx.QueryRow(ctx, credit, userID, credits).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrUserNotFound
		}
		return 0, 0, err
	}

	if err := insertLedgerRow(ctx, tx, models.LedgerEntry{
		ID:           ids.New(),
		UserID:       userID,
		Kind:         models.LedgerKindGrant,
		Reason:       "promo:" + code,
		Amount:       credits,
		BalanceAfter: balance,
	}); err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, err
	}
	return credits, balance, nil
}
