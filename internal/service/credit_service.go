package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/models"
)

// CreditStore is the slice of the ledger repository the services need.
type CreditStore interface {
	Reserve(ctx context.Context, userID string, amount int64, jobID string) (int64, error)
	Grant(ctx context.Context, userID string, amount int64, reason string, jobID *string) (int64, error)
	RefundJob(ctx context.Context, userID string, amount int64, jobID string) (bool, error)
	Balance(ctx context.Context, userID string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]models.LedgerEntry, error)
}

type PromoStore interface {
	Redeem(ctx context.Context, userID, code string) (credits int64, balance int64, err error)
}

type CreditService struct {
	ledger CreditStore
	promos PromoStore
	audit  *AuditService
	log    zerolog.Logger
}

func NewCreditService(ledger CreditStore, promos PromoStore, audit *AuditService, log zerolog.Logger) *CreditService {
	return &CreditService{
		ledger: ledger,
		promos: promos,
		audit:  audit,
		log:    log,
	}
}

type BalanceResult struct {
	Balance int64
	History []models.LedgerEntry
}

func (s *CreditService) Balance(ctx context.Context, userID string, limit, offset int) (BalanceResult, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return BalanceResult{}, err
	}
	history, err := s.ledger.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return BalanceResult{}, err
	}
	return BalanceResult{Balance: balance, History: history}, nil
}

type RedeemResult struct {
	Credits int64
	Balance int64
}

func (s *CreditService) RedeemPromo(ctx context.Context, userID, code string) (RedeemResult, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return RedeemResult{}, invalidField("code", "required")
	}

	credits, balance, err := s.promos.Redeem(ctx, userID, code)
	if err != nil {
		return RedeemResult{}, err
	}

	s.log.Info().
		Str("user_id", userID).
		Str("code", code).
		Int64("credits", credits).
		Msg("promo redeemed")
	s.audit.Record(ctx, userID, "promo.redeem", code, "")

	return RedeemResult{Credits: credits, Balance: balance}, nil
}

// GrantSubscription applies a billing-provider renewal: tier update plus the
// tier's credit allowance.
func (s *CreditService) GrantSubscription(ctx context.Context, userID string, tier models.SubscriptionTier, amount int64, reason string) (int64, error) {
	balance, err := s.ledger.Grant(ctx, userID, amount, reason, nil)
	if err != nil {
		return 0, err
	}
	s.audit.Record(ctx, userID, "credits.grant", string(tier), reason)
	return balance, nil
}
