package service

import (
	"context"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
)

type AuditStore interface {
	Insert(ctx context.Context, entry models.AuditEntry) error
	List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error)
}

// AuditService writes best-effort audit records. Record never returns an
// error; a failed write is logged and swallowed so telemetry can never fail
// a user request.
type AuditService struct {
	store AuditStore
	log   zerolog.Logger
}

func NewAuditService(store AuditStore, log zerolog.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

func (s *AuditService) Record(ctx context.Context, userID, action, targetID, detail string) {
	if s == nil || s.store == nil {
		return
	}
	entry := models.AuditEntry{
		ID:       ids.New(),
		UserID:   userID,
		Action:   action,
		TargetID: targetID,
		Detail:   detail,
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", action).Str("user_id", userID).Msg("audit write failed")
	}
}

func (s *AuditService) List(ctx context.Context, limit, offset int) ([]models.AuditEntry, error) {
	return s.store.List(ctx, limit, offset)
}
