package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"bermybanana/api/internal/config"
	"bermybanana/api/internal/ids"
	"bermybanana/api/internal/models"
	"bermybanana/api/internal/repository"
	"bermybanana/api/internal/security"
)

type AuthService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	ledger   CreditStore
	cfg      *config.AppConfig
	log      zerolog.Logger
}

func NewAuthService(
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	ledger CreditStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		ledger:   ledger,
		cfg:      cfg,
		log:      log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	if input.Email == "" {
		return AuthResult{}, invalidField("email", "required")
	}
	if len(input.Password) < 8 {
		return AuthResult{}, invalidField("password", "must be at least 8 characters")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, err
	}

	user := models.User{
		ID:           ids.New(),
		Email:        input.Email,
		PasswordHash: passwordHash,
		DisplayName:  input.DisplayName,
		Role:         models.UserRoleUser,
		Status:       models.UserStatusActive,
		Tier:         models.TierStandard,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return AuthResult{}, err
	}

	if s.cfg.Credits.SignupGrant > 0 {
		balance, err := s.ledger.Grant(ctx, user.ID, s.cfg.Credits.SignupGrant, "signup", nil)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", user.ID).Msg("signup grant failed")
		} else {
			user.CreditBalance = balance
		}
	}

	return s.createSession(ctx, user, "", "")
}

type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	user, err := s.users.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, err
	}

	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		return AuthResult{}, ErrInvalidCredentials
	}

	return s.createSession(ctx, user, input.IPAddress, input.UserAgent)
}

func (s *AuthService) createSession(ctx context.Context, user models.User, ipAddress, userAgent string) (AuthResult, error) {
	refreshToken, refreshHash, err := security.GenerateRefreshToken(64)
	if err != nil {
		return AuthResult{}, err
	}

	session := models.Session{
		ID:               ids.New(),
		UserID:           user.ID,
		DeviceID:         ids.New(),
		RefreshTokenHash: refreshHash,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		ExpiresAt:        time.Now().Add(s.cfg.Security.JWTRefreshTTL),
	}

	accessToken, err := security.GenerateAccessToken(
		s.cfg.Security.JWTAccessSecret,
		user.ID,
		session.ID,
		string(user.Role),
		string(user.Tier),
		s.cfg.Security.JWTAccessTTL,
	)
	if err != nil {
		return AuthResult{}, err
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, err
	}

	if err := s.enforceSessionLimit(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("user_id", user.ID).Msg("enforce session limit failed")
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

func (s *AuthService) enforceSessionLimit(ctx context.Context, userID string) error {
	count, err := s.sessions.CountByUser(ctx, userID)
	if err != nil {
		return err
	}
	if count <= s.cfg.Security.MaxSessions {
		return nil
	}
	return s.sessions.DeleteOldestSessions(ctx, userID, s.cfg.Security.MaxSessions)
}

type RefreshInput struct {
	SessionID    string
	RefreshToken string
}

func (s *AuthService) Refresh(ctx context.Context, input RefreshInput) (AuthResult, error) {
	session, err := s.sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}

	hash := security.HashRefreshToken(input.RefreshToken)
	if subtle.ConstantTimeCompare(hash, session.RefreshTokenHash) != 1 {
		return AuthResult{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return AuthResult{}, ErrInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return AuthResult{}, ErrUserSuspended
	}

	// Rotate: the old session dies with its refresh token.
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("delete rotated session failed")
	}

	return s.createSession(ctx, user, session.IPAddress, session.UserAgent)
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	err := s.sessions.Delete(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil
	}
	return err
}
