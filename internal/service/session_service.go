package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tasvirbox/api/internal/apperr"
	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/repository"
	"tasvirbox/api/internal/security"
)

// SessionService issues, validates, and revokes opaque session tokens.
// Lifetime is fixed at issuance; validation refreshes last-seen only.
type SessionService struct {
	store repository.Store
	cfg   config.SessionConfig
	log   zerolog.Logger
	now   func() time.Time
}

func NewSessionService(store repository.Store, cfg config.SessionConfig, log zerolog.Logger) *SessionService {
	return &SessionService{
		store: store,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
	}
}

type DeviceInfo struct {
	UserAgent string
	IPAddress string
}

// Issue creates a session against the given store handle, so it can join
// the caller's transaction. The raw token is returned once and stored
// only as a hash.
func (s *SessionService) Issue(ctx context.Context, store repository.Store, accountID string, device DeviceInfo) (string, models.Session, error) {
	token, tokenHash, err := security.GenerateSessionToken()
	if err != nil {
		return "", models.Session{}, apperr.System(err)
	}

	now := s.now()
	session := models.Session{
		ID:         ids.New(),
		AccountID:  accountID,
		TokenHash:  tokenHash,
		UserAgent:  device.UserAgent,
		IPAddress:  device.IPAddress,
		Active:     true,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.cfg.Lifetime),
	}

	if err := store.Sessions().Create(ctx, session); err != nil {
		return "", models.Session{}, apperr.System(err)
	}
	return token, session, nil
}

// Validate resolves a raw token to its account. A token is valid iff the
// session is active, unexpired, and the account is itself active.
func (s *SessionService) Validate(ctx context.Context, token string, device DeviceInfo) (models.Account, models.Session, error) {
	session, err := s.store.Sessions().GetByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return models.Account{}, models.Session{}, apperr.NotFound("session not found")
		}
		return models.Account{}, models.Session{}, apperr.System(err)
	}

	now := s.now()
	if !session.Active || !session.ExpiresAt.After(now) {
		return models.Account{}, models.Session{}, apperr.NotFound("session expired or revoked")
	}

	account, err := s.store.Accounts().GetByID(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Account{}, models.Session{}, apperr.NotFound("session not found")
		}
		return models.Account{}, models.Session{}, apperr.System(err)
	}
	if account.Status != models.AccountStatusActive {
		return models.Account{}, models.Session{}, apperr.NotFound("session expired or revoked")
	}

	if err := s.store.Sessions().Touch(ctx, session.ID, device.IPAddress, device.UserAgent); err != nil {
		s.log.Warn().Err(err).Str("session_id", session.ID).Msg("session touch failed")
	}

	return account, session, nil
}

// Revoke clears the active flag for the session behind the token.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	session, err := s.store.Sessions().GetByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return apperr.NotFound("session not found")
		}
		return apperr.System(err)
	}

	if err := s.store.Sessions().Revoke(ctx, session.ID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return apperr.NotFound("session already revoked")
		}
		return apperr.System(err)
	}
	return nil
}
