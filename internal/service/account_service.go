package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tasvirbox/api/internal/apperr"
	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/notify"
	"tasvirbox/api/internal/repository"
	"tasvirbox/api/internal/security"
	"tasvirbox/api/internal/textnorm"
)

const minPasswordLength = 6

// AccountService drives the account state machine: registration creates a
// pending account guarded by a one-time code, verification flips it
// active exactly once, and login is throttled on failure evidence.
type AccountService struct {
	store    repository.Store
	sessions *SessionService
	throttle *LoginThrottle
	sender   notify.Sender
	cooldown *redis.Client
	cfg      *config.AppConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewAccountService(
	store repository.Store,
	sessions *SessionService,
	throttle *LoginThrottle,
	sender notify.Sender,
	cooldown *redis.Client,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		store:    store,
		sessions: sessions,
		throttle: throttle,
		sender:   sender,
		cooldown: cooldown,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

type RegisterInput struct {
	DisplayName string
	Mobile      string
	Password    string
	IPAddress   string
	UserAgent   string
}

type RegisterResult struct {
	AccountID string
	Mobile    string
}

func (s *AccountService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	mobile, ok := textnorm.ValidateMobile(input.Mobile)
	if !ok {
		return RegisterResult{}, apperr.Validation("mobile number is not valid")
	}
	if len(input.Password) < minPasswordLength {
		return RegisterResult{}, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if _, err := s.store.Accounts().GetByMobile(ctx, mobile); err == nil {
		return RegisterResult{}, apperr.Conflict("this mobile number is already registered")
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return RegisterResult{}, apperr.System(err)
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return RegisterResult{}, apperr.System(err)
	}

	account := models.Account{
		ID:           ids.New(),
		DisplayName:  input.DisplayName,
		Mobile:       mobile,
		PasswordHash: passwordHash,
		Status:       models.AccountStatusPending,
	}

	// Account insert, code insert, and notification dispatch commit
	// together: a pending account with no deliverable code must never
	// exist.
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			if errors.Is(err, repository.ErrDuplicateMobile) {
				return apperr.Conflict("this mobile number is already registered")
			}
			return apperr.System(err)
		}
		return s.issueCode(ctx, tx, account, models.CodePurposeRegister)
	})
	if err != nil {
		return RegisterResult{}, err
	}

	s.markCooldown(ctx, mobile)

	s.log.Info().
		Str("account_id", account.ID).
		Str("mobile", mobile).
		Msg("account registered")

	return RegisterResult{AccountID: account.ID, Mobile: mobile}, nil
}

// issueCode consumes any outstanding code, inserts a fresh one, and
// dispatches it inside the caller's transaction.
func (s *AccountService) issueCode(ctx context.Context, tx repository.Store, account models.Account, purpose models.CodePurpose) error {
	plainCode, err := security.GenerateOTPCode()
	if err != nil {
		return apperr.System(err)
	}

	if err := tx.Codes().ConsumeOutstanding(ctx, account.ID); err != nil {
		return apperr.System(err)
	}

	code := models.OneTimeCode{
		ID:        ids.New(),
		AccountID: account.ID,
		Mobile:    account.Mobile,
		Code:      plainCode,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(s.cfg.OTP.Expiry),
	}
	if err := tx.Codes().Create(ctx, code); err != nil {
		return apperr.System(err)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.",
		plainCode, int(s.cfg.OTP.Expiry.Minutes()))
	if err := s.sender.Send(ctx, account.Mobile, message); err != nil {
		return apperr.System(fmt.Errorf("dispatch code: %w", err))
	}
	return nil
}

type VerifyInput struct {
	Mobile    string
	Code      string
	IPAddress string
	UserAgent string
}

type AuthResult struct {
	AccountID    string
	DisplayName  string
	Mobile       string
	SessionToken string
	ExpiresAt    time.Time
}

func (s *AccountService) VerifyOTP(ctx context.Context, input VerifyInput) (AuthResult, error) {
	mobile, ok := textnorm.ValidateMobile(input.Mobile)
	if !ok {
		return AuthResult{}, apperr.Validation("mobile number is not valid")
	}
	submitted, ok := textnorm.ValidateOTP(input.Code)
	if !ok {
		return AuthResult{}, apperr.Validation("verification code must be 6 digits")
	}

	account, err := s.store.Accounts().GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return AuthResult{}, apperr.Validation("mobile or code incorrect")
		}
		return AuthResult{}, apperr.System(err)
	}
	switch account.Status {
	case models.AccountStatusActive:
		return AuthResult{}, apperr.Validation("account is already verified")
	case models.AccountStatusBanned:
		return AuthResult{}, apperr.Validation("mobile or code incorrect")
	}

	code, err := s.store.Codes().LatestUnconsumed(ctx, account.ID, mobile)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return AuthResult{}, apperr.Validation("no outstanding verification code; request a new one")
		}
		return AuthResult{}, apperr.System(err)
	}

	if !code.ExpiresAt.After(s.now()) {
		return AuthResult{}, apperr.Expired("verification code has expired; request a new one")
	}
	if code.Attempts >= s.cfg.OTP.MaxAttempts {
		return AuthResult{}, apperr.AttemptsExceeded("too many wrong attempts; request a new code")
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		// The increment must survive this request, so it runs outside
		// any rolled-back transaction.
		attempts, err := s.store.Codes().IncrementAttempts(ctx, code.ID)
		if err != nil {
			return AuthResult{}, apperr.System(err)
		}
		remaining := s.cfg.OTP.MaxAttempts - attempts
		if remaining <= 0 {
			return AuthResult{}, apperr.AttemptsExceeded("too many wrong attempts; request a new code")
		}
		return AuthResult{}, apperr.WrongCode(
			fmt.Sprintf("verification code incorrect, %d attempts remaining", remaining), remaining)
	}

	// Success path: flip the account, consume the code, issue the session,
	// and record the login in one transaction. The account row lock makes
	// concurrent verifications lose cleanly.
	var result AuthResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Accounts().GetByMobileForUpdate(ctx, mobile)
		if err != nil {
			return apperr.System(err)
		}
		if locked.Status != models.AccountStatusPending {
			return apperr.Validation("account is already verified")
		}

		if err := tx.Codes().MarkConsumed(ctx, code.ID); err != nil {
			if errors.Is(err, repository.ErrCodeNotFound) {
				return apperr.Validation("verification code already used")
			}
			return apperr.System(err)
		}

		if err := tx.Accounts().SetStatus(ctx, locked.ID, models.AccountStatusActive); err != nil {
			return apperr.System(err)
		}
		if err := tx.Accounts().RecordLogin(ctx, locked.ID, s.now()); err != nil {
			return apperr.System(err)
		}

		token, session, err := s.sessions.Issue(ctx, tx, locked.ID, DeviceInfo{
			UserAgent: input.UserAgent,
			IPAddress: input.IPAddress,
		})
		if err != nil {
			return err
		}

		result = AuthResult{
			AccountID:    locked.ID,
			DisplayName:  locked.DisplayName,
			Mobile:       locked.Mobile,
			SessionToken: token,
			ExpiresAt:    session.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().
		Str("account_id", result.AccountID).
		Str("mobile", mobile).
		Msg("account verified")

	return result, nil
}

type LoginInput struct {
	Mobile    string
	Password  string
	IPAddress string
	UserAgent string
}

func (s *AccountService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	mobile, ok := textnorm.ValidateMobile(input.Mobile)
	if !ok {
		return AuthResult{}, apperr.Validation("mobile number is not valid")
	}

	account, err := s.store.Accounts().GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			// Same message as a wrong password, so valid mobiles cannot
			// be enumerated through login.
			return AuthResult{}, apperr.Validation("mobile or password incorrect")
		}
		return AuthResult{}, apperr.System(err)
	}

	switch account.Status {
	case models.AccountStatusBanned:
		return AuthResult{}, apperr.Validation("this account has been banned")
	case models.AccountStatusPending:
		return AuthResult{}, apperr.Validation("account is not verified yet; complete verification first")
	}

	// The lock is evaluated before this attempt's own evidence is
	// written: the failure that crosses the threshold still reads as
	// wrong credentials, and only the following attempt sees the lock.
	locked, err := s.throttle.IsLocked(ctx, s.store.Attempts(), mobile, s.now())
	if err != nil {
		return AuthResult{}, apperr.System(err)
	}
	if locked {
		return AuthResult{}, apperr.Locked("too many failed attempts; try again in a few minutes")
	}

	ok, err = security.VerifyPassword(input.Password, account.PasswordHash)
	if err != nil {
		return AuthResult{}, apperr.System(err)
	}
	if !ok {
		if err := s.throttle.RecordFailure(ctx, s.store.Attempts(), mobile, input.IPAddress, input.UserAgent, s.now()); err != nil {
			s.log.Error().Err(err).Str("mobile", mobile).Msg("record login failure")
		}
		return AuthResult{}, apperr.Validation("mobile or password incorrect")
	}

	var result AuthResult
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := s.throttle.Clear(ctx, tx.Attempts(), mobile); err != nil {
			return apperr.System(err)
		}
		if err := tx.Accounts().RecordLogin(ctx, account.ID, s.now()); err != nil {
			return apperr.System(err)
		}

		token, session, err := s.sessions.Issue(ctx, tx, account.ID, DeviceInfo{
			UserAgent: input.UserAgent,
			IPAddress: input.IPAddress,
		})
		if err != nil {
			return err
		}

		result = AuthResult{
			AccountID:    account.ID,
			DisplayName:  account.DisplayName,
			Mobile:       account.Mobile,
			SessionToken: token,
			ExpiresAt:    session.ExpiresAt,
		}
		return nil
	})
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().
		Str("account_id", account.ID).
		Str("mobile", mobile).
		Msg("login succeeded")

	return result, nil
}

func (s *AccountService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// ResendCode issues a fresh code for a still-pending account, subject to
// the configured cool-down. Earlier unconsumed codes are invalidated so
// the latest issued code is the only authoritative one.
func (s *AccountService) ResendCode(ctx context.Context, rawMobile string) error {
	mobile, ok := textnorm.ValidateMobile(rawMobile)
	if !ok {
		return apperr.Validation("mobile number is not valid")
	}

	account, err := s.store.Accounts().GetByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return apperr.Validation("mobile or code incorrect")
		}
		return apperr.System(err)
	}
	switch account.Status {
	case models.AccountStatusActive:
		return apperr.Validation("account is already verified")
	case models.AccountStatusBanned:
		return apperr.Validation("mobile or code incorrect")
	}

	if err := s.checkCooldown(ctx, account); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(tx repository.Store) error {
		return s.issueCode(ctx, tx, account, models.CodePurposeRegister)
	})
	if err != nil {
		return err
	}

	s.markCooldown(ctx, mobile)
	return nil
}

// checkCooldown consults redis as the fast path and the latest code's
// creation time as the relational authority, so the cool-down survives a
// cache flush.
func (s *AccountService) checkCooldown(ctx context.Context, account models.Account) error {
	if s.cooldown != nil {
		exists, err := s.cooldown.Exists(ctx, cooldownKey(account.Mobile)).Result()
		if err != nil {
			s.log.Warn().Err(err).Str("mobile", account.Mobile).Msg("cooldown check failed")
		} else if exists > 0 {
			return apperr.Locked("please wait before requesting another code")
		}
	}

	code, err := s.store.Codes().LatestUnconsumed(ctx, account.ID, account.Mobile)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil
		}
		return apperr.System(err)
	}
	if s.now().Sub(code.CreatedAt) < s.cfg.OTP.ResendCooldown {
		return apperr.Locked("please wait before requesting another code")
	}
	return nil
}

func (s *AccountService) markCooldown(ctx context.Context, mobile string) {
	if s.cooldown == nil {
		return
	}
	if err := s.cooldown.SetNX(ctx, cooldownKey(mobile), "1", s.cfg.OTP.ResendCooldown).Err(); err != nil {
		s.log.Warn().Err(err).Str("mobile", mobile).Msg("cooldown mark failed")
	}
}

func cooldownKey(mobile string) string {
	return "otp:cooldown:" + mobile
}
