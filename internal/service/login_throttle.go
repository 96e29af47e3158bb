package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/repository"
)

// LoginThrottle locks a mobile number out of login once it accumulates
// enough failure evidence inside the trailing window. The failure that
// crosses the threshold is itself still reported as wrong credentials;
// only the next attempt observes the lock.
type LoginThrottle struct {
	cfg config.ThrottleConfig
	log zerolog.Logger
}

func NewLoginThrottle(cfg config.ThrottleConfig, log zerolog.Logger) *LoginThrottle {
	return &LoginThrottle{cfg: cfg, log: log}
}

// IsLocked prunes stale evidence opportunistically, then reports whether
// the mobile has reached the failure threshold within the window.
func (t *LoginThrottle) IsLocked(ctx context.Context, attempts repository.Attempts, mobile string, now time.Time) (bool, error) {
	if err := attempts.DeleteOlderThan(ctx, mobile, now.Add(-t.cfg.RetentionAge)); err != nil {
		// Pruning is housekeeping; a failure here must not block login.
		t.log.Warn().Err(err).Str("mobile", mobile).Msg("prune failed logins")
	}

	count, err := attempts.CountSince(ctx, mobile, now.Add(-t.cfg.Window))
	if err != nil {
		return false, err
	}
	return count >= t.cfg.Threshold, nil
}

// RecordFailure inserts exactly one failure record. The lockout decision
// is re-evaluated independently on the next attempt.
func (t *LoginThrottle) RecordFailure(ctx context.Context, attempts repository.Attempts, mobile string, ip string, userAgent string, now time.Time) error {
	return attempts.Insert(ctx, models.FailedLogin{
		ID:        ids.New(),
		Mobile:    mobile,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
	})
}

// Clear wipes all evidence for the mobile after a successful login, so a
// later wrong attempt starts a fresh count.
func (t *LoginThrottle) Clear(ctx context.Context, attempts repository.Attempts, mobile string) error {
	return attempts.DeleteForMobile(ctx, mobile)
}
