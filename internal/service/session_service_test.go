package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvirbox/api/internal/apperr"
	"tasvirbox/api/internal/models"
)

func TestSessionLifetimeIsFixed(t *testing.T) {
	env := newTestEnv(t)
	result := env.registerAndVerify(t, "09123456789", "secret1")

	issuedExpiry := result.ExpiresAt

	// Activity refreshes last-seen but never pushes expiry out.
	env.advance(3 * 24 * time.Hour)
	_, session, err := env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{IPAddress: "10.0.0.9"})
	require.NoError(t, err)
	assert.Equal(t, issuedExpiry, session.ExpiresAt)

	env.advance(3 * 24 * time.Hour)
	_, session, err = env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, issuedExpiry, session.ExpiresAt)

	// Past the issuance lifetime the token is dead, recent activity or
	// not.
	env.advance(2 * 24 * time.Hour)
	_, _, err = env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidateTouchesLastSeen(t *testing.T) {
	env := newTestEnv(t)
	result := env.registerAndVerify(t, "09123456789", "secret1")

	env.advance(time.Hour)
	_, session, err := env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{})
	require.NoError(t, err)

	// Validate returns the session as read; the touch lands for the
	// next read.
	_ = session
	_, session, err = env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{})
	require.NoError(t, err)
	assert.Equal(t, env.clock, session.LastSeenAt)
}

func TestValidateUnknownToken(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.sessions.Validate(context.Background(), "not-a-token", DeviceInfo{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestValidateRejectsInactiveAccount(t *testing.T) {
	env := newTestEnv(t)
	result := env.registerAndVerify(t, "09123456789", "secret1")

	require.NoError(t, env.store.Accounts().SetStatus(context.Background(), result.AccountID, models.AccountStatusBanned))

	_, _, err := env.sessions.Validate(context.Background(), result.SessionToken, DeviceInfo{})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConcurrentSessionsPermitted(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndVerify(t, "09123456789", "secret1")

	first, err := env.accounts.Login(context.Background(), LoginInput{Mobile: "09123456789", Password: "secret1"})
	require.NoError(t, err)
	second, err := env.accounts.Login(context.Background(), LoginInput{Mobile: "09123456789", Password: "secret1"})
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionToken, second.SessionToken)

	_, _, err = env.sessions.Validate(context.Background(), first.SessionToken, DeviceInfo{})
	require.NoError(t, err)
	_, _, err = env.sessions.Validate(context.Background(), second.SessionToken, DeviceInfo{})
	require.NoError(t, err)

	// Revoking one leaves the other alive.
	require.NoError(t, env.sessions.Revoke(context.Background(), first.SessionToken))
	_, _, err = env.sessions.Validate(context.Background(), first.SessionToken, DeviceInfo{})
	assert.Error(t, err)
	_, _, err = env.sessions.Validate(context.Background(), second.SessionToken, DeviceInfo{})
	require.NoError(t, err)
}
