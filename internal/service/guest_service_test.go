package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasvirbox/api/internal/apperr"
	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/models"
)

func TestUpgradeMessageTier(t *testing.T) {
	cases := []struct {
		remaining int
		want      MessageTier
	}{
		{-1, TierCritical},
		{0, TierCritical},
		{1, TierWarning},
		{3, TierWarning},
		{4, TierInfo},
		{10, TierInfo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, UpgradeMessageTier(tc.remaining), "remaining %d", tc.remaining)
	}
}

func TestFingerprintStability(t *testing.T) {
	input := FingerprintInput{
		DeviceCookie:   "cookie-1",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "fa-IR",
		IPAddress:      "10.0.0.1",
	}

	assert.Equal(t, Fingerprint(input), Fingerprint(input))

	other := input
	other.DeviceCookie = "cookie-2"
	assert.NotEqual(t, Fingerprint(input), Fingerprint(other))
}

func (env *testEnv) guestUpload(t *testing.T, fingerprint string, name string) (UploadRecord, error) {
	t.Helper()
	return env.guests.RecordUpload(context.Background(), RecordUploadInput{
		Fingerprint: fingerprint,
		IPAddress:   "10.0.0.1",
		FileName:    name,
		Extension:   "jpg",
		SizeBytes:   1024,
		ContentType: "image/jpeg",
		Body:        strings.NewReader("fake image bytes"),
	})
}

func TestCheckLimitReasons(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	decision, err := env.guests.CheckLimit(context.Background(), fp, 1024, "jpg")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 10, decision.Remaining)
	assert.Equal(t, TierInfo, decision.Tier)

	decision, err = env.guests.CheckLimit(context.Background(), fp, 2<<20, "jpg")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonFileTooLarge, decision.Reason)

	decision, err = env.guests.CheckLimit(context.Background(), fp, 1024, "exe")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonDisallowedExtension, decision.Reason)

	// Extensions compare case-insensitively, with or without the dot.
	decision, err = env.guests.CheckLimit(context.Background(), fp, 1024, ".JPG")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestGuestQuotaEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	for i := 0; i < 10; i++ {
		record, err := env.guestUpload(t, fp, fmt.Sprintf("photo-%d.jpg", i))
		require.NoError(t, err, "upload %d", i+1)
		assert.Equal(t, 10-i-1, record.Remaining)
	}

	_, err := env.guestUpload(t, fp, "one-too-many.jpg")
	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, ReasonUploadLimitExceeded, quotaErr.Reason)
	assert.Equal(t, 0, quotaErr.Remaining)
	assert.Equal(t, TierCritical, UpgradeMessageTier(quotaErr.Remaining))

	// A different device is unaffected.
	_, err = env.guestUpload(t, "device-2", "other.jpg")
	require.NoError(t, err)

	// Ten objects stayed in the store for the full device, none for the
	// rejected attempt.
	assert.Equal(t, 11, env.objects.count())
}

func TestGuestQuotaWarningTiers(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	var record UploadRecord
	var err error
	for i := 0; i < 7; i++ {
		record, err = env.guestUpload(t, fp, fmt.Sprintf("p%d.jpg", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, record.Remaining)
	assert.Equal(t, TierWarning, record.Tier)
}

func TestExpiredUploadsFreeQuota(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	for i := 0; i < 10; i++ {
		_, err := env.guestUpload(t, fp, fmt.Sprintf("p%d.jpg", i))
		require.NoError(t, err)
	}
	_, err := env.guestUpload(t, fp, "rejected.jpg")
	require.Error(t, err)

	// Retention is 30 days; once rows expire they stop counting.
	env.advance(31 * 24 * time.Hour)

	decision, err := env.guests.CheckLimit(context.Background(), fp, 1024, "jpg")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 10, decision.Remaining)
}

func TestReapExpiredRemovesRowsAndObjects(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	for i := 0; i < 3; i++ {
		_, err := env.guestUpload(t, fp, fmt.Sprintf("p%d.jpg", i))
		require.NoError(t, err)
	}
	require.Equal(t, 3, env.objects.count())

	env.advance(31 * 24 * time.Hour)

	reaped, err := env.guests.ReapExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 3, reaped)
	assert.Equal(t, 0, env.objects.count())

	// A second pass finds nothing left.
	reaped, err = env.guests.ReapExpired(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}

func TestRecordUploadCompensatesOnMetadataFailure(t *testing.T) {
	env := newTestEnv(t)
	env.store.createUploadErr = errors.New("db down")

	_, err := env.guestUpload(t, "device-1", "photo.jpg")
	require.Error(t, err)
	assert.Equal(t, apperr.KindSystem, apperr.KindOf(err))

	// The object written before the failed insert was deleted again.
	assert.Equal(t, 0, env.objects.count())
}

func TestRecordUploadLastSlotRace(t *testing.T) {
	env := newTestEnv(t)
	fp := "device-1"

	for i := 0; i < 9; i++ {
		_, err := env.guestUpload(t, fp, fmt.Sprintf("p%d.jpg", i))
		require.NoError(t, err)
	}

	// A competing upload sneaks in between the pre-check and the locked
	// re-count; the re-validation under the device lock must catch it.
	env.store.onLockDevice = func(f *fakeStore) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.uploads = append(f.uploads, models.GuestUpload{
			ID:          ids.New(),
			Fingerprint: fp,
			Bucket:      "guest-test",
			ObjectKey:   "guest/race/competing.jpg",
			Extension:   "jpg",
			SizeBytes:   1024,
			CreatedAt:   env.clock,
		})
		f.onLockDevice = nil
	}

	_, err := env.guestUpload(t, fp, "loser.jpg")
	var quotaErr *QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, ReasonUploadLimitExceeded, quotaErr.Reason)

	// The loser's object was compensated away; only the nine originals
	// remain in the store.
	assert.Equal(t, 9, env.objects.count())
}
