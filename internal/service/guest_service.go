package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tasvirbox/api/internal/apperr"
	"tasvirbox/api/internal/config"
	"tasvirbox/api/internal/ids"
	"tasvirbox/api/internal/models"
	"tasvirbox/api/internal/repository"
)

// ObjectStorage is the slice of the object store the guest path needs;
// satisfied by *storage.ObjectStore.
type ObjectStorage interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectKey string) error
	GuestBucket() string
	PublicURL(objectKey string) string
}

type LimitReason string

const (
	ReasonUploadLimitExceeded LimitReason = "upload_limit_exceeded"
	ReasonFileTooLarge        LimitReason = "file_too_large"
	ReasonDisallowedExtension LimitReason = "disallowed_extension"
)

type MessageTier string

const (
	TierCritical MessageTier = "critical"
	TierWarning  MessageTier = "warning"
	TierInfo     MessageTier = "info"
)

// UpgradeMessageTier selects which registration-incentive copy to show.
// Classification only; it never gates behavior.
func UpgradeMessageTier(remaining int) MessageTier {
	switch {
	case remaining <= 0:
		return TierCritical
	case remaining <= 3:
		return TierWarning
	default:
		return TierInfo
	}
}

// QuotaError is a quota rejection the handler turns into a 4xx with
// incentive messaging; it is not part of the system-failure taxonomy.
type QuotaError struct {
	Reason    LimitReason
	Remaining int
}

func (e *QuotaError) Error() string {
	return string(e.Reason)
}

type LimitDecision struct {
	Allowed   bool
	Remaining int
	Reason    LimitReason
	Tier      MessageTier
}

// GuestService enforces per-device upload quotas for anonymous users. The
// device fingerprint is a soft anti-abuse key, not an identity boundary.
type GuestService struct {
	store   repository.Store
	objects ObjectStorage
	cfg     config.GuestConfig
	log     zerolog.Logger
	now     func() time.Time
}

func NewGuestService(store repository.Store, objects ObjectStorage, cfg config.GuestConfig, log zerolog.Logger) *GuestService {
	return &GuestService{
		store:   store,
		objects: objects,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

type FingerprintInput struct {
	DeviceCookie   string
	UserAgent      string
	AcceptLanguage string
	IPAddress      string
}

// Fingerprint derives a stable per-browser-session device id from the
// server-issued cookie plus client signals. Practically stable is enough;
// it does not need to be strong.
func Fingerprint(input FingerprintInput) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		input.DeviceCookie,
		input.UserAgent,
		input.AcceptLanguage,
		input.IPAddress,
	}, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func (s *GuestService) decide(usage models.GuestUsage, fileSize int64, extension string) LimitDecision {
	remaining := s.cfg.MaxUploads - usage.Count
	if remaining < 0 {
		remaining = 0
	}

	decision := LimitDecision{
		Remaining: remaining,
		Tier:      UpgradeMessageTier(remaining),
	}

	switch {
	case usage.Count >= s.cfg.MaxUploads:
		decision.Reason = ReasonUploadLimitExceeded
	case fileSize > s.cfg.MaxFileSizeBytes:
		decision.Reason = ReasonFileTooLarge
	case !s.extensionAllowed(extension):
		decision.Reason = ReasonDisallowedExtension
	default:
		decision.Allowed = true
	}
	return decision
}

func (s *GuestService) extensionAllowed(extension string) bool {
	normalized := strings.ToLower(strings.TrimPrefix(extension, "."))
	for _, allowed := range s.cfg.AllowedExtensions {
		if normalized == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// CheckLimit reports whether a device may upload a file of the given size
// and extension, and how much quota is left.
func (s *GuestService) CheckLimit(ctx context.Context, fingerprint string, fileSize int64, extension string) (LimitDecision, error) {
	usage, err := s.store.GuestUploads().Usage(ctx, fingerprint, s.now())
	if err != nil {
		return LimitDecision{}, apperr.System(err)
	}
	return s.decide(usage, fileSize, extension), nil
}

type RecordUploadInput struct {
	Fingerprint string
	IPAddress   string
	FileName    string
	Extension   string
	SizeBytes   int64
	ContentType string
	Body        io.Reader
}

type UploadRecord struct {
	Upload    models.GuestUpload
	URL       string
	Remaining int
	Tier      MessageTier
}

// RecordUpload writes the file to object storage, then inserts the quota
// row under a per-device lock that re-validates the count. Storage and
// database are different systems, so a failed insert is compensated by
// deleting the object rather than rolled back with it.
func (s *GuestService) RecordUpload(ctx context.Context, input RecordUploadInput) (UploadRecord, error) {
	pre, err := s.CheckLimit(ctx, input.Fingerprint, input.SizeBytes, input.Extension)
	if err != nil {
		return UploadRecord{}, err
	}
	if !pre.Allowed {
		return UploadRecord{}, &QuotaError{Reason: pre.Reason, Remaining: pre.Remaining}
	}

	uploadID := ids.New()
	objectKey := s.buildObjectKey(uploadID, input.Extension)

	if err := s.objects.Put(ctx, objectKey, input.Body, input.SizeBytes, input.ContentType); err != nil {
		return UploadRecord{}, apperr.System(err)
	}

	upload := models.GuestUpload{
		ID:          uploadID,
		Fingerprint: input.Fingerprint,
		IPAddress:   input.IPAddress,
		Bucket:      s.objects.GuestBucket(),
		ObjectKey:   objectKey,
		FileName:    input.FileName,
		Extension:   strings.ToLower(strings.TrimPrefix(input.Extension, ".")),
		SizeBytes:   input.SizeBytes,
		ExpiresAt:   s.retentionExpiry(),
	}

	var remaining int
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.GuestUploads().LockDevice(ctx, input.Fingerprint); err != nil {
			return apperr.System(err)
		}

		// Re-validate under the lock: two uploads racing for the last
		// slot must not both get in.
		usage, err := tx.GuestUploads().Usage(ctx, input.Fingerprint, s.now())
		if err != nil {
			return apperr.System(err)
		}
		if usage.Count >= s.cfg.MaxUploads {
			return &QuotaError{Reason: ReasonUploadLimitExceeded, Remaining: 0}
		}

		if err := tx.GuestUploads().Create(ctx, upload); err != nil {
			return apperr.System(err)
		}
		remaining = s.cfg.MaxUploads - usage.Count - 1
		return nil
	})
	if err != nil {
		// The object is already in the store with no row referencing it.
		if removeErr := s.objects.Remove(ctx, objectKey); removeErr != nil {
			s.log.Error().Err(removeErr).
				Str("object_key", objectKey).
				Msg("compensating delete failed; object orphaned until reap")
		}
		return UploadRecord{}, err
	}

	return UploadRecord{
		Upload:    upload,
		URL:       s.objects.PublicURL(objectKey),
		Remaining: remaining,
		Tier:      UpgradeMessageTier(remaining),
	}, nil
}

func (s *GuestService) buildObjectKey(uploadID string, extension string) string {
	datePrefix := s.now().UTC().Format("2006/01/02")
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	return path.Join("guest", datePrefix, fmt.Sprintf("%s.%s", uploadID, ext))
}

// ReapExpired removes lapsed guest uploads and their stored objects, one
// batch per call. A failed object removal leaves the row in place so the
// next run retries it.
func (s *GuestService) ReapExpired(ctx context.Context, batchSize int) (int, error) {
	expired, err := s.store.GuestUploads().ListExpired(ctx, s.now(), batchSize)
	if err != nil {
		return 0, apperr.System(err)
	}

	reaped := 0
	for _, upload := range expired {
		if err := s.objects.Remove(ctx, upload.ObjectKey); err != nil {
			s.log.Error().Err(err).
				Str("upload_id", upload.ID).
				Str("object_key", upload.ObjectKey).
				Msg("expired object removal failed")
			continue
		}
		if err := s.store.GuestUploads().Delete(ctx, upload.ID); err != nil {
			s.log.Error().Err(err).
				Str("upload_id", upload.ID).
				Msg("expired upload row delete failed")
			continue
		}
		reaped++
	}
	return reaped, nil
}

func (s *GuestService) retentionExpiry() *time.Time {
	if s.cfg.RetentionDays <= 0 {
		// Zero retention means uploads never expire.
		return nil
	}
	expiry := s.now().Add(time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	return &expiry
}
