package repository

import (
	"context"
	"time"

	"tasvirbox/api/internal/models"
)

type GuestUploadRepository struct {
	db DBTX
}

func NewGuestUploadRepository(db DBTX) *GuestUploadRepository {
	return &GuestUploadRepository{db: db}
}

// LockDevice takes a transaction-scoped advisory lock keyed by the device
// fingerprint, serializing concurrent count-then-insert sequences for one
// device. Released on commit or rollback.
func (r *GuestUploadRepository) LockDevice(ctx context.Context, fingerprint string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext('guest_quota'), hashtext($1))`
	_, err := r.db.Exec(ctx, query, fingerprint)
	return err
}

// Usage counts non-expired uploads for a fingerprint. Expired rows are
// excluded here rather than swept.
func (r *GuestUploadRepository) Usage(ctx context.Context, fingerprint string, now time.Time) (models.GuestUsage, error) {
	const query = `
		SELECT COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM guest_uploads
		WHERE fingerprint = $1 AND (expires_at IS NULL OR expires_at > $2)
	`

	var usage models.GuestUsage
	if err := r.db.QueryRow(ctx, query, fingerprint, now).Scan(&usage.Count, &usage.TotalBytes); err != nil {
		return models.GuestUsage{}, err
	}
	return usage, nil
}

func (r *GuestUploadRepository) Create(ctx context.Context, upload models.GuestUpload) error {
	const query = `
		INSERT INTO guest_uploads (
			id, fingerprint, ip_address, bucket, object_key, file_name, extension, size_bytes, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		upload.ID,
		upload.Fingerprint,
		upload.IPAddress,
		upload.Bucket,
		upload.ObjectKey,
		upload.FileName,
		upload.Extension,
		upload.SizeBytes,
		upload.ExpiresAt,
	)
	return err
}

// ListExpired returns a batch of uploads whose retention has lapsed, for
// the reaper to remove along with their objects.
func (r *GuestUploadRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.GuestUpload, error) {
	const query = `
		SELECT id, fingerprint, ip_address, bucket, object_key, file_name, extension, size_bytes, expires_at, created_at
		FROM guest_uploads
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []models.GuestUpload
	for rows.Next() {
		var upload models.GuestUpload
		if err := rows.Scan(
			&upload.ID,
			&upload.Fingerprint,
			&upload.IPAddress,
			&upload.Bucket,
			&upload.ObjectKey,
			&upload.FileName,
			&upload.Extension,
			&upload.SizeBytes,
			&upload.ExpiresAt,
			&upload.CreatedAt,
		); err != nil {
			return nil, err
		}
		uploads = append(uploads, upload)
	}
	return uploads, rows.Err()
}

func (r *GuestUploadRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM guest_uploads WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id)
	return err
}
