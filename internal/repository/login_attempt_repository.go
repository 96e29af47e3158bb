package repository

import (
	"context"
	"time"

	"tasvirbox/api/internal/models"
)

type AttemptRepository struct {
	db DBTX
}

func NewAttemptRepository(db DBTX) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func (r *AttemptRepository) Insert(ctx context.Context, attempt models.FailedLogin) error {
	const query = `
		INSERT INTO failed_logins (id, mobile, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query,
		attempt.ID,
		attempt.Mobile,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.CreatedAt,
	)
	return err
}

func (r *AttemptRepository) CountSince(ctx context.Context, mobile string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM failed_logins WHERE mobile = $1 AND created_at >= $2`
	var count int
	if err := r.db.QueryRow(ctx, query, mobile, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AttemptRepository) DeleteOlderThan(ctx context.Context, mobile string, cutoff time.Time) error {
	const query = `DELETE FROM failed_logins WHERE mobile = $1 AND created_at < $2`
	_, err := r.db.Exec(ctx, query, mobile, cutoff)
	return err
}

func (r *AttemptRepository) DeleteForMobile(ctx context.Context, mobile string) error {
	const query = `DELETE FROM failed_logins WHERE mobile = $1`
	_, err := r.db.Exec(ctx, query, mobile)
	return err
}

// PruneOlderThan drops attempts past the retention horizon across all
// mobiles. Run from the background reaper.
func (r *AttemptRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) error {
	const query = `DELETE FROM failed_logins WHERE created_at < $1`
	_, err := r.db.Exec(ctx, query, cutoff)
	return err
}
