package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tasvirbox/api/internal/models"
)

type CodeRepository struct {
	db DBTX
}

func NewCodeRepository(db DBTX) *CodeRepository {
	return &CodeRepository{db: db}
}

func (r *CodeRepository) ConsumeOutstanding(ctx context.Context, accountID string) error {
	const query = `
		UPDATE one_time_codes
		SET consumed_at = NOW()
		WHERE account_id = $1 AND consumed_at IS NULL
	`
	_, err := r.db.Exec(ctx, query, accountID)
	return err
}

func (r *CodeRepository) Create(ctx context.Context, code models.OneTimeCode) error {
	const query = `
		INSERT INTO one_time_codes (
			id, account_id, mobile, code, purpose, expires_at, attempts, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, 0, NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		code.ID,
		code.AccountID,
		code.Mobile,
		code.Code,
		code.Purpose,
		code.ExpiresAt,
	)
	return err
}

// LatestUnconsumed returns the most recently issued unconsumed code for the
// account and mobile, regardless of expiry or attempt count; the caller
// decides which failure to report.
func (r *CodeRepository) LatestUnconsumed(ctx context.Context, accountID string, mobile string) (models.OneTimeCode, error) {
	const query = `
		SELECT id, account_id, mobile, code, purpose, expires_at, attempts, consumed_at, created_at
		FROM one_time_codes
		WHERE account_id = $1 AND mobile = $2 AND consumed_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.db.QueryRow(ctx, query, accountID, mobile)
	var code models.OneTimeCode
	if err := row.Scan(
		&code.ID,
		&code.AccountID,
		&code.Mobile,
		&code.Code,
		&code.Purpose,
		&code.ExpiresAt,
		&code.Attempts,
		&code.ConsumedAt,
		&code.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.OneTimeCode{}, ErrCodeNotFound
		}
		return models.OneTimeCode{}, err
	}
	return code, nil
}

func (r *CodeRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	const query = `
		UPDATE one_time_codes
		SET attempts = attempts + 1
		WHERE id = $1
		RETURNING attempts
	`

	var attempts int
	if err := r.db.QueryRow(ctx, query, id).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrCodeNotFound
		}
		return 0, err
	}
	return attempts, nil
}

func (r *CodeRepository) MarkConsumed(ctx context.Context, id string) error {
	const query = `
		UPDATE one_time_codes
		SET consumed_at = NOW()
		WHERE id = $1 AND consumed_at IS NULL
	`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCodeNotFound
	}
	return nil
}
