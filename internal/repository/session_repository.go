package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"tasvirbox/api/internal/models"
)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	const query = `
		INSERT INTO sessions (
			id, account_id, token_hash, user_agent, ip_address, active, created_at, last_seen_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, TRUE, NOW(), NOW(), $6
		)
	`

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.AccountID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
	)
	return err
}

func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash []byte) (models.Session, error) {
	const query = `
		SELECT id, account_id, token_hash, user_agent, ip_address, active, created_at, last_seen_at, expires_at
		FROM sessions
		WHERE token_hash = $1
	`

	row := r.db.QueryRow(ctx, query, tokenHash)
	var session models.Session
	if err := row.Scan(
		&session.ID,
		&session.AccountID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.Active,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

// Touch refreshes activity tracking. Expiry stays fixed at issuance.
func (r *SessionRepository) Touch(ctx context.Context, id string, ip string, userAgent string) error {
	const query = `
		UPDATE sessions
		SET last_seen_at = NOW(),
		    ip_address = COALESCE(NULLIF($2, ''), ip_address),
		    user_agent = COALESCE(NULLIF($3, ''), user_agent)
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id, ip, userAgent)
	return err
}

func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	const query = `UPDATE sessions SET active = FALSE WHERE id = $1 AND active`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
