package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tasvirbox/api/internal/models"
)

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	const query = `
		INSERT INTO accounts (
			id, display_name, mobile, password_hash, status, login_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, 0, NOW(), NOW()
		)
	`

	_, err := r.db.Exec(ctx, query,
		account.ID,
		account.DisplayName,
		account.Mobile,
		account.PasswordHash,
		account.Status,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: unique_violation on the mobile column.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateMobile
		}
		return err
	}
	return nil
}

const accountColumns = `
	id, display_name, mobile, password_hash, status, last_login_at, login_count, created_at, updated_at
`

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	if err := row.Scan(
		&account.ID,
		&account.DisplayName,
		&account.Mobile,
		&account.PasswordHash,
		&account.Status,
		&account.LastLoginAt,
		&account.LoginCount,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByMobile(ctx context.Context, mobile string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1`
	return scanAccount(r.db.QueryRow(ctx, query, mobile))
}

func (r *AccountRepository) GetByMobileForUpdate(ctx context.Context, mobile string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE mobile = $1 FOR UPDATE`
	return scanAccount(r.db.QueryRow(ctx, query, mobile))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *AccountRepository) SetStatus(ctx context.Context, id string, status models.AccountStatus) error {
	const query = `UPDATE accounts SET status = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE accounts
		SET last_login_at = $2, login_count = login_count + 1, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
