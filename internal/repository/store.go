package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tasvirbox/api/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrDuplicateMobile = errors.New("mobile already registered")
	ErrCodeNotFound    = errors.New("code not found")
	ErrSessionNotFound = errors.New("session not found")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every repository
// method works inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the persistence surface the services depend on. InTx hands the
// callback a Store whose writes all land in one transaction; nesting
// reuses the outer transaction.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error
	Accounts() Accounts
	Codes() Codes
	Sessions() Sessions
	Attempts() Attempts
	GuestUploads() GuestUploads
}

type Accounts interface {
	Create(ctx context.Context, account models.Account) error
	GetByMobile(ctx context.Context, mobile string) (models.Account, error)
	// GetByMobileForUpdate row-locks the account for the duration of the
	// enclosing transaction. The account row is the unit of mutual
	// exclusion for lifecycle transitions.
	GetByMobileForUpdate(ctx context.Context, mobile string) (models.Account, error)
	GetByID(ctx context.Context, id string) (models.Account, error)
	SetStatus(ctx context.Context, id string, status models.AccountStatus) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

type Codes interface {
	// ConsumeOutstanding marks every unconsumed code for the account as
	// consumed, so the code inserted next is the only authoritative one.
	ConsumeOutstanding(ctx context.Context, accountID string) error
	Create(ctx context.Context, code models.OneTimeCode) error
	LatestUnconsumed(ctx context.Context, accountID string, mobile string) (models.OneTimeCode, error)
	IncrementAttempts(ctx context.Context, id string) (int, error)
	MarkConsumed(ctx context.Context, id string) error
}

type Sessions interface {
	Create(ctx context.Context, session models.Session) error
	GetByTokenHash(ctx context.Context, tokenHash []byte) (models.Session, error)
	Touch(ctx context.Context, id string, ip string, userAgent string) error
	Revoke(ctx context.Context, id string) error
}

type Attempts interface {
	Insert(ctx context.Context, attempt models.FailedLogin) error
	CountSince(ctx context.Context, mobile string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, mobile string, cutoff time.Time) error
	DeleteForMobile(ctx context.Context, mobile string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) error
}

type GuestUploads interface {
	// LockDevice serializes quota decisions for one fingerprint within the
	// enclosing transaction via an advisory lock.
	LockDevice(ctx context.Context, fingerprint string) error
	Usage(ctx context.Context, fingerprint string, now time.Time) (models.GuestUsage, error)
	Create(ctx context.Context, upload models.GuestUpload) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.GuestUpload, error)
	Delete(ctx context.Context, id string) error
}

type postgresStore struct {
	pool     *pgxpool.Pool
	accounts *AccountRepository
	codes    *CodeRepository
	sessions *SessionRepository
	attempts *AttemptRepository
	uploads  *GuestUploadRepository
}

func NewStore(pool *pgxpool.Pool) Store {
	return newPostgresStore(pool, pool)
}

func newPostgresStore(db DBTX, pool *pgxpool.Pool) *postgresStore {
	return &postgresStore{
		pool:     pool,
		accounts: NewAccountRepository(db),
		codes:    NewCodeRepository(db),
		sessions: NewSessionRepository(db),
		attempts: NewAttemptRepository(db),
		uploads:  NewGuestUploadRepository(db),
	}
}

func (s *postgresStore) Accounts() Accounts         { return s.accounts }
func (s *postgresStore) Codes() Codes               { return s.codes }
func (s *postgresStore) Sessions() Sessions         { return s.sessions }
func (s *postgresStore) Attempts() Attempts         { return s.attempts }
func (s *postgresStore) GuestUploads() GuestUploads { return s.uploads }

func (s *postgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already transaction-backed.
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(newPostgresStore(tx, nil)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
