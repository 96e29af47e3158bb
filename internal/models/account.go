package models

import "time"

type AccountStatus string

const (
	AccountStatusPending AccountStatus = "pending"
	AccountStatusActive  AccountStatus = "active"
	AccountStatusBanned  AccountStatus = "banned"
)

type Account struct {
	ID           string
	DisplayName  string
	Mobile       string
	PasswordHash []byte
	Status       AccountStatus
	LastLoginAt  *time.Time
	LoginCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
