package models

import "time"

type CodePurpose string

const (
	CodePurposeRegister      CodePurpose = "register"
	CodePurposeLogin         CodePurpose = "login"
	CodePurposePasswordReset CodePurpose = "password_reset"
)

// OneTimeCode is a short-lived proof of mobile-number possession. At most
// one unconsumed code is authoritative per account; issuing a new one
// consumes every earlier unconsumed row.
type OneTimeCode struct {
	ID         string
	AccountID  string
	Mobile     string
	Code       string
	Purpose    CodePurpose
	ExpiresAt  time.Time
	Attempts   int
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
