package models

import "time"

// Session is proof of an authenticated browsing context. The raw token is
// never stored; only its SHA-256 hash is. Expiry is fixed at issuance and
// never extended; LastSeenAt is informational.
type Session struct {
	ID         string
	AccountID  string
	TokenHash  []byte
	UserAgent  string
	IPAddress  string
	Active     bool
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}
