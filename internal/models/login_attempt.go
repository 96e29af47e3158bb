package models

import "time"

// FailedLogin is one piece of throttling evidence. Rows older than an hour
// are pruned opportunistically; all rows for a mobile are cleared on the
// next successful login.
type FailedLogin struct {
	ID        string
	Mobile    string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
}
