package models

import "time"

// GuestUpload tracks one anonymous upload against a device fingerprint.
// Rows past ExpiresAt are excluded from quota counts; physical reaping is
// left to an external worker.
type GuestUpload struct {
	ID          string
	Fingerprint string
	IPAddress   string
	Bucket      string
	ObjectKey   string
	FileName    string
	Extension   string
	SizeBytes   int64
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// GuestUsage is the aggregate the quota decision reads.
type GuestUsage struct {
	Count      int
	TotalBytes int64
}
