package ids

import "github.com/segmentio/ksuid"

// New returns a new K-sortable unique identifier string.
func New() string {
	return ksuid.New().String()
}
