// Package idempotency holds the persisted form of an idempotency key.
package idempotency

import (
	"time"
)

// Status of an idempotency record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
)

// Record is the stored outcome of a keyed request. A PENDING record whose
// LockedUntil has passed was abandoned by a crashed caller. Generation is
// bumped every time the key is taken over.
type Record struct {
	Key         string
	Operation   string
	RequestHash string
	Status      Status
	Response    []byte
	Generation  int
	LockedUntil time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Expired reports whether the record should be treated as absent.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Abandoned reports whether a PENDING record's lock has lapsed.
func (r *Record) Abandoned(now time.Time) bool {
	return r.Status == StatusPending && !now.Before(r.LockedUntil)
}
