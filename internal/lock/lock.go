// internal/lock/lock.go
package lock

import (
	"errors"
	"time"
)

// Lock errors.
var (
	// ErrHeld means another valid token exists for the team.
	ErrHeld = errors.New("lock: held by another operation")

	// ErrStale means the existing token exceeds the staleness threshold.
	// Acquire never reclaims it silently; reclaiming is the operator's call.
	ErrStale = errors.New("lock: held but stale")

	// ErrNotHeld means no lock exists for the team.
	ErrNotHeld = errors.New("lock: not held")

	// ErrTokenMismatch means the caller's token does not own the lock.
	ErrTokenMismatch = errors.New("lock: token mismatch")

	// ErrNotStale means a reclaim was requested for a still-valid lock.
	ErrNotStale = errors.New("lock: holder is not stale")
)

// Token proves ownership of a team's lock.
type Token struct {
	Team       string    `json:"team"`
	ID         string    `json:"id"`
	Operator   string    `json:"operator"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Manager serializes switch operations per team. At most one valid token
// exists per team at any instant; acquisition is atomic with respect to
// concurrent callers.
type Manager interface {
	// Acquire takes the team's lock. Fails with ErrHeld if a valid token
	// exists, or ErrStale if the holder exceeds the staleness threshold.
	Acquire(team, operator string) (*Token, error)

	// Release frees the lock. Idempotent: releasing an absent or mismatched
	// token returns an error but corrupts nothing.
	Release(team string, token *Token) error

	// ReclaimStale replaces a stale holder with a fresh token. It refuses
	// to touch a still-valid lock.
	ReclaimStale(team, operator string) (*Token, error)

	// Holder reports the current token, or ErrNotHeld.
	Holder(team string) (*Token, error)
}
