// internal/state/state.go
package state

import (
	"errors"
	"time"

	"github.com/FairForge/greenlight/internal/environment"
)

// ErrNotFound is returned when a team has no persisted state yet.
var ErrNotFound = errors.New("state: not found")

// SwitchState is the committed per-team record of which environment is live.
// When SwitchInProgress is false, ActiveEnvironment names the environment
// currently receiving traffic.
type SwitchState struct {
	ActiveEnvironment   environment.Environment `json:"active_environment"`
	PreviousEnvironment environment.Environment `json:"previous_environment"`
	LastSwitchTimestamp time.Time               `json:"last_switch_timestamp"`
	SwitchInProgress    bool                    `json:"switch_in_progress"`
}

// Clone returns a copy safe to mutate.
func (s *SwitchState) Clone() *SwitchState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Backup is a snapshot of SwitchState taken before a mutating operation.
// Used exclusively by the rollback path.
type Backup struct {
	Team    string      `json:"team"`
	TakenAt time.Time   `json:"taken_at"`
	State   SwitchState `json:"state"`
}

// Store is the durable per-team switch state record.
type Store interface {
	// Get returns the committed state for a team, or ErrNotFound.
	Get(team string) (*SwitchState, error)

	// GetOrInit returns the state, creating the first-deployment record
	// (active=blue) if none exists.
	GetOrInit(team string) (*SwitchState, error)

	// Put durably commits a new state. Writes are atomic: a concurrent
	// reader sees either the old or the new record, never a partial one.
	Put(team string, st *SwitchState) error

	// Snapshot records a backup of the current state and returns it.
	Snapshot(team string) (*Backup, error)

	// LatestBackup returns the most recent backup, or ErrNotFound.
	LatestBackup(team string) (*Backup, error)

	// Backups returns retained backups, oldest first.
	Backups(team string) ([]*Backup, error)
}
