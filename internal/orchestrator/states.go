// internal/orchestrator/states.go
package orchestrator

import (
	"time"

	"github.com/FairForge/greenlight/internal/environment"
)

// State is a phase of the switch state machine. Every operation resolves
// to one of the terminal states; there is no path that simply stops.
type State string

const (
	StateIdle           State = "idle"
	StateLocked         State = "locked"
	StatePreValidating  State = "pre_validating"
	StateSwitching      State = "switching"
	StatePostValidating State = "post_validating"
	StateCommitted      State = "committed"
	StateRollingBack    State = "rolling_back"
	StateRolledBack     State = "rolled_back"
	StateAborted        State = "aborted"
	StateFatal          State = "fatal"
)

// Terminal reports whether the state machine has resolved.
func (s State) Terminal() bool {
	switch s {
	case StateCommitted, StateRolledBack, StateAborted, StateFatal:
		return true
	}
	return false
}

// ErrorKind classifies how an operation failed.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindLockHeld             ErrorKind = "lock_held"
	KindLockStale            ErrorKind = "lock_stale"
	KindValidationFailed     ErrorKind = "validation_failed"
	KindTrafficSwitchFailure ErrorKind = "traffic_switch_failure"
	KindPostValidationFailed ErrorKind = "post_validation_failed"
	KindRollbackFailed       ErrorKind = "rollback_failed"
)

// Result is the single structured outcome of a switch or rollback.
type Result struct {
	Team      string                  `json:"team"`
	State     State                   `json:"state"`
	ErrorKind ErrorKind               `json:"error_kind,omitempty"`
	FromEnv   environment.Environment `json:"from_environment"`
	ToEnv     environment.Environment `json:"to_environment"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
	Detail    string                  `json:"detail,omitempty"`
}

// ExitCode maps terminal states to process exit codes:
// 0 committed, 1 aborted, 2 rolled back, 3 fatal.
func (r *Result) ExitCode() int {
	switch r.State {
	case StateCommitted:
		return 0
	case StateAborted:
		return 1
	case StateRolledBack:
		return 2
	default:
		return 3
	}
}
