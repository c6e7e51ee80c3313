// internal/audit/types.go
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/FairForge/greenlight/internal/environment"
)

// Action is the kind of operation being audited.
type Action string

const (
	ActionSwitch   Action = "switch"
	ActionRollback Action = "rollback"
)

// Outcome is the terminal result of an audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeAborted Outcome = "aborted"
	OutcomeFatal   Outcome = "fatal"
)

// Entry is one append-only audit record. Immutable once written.
type Entry struct {
	ID        uuid.UUID               `json:"id" db:"id"`
	Timestamp time.Time               `json:"timestamp" db:"timestamp"`
	Team      string                  `json:"team" db:"team"`
	Action    Action                  `json:"action" db:"action"`
	Outcome   Outcome                 `json:"outcome" db:"outcome"`
	Operator  string                  `json:"operator" db:"operator"`
	FromEnv   environment.Environment `json:"from_environment" db:"from_environment"`
	ToEnv     environment.Environment `json:"to_environment" db:"to_environment"`
	ErrorMsg  string                  `json:"error_msg,omitempty" db:"error_msg"`
	Metadata  map[string]string       `json:"metadata,omitempty" db:"metadata"`
}
