// internal/orchestrator/status.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
	"github.com/FairForge/greenlight/internal/health"
	"github.com/FairForge/greenlight/internal/lock"
	"github.com/FairForge/greenlight/internal/state"
)

// TeamStatus is the operator-facing view of one team.
type TeamStatus struct {
	Team          string                           `json:"team"`
	State         *state.SwitchState               `json:"state"`
	Backends      map[environment.Environment]bool `json:"backends"`
	Consistent    bool                             `json:"consistent"`
	ActiveHealth  *health.Result                   `json:"active_health,omitempty"`
	PassiveHealth *health.Result                   `json:"passive_health,omitempty"`
	LockHolder    *lock.Token                      `json:"lock_holder,omitempty"`
}

// Status gathers the committed state, the proxy's live backend state and
// advisory health of both slots. Passive health is informational only; it
// never triggers action by itself.
func (o *Orchestrator) Status(ctx context.Context, team config.Team) (*TeamStatus, error) {
	st, err := o.store.GetOrInit(team.Name)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: status %s: %w", team.Name, err)
	}

	status := &TeamStatus{
		Team:  team.Name,
		State: st,
	}

	backends, err := o.traffic.BackendState(ctx, team.Name)
	if err != nil {
		o.logger.Warn("could not read proxy backend state",
			zap.String("team", team.Name), zap.Error(err))
	} else {
		status.Backends = backends
		status.Consistent = consistent(st, backends)
	}

	active := o.health.Check(ctx, team, st.ActiveEnvironment)
	status.ActiveHealth = &active
	passive := o.health.Check(ctx, team, st.ActiveEnvironment.Other())
	status.PassiveHealth = &passive

	if holder, err := o.locks.Holder(team.Name); err == nil {
		status.LockHolder = holder
	} else if !errors.Is(err, lock.ErrNotHeld) {
		o.logger.Warn("could not read lock holder",
			zap.String("team", team.Name), zap.Error(err))
	}

	return status, nil
}

// VerifyConsistency checks the committed state against the proxy's live
// configuration for every team. Run at startup and after operations;
// mismatches are logged and returned, never auto-corrected.
func (o *Orchestrator) VerifyConsistency(ctx context.Context, teams []config.Team) []error {
	var problems []error

	for _, team := range teams {
		if !team.BlueGreenEnabled {
			continue
		}

		st, err := o.store.GetOrInit(team.Name)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: read state: %w", team.Name, err))
			continue
		}
		if st.SwitchInProgress {
			problems = append(problems, fmt.Errorf("%s: switch_in_progress is set outside an operation", team.Name))
		}

		backends, err := o.traffic.BackendState(ctx, team.Name)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: read backends: %w", team.Name, err))
			continue
		}

		if !consistent(st, backends) {
			problems = append(problems, fmt.Errorf(
				"%s: state says active=%s but proxy has blue=%v green=%v",
				team.Name, st.ActiveEnvironment,
				backends[environment.Blue], backends[environment.Green]))
		}
	}

	for _, p := range problems {
		o.logger.Error("consistency check failed", zap.Error(p))
	}

	return problems
}

// consistent holds when exactly the committed active environment is
// enabled at the proxy.
func consistent(st *state.SwitchState, backends map[environment.Environment]bool) bool {
	return backends[st.ActiveEnvironment] && !backends[st.ActiveEnvironment.Other()]
}
