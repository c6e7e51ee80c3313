// internal/orchestrator/rollback.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/audit"
	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/lock"
	"github.com/FairForge/greenlight/internal/state"
	"github.com/FairForge/greenlight/internal/traffic"
)

// ErrRollbackFailed means the rollback's own traffic restore failed.
// The system makes no second automatic attempt; a human takes over.
var ErrRollbackFailed = errors.New("orchestrator: rollback failed")

// RollbackController restores the pre-switch backend state from a
// snapshot. Invoked only by the orchestrator's rolling-back transition,
// never mid-switch from the outside.
type RollbackController struct {
	traffic traffic.Controller
	health  HealthChecker
	logger  *zap.Logger
}

// NewRollbackController creates a rollback controller.
func NewRollbackController(controller traffic.Controller, checker HealthChecker, logger *zap.Logger) *RollbackController {
	return &RollbackController{
		traffic: controller,
		health:  checker,
		logger:  logger,
	}
}

// Rollback points traffic back at the snapshot's active environment.
// Either the backend state is fully restored or ErrRollbackFailed is
// returned and nothing further happens automatically.
func (r *RollbackController) Rollback(ctx context.Context, team config.Team, backup *state.Backup) error {
	restored := backup.State.ActiveEnvironment

	if err := r.traffic.SetActive(ctx, team.Name, restored); err != nil {
		return fmt.Errorf("%w: restore %s: %v", ErrRollbackFailed, restored, err)
	}

	// Re-validate the restored environment. It was serving traffic before
	// the switch, so a failure here is alarming but not actionable by us:
	// the backend state is restored and anything more is a human call.
	probe := r.health.Check(ctx, team, restored)
	if !probe.Healthy() {
		r.logger.Warn("restored environment is not reporting healthy",
			zap.String("team", team.Name),
			zap.String("environment", restored.String()),
			zap.String("status", string(probe.Status)),
			zap.String("detail", probe.Detail))
	}

	return nil
}

// ManualRollback is the operator-facing rollback: it re-activates the
// previous committed environment under the team's lock.
func (o *Orchestrator) ManualRollback(ctx context.Context, team config.Team, opts Options) *Result {
	started := time.Now()
	result := &Result{
		Team:      team.Name,
		State:     StateIdle,
		StartedAt: started.UTC(),
	}
	defer func() { result.Duration = time.Since(started) }()

	token, err := o.acquire(team.Name, opts)
	if err != nil {
		kind := KindLockHeld
		if errors.Is(err, lock.ErrStale) {
			kind = KindLockStale
		}
		return o.abortRollback(ctx, result, kind, opts, err.Error())
	}
	o.transition(result, StateLocked)
	defer func() {
		if err := o.locks.Release(team.Name, token); err != nil {
			o.logger.Error("lock release failed", zap.String("team", team.Name), zap.Error(err))
		}
	}()

	st, err := o.store.GetOrInit(team.Name)
	if err != nil {
		return o.abortRollback(ctx, result, KindValidationFailed, opts, fmt.Sprintf("read state: %v", err))
	}

	result.FromEnv = st.ActiveEnvironment
	result.ToEnv = st.PreviousEnvironment

	if !st.PreviousEnvironment.Valid() || st.PreviousEnvironment == st.ActiveEnvironment {
		return o.abortRollback(ctx, result, KindValidationFailed, opts, "no previous environment to roll back to")
	}

	opCtx, cancel := context.WithTimeout(ctx, o.switchDeadline)
	defer cancel()

	o.transition(result, StateRollingBack)
	o.wakeTarget(opCtx, team, st.PreviousEnvironment)

	if err := o.traffic.SetActive(opCtx, team.Name, st.PreviousEnvironment); err != nil {
		o.transition(result, StateFatal)
		result.ErrorKind = KindRollbackFailed
		result.Detail = err.Error()

		o.audit.Record(ctx, &audit.Entry{
			Team:     team.Name,
			Action:   audit.ActionRollback,
			Outcome:  audit.OutcomeFatal,
			Operator: opts.Operator,
			FromEnv:  st.ActiveEnvironment,
			ToEnv:    st.PreviousEnvironment,
			ErrorMsg: err.Error(),
		})
		if o.metrics != nil {
			o.metrics.RecordRollback(team.Name, string(audit.OutcomeFatal))
		}

		return result
	}

	probe := o.health.Check(opCtx, team, st.PreviousEnvironment)
	o.recordHealth(team.Name, probe)
	if !probe.Healthy() {
		o.logger.Warn("rolled back to an environment that is not reporting healthy",
			zap.String("team", team.Name),
			zap.String("environment", st.PreviousEnvironment.String()),
			zap.String("status", string(probe.Status)))
	}

	committed := &state.SwitchState{
		ActiveEnvironment:   st.PreviousEnvironment,
		PreviousEnvironment: st.ActiveEnvironment,
		LastSwitchTimestamp: time.Now().UTC(),
		SwitchInProgress:    false,
	}
	if err := o.store.Put(team.Name, committed); err != nil {
		o.logger.Error("state commit failed after manual rollback",
			zap.String("team", team.Name), zap.Error(err))
	}

	o.transition(result, StateRolledBack)
	o.audit.Record(ctx, &audit.Entry{
		Team:     team.Name,
		Action:   audit.ActionRollback,
		Outcome:  audit.OutcomeSuccess,
		Operator: opts.Operator,
		FromEnv:  st.ActiveEnvironment,
		ToEnv:    st.PreviousEnvironment,
	})
	if o.metrics != nil {
		o.metrics.RecordRollback(team.Name, string(audit.OutcomeSuccess))
	}

	return result
}

func (o *Orchestrator) abortRollback(ctx context.Context, result *Result, kind ErrorKind, opts Options, detail string) *Result {
	o.transition(result, StateAborted)
	result.ErrorKind = kind
	result.Detail = detail

	o.audit.Record(ctx, &audit.Entry{
		Team:     result.Team,
		Action:   audit.ActionRollback,
		Outcome:  audit.OutcomeAborted,
		Operator: opts.Operator,
		FromEnv:  result.FromEnv,
		ToEnv:    result.ToEnv,
		ErrorMsg: detail,
	})

	return result
}
