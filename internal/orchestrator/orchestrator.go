// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/audit"
	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
	"github.com/FairForge/greenlight/internal/health"
	"github.com/FairForge/greenlight/internal/lock"
	"github.com/FairForge/greenlight/internal/metrics"
	"github.com/FairForge/greenlight/internal/state"
	"github.com/FairForge/greenlight/internal/traffic"
)

// HealthChecker probes a deployment and compares drift between slots.
type HealthChecker interface {
	Check(ctx context.Context, team config.Team, env environment.Environment) health.Result
	DriftExceeded(target, active health.Result) bool
}

// Lifecycle optionally stops/starts environment containers. Nil disables
// resource-optimized cleanup.
type Lifecycle interface {
	StopEnvironment(ctx context.Context, team string, env environment.Environment) error
	StartEnvironment(ctx context.Context, team string, env environment.Environment) error
	EnvironmentRunning(ctx context.Context, team string, env environment.Environment) (bool, error)
}

// Options tune a single switch invocation.
type Options struct {
	// Operator is recorded in locks and audit entries.
	Operator string

	// ReclaimStale allows taking over a lock past the staleness threshold.
	// Never implied; the operator has to ask for it.
	ReclaimStale bool

	// SkipPreValidation bypasses the primary safety gate. Logged loudly;
	// for break-glass use only.
	SkipPreValidation bool
}

// Orchestrator sequences validation, traffic cutover, cleanup and state
// commit for one team at a time per team.
type Orchestrator struct {
	locks    lock.Manager
	store    state.Store
	health   HealthChecker
	traffic  traffic.Controller
	rollback *RollbackController
	audit    *audit.Logger
	runtime  Lifecycle
	metrics  *metrics.Collector
	logger   *zap.Logger

	switchDeadline    time.Duration
	resourceOptimized bool
}

// New creates an orchestrator. runtime may be nil when resource-optimized
// mode is off.
func New(
	locks lock.Manager,
	store state.Store,
	checker HealthChecker,
	controller traffic.Controller,
	auditor *audit.Logger,
	runtime Lifecycle,
	collector *metrics.Collector,
	logger *zap.Logger,
	switchDeadline time.Duration,
	resourceOptimized bool,
) *Orchestrator {
	if switchDeadline <= 0 {
		switchDeadline = 5 * time.Minute
	}

	return &Orchestrator{
		locks:             locks,
		store:             store,
		health:            checker,
		traffic:           controller,
		rollback:          NewRollbackController(controller, checker, logger),
		audit:             auditor,
		runtime:           runtime,
		metrics:           collector,
		logger:            logger,
		switchDeadline:    switchDeadline,
		resourceOptimized: resourceOptimized,
	}
}

// Switch moves a team's live traffic to the target environment and
// resolves to exactly one terminal state.
func (o *Orchestrator) Switch(ctx context.Context, team config.Team, target environment.Environment, opts Options) *Result {
	started := time.Now()
	result := &Result{
		Team:      team.Name,
		State:     StateIdle,
		ToEnv:     target,
		StartedAt: started.UTC(),
	}
	defer func() {
		result.Duration = time.Since(started)
		if o.metrics != nil {
			o.metrics.RecordSwitch(team.Name, string(result.State), result.Duration)
		}
	}()

	if !team.BlueGreenEnabled {
		return o.abort(ctx, result, KindValidationFailed, opts,
			fmt.Sprintf("team %s does not have blue-green enabled", team.Name))
	}
	if !target.Valid() {
		return o.abort(ctx, result, KindValidationFailed, opts,
			fmt.Sprintf("invalid target environment %q", target))
	}

	// Idle -> Locked
	token, err := o.acquire(team.Name, opts)
	if err != nil {
		kind := KindLockHeld
		if errors.Is(err, lock.ErrStale) {
			kind = KindLockStale
		}
		if o.metrics != nil {
			o.metrics.RecordLockContention(team.Name)
		}
		return o.abort(ctx, result, kind, opts, err.Error())
	}
	o.transition(result, StateLocked)
	defer func() {
		if err := o.locks.Release(team.Name, token); err != nil {
			o.logger.Error("lock release failed", zap.String("team", team.Name), zap.Error(err))
		}
	}()

	st, err := o.store.GetOrInit(team.Name)
	if err != nil {
		return o.abort(ctx, result, KindValidationFailed, opts, fmt.Sprintf("read state: %v", err))
	}
	result.FromEnv = st.ActiveEnvironment

	// Already-active targets short-circuit before any traffic command and
	// without touching the switch timestamp.
	if st.ActiveEnvironment == target {
		o.logger.Info("target already active, nothing to do",
			zap.String("team", team.Name), zap.String("environment", target.String()))
		o.transition(result, StateCommitted)
		result.Detail = "already active"
		return result
	}

	opCtx, cancel := context.WithTimeout(ctx, o.switchDeadline)
	defer cancel()

	// Locked -> PreValidating. The primary safety gate.
	o.transition(result, StatePreValidating)
	o.wakeTarget(opCtx, team, target)

	if opts.SkipPreValidation {
		o.logger.Warn("pre-switch validation SKIPPED by explicit override",
			zap.String("team", team.Name),
			zap.String("operator", opts.Operator))
	} else {
		probe := o.health.Check(opCtx, team, target)
		o.recordHealth(team.Name, probe)
		if !probe.Healthy() {
			return o.abort(ctx, result, KindValidationFailed, opts,
				fmt.Sprintf("target %s %s: %s", target, probe.Status, probe.Detail))
		}
	}

	// PreValidating -> Switching: snapshot first, then cut over.
	backup, err := o.store.Snapshot(team.Name)
	if err != nil {
		return o.abort(ctx, result, KindValidationFailed, opts, fmt.Sprintf("snapshot state: %v", err))
	}

	inFlight := st.Clone()
	inFlight.SwitchInProgress = true
	if err := o.store.Put(team.Name, inFlight); err != nil {
		return o.abort(ctx, result, KindValidationFailed, opts, fmt.Sprintf("mark in progress: %v", err))
	}

	o.transition(result, StateSwitching)
	if err := o.traffic.SetActive(opCtx, team.Name, target); err != nil {
		// The change may be partial; rollback restores the snapshot state
		// regardless of how far the switch got.
		return o.rollBack(ctx, result, team, backup, KindTrafficSwitchFailure, opts, err.Error())
	}

	// Switching -> PostValidating: the target now serves live traffic.
	o.transition(result, StatePostValidating)
	postProbe := o.health.Check(opCtx, team, target)
	o.recordHealth(team.Name, postProbe)
	if !postProbe.Healthy() {
		return o.rollBack(ctx, result, team, backup, KindPostValidationFailed, opts,
			fmt.Sprintf("post-switch %s: %s", postProbe.Status, postProbe.Detail))
	}

	// Data integrity outweighs reachability: compare against the outgoing
	// environment, still reachable on its direct port.
	oldProbe := o.health.Check(opCtx, team, st.ActiveEnvironment)
	if oldProbe.Healthy() && o.health.DriftExceeded(postProbe, oldProbe) {
		return o.rollBack(ctx, result, team, backup, KindPostValidationFailed, opts,
			fmt.Sprintf("job count drift: target=%d active=%d", postProbe.JobCount, oldProbe.JobCount))
	}

	// PostValidating -> Committed.
	committed := &state.SwitchState{
		ActiveEnvironment:   target,
		PreviousEnvironment: st.ActiveEnvironment,
		LastSwitchTimestamp: time.Now().UTC(),
		SwitchInProgress:    false,
	}
	if err := o.store.Put(team.Name, committed); err != nil {
		return o.rollBack(ctx, result, team, backup, KindPostValidationFailed, opts,
			fmt.Sprintf("commit state: %v", err))
	}

	o.stopOldEnvironment(ctx, team, st.ActiveEnvironment)

	o.transition(result, StateCommitted)
	o.audit.Record(ctx, &audit.Entry{
		Team:     team.Name,
		Action:   audit.ActionSwitch,
		Outcome:  audit.OutcomeSuccess,
		Operator: opts.Operator,
		FromEnv:  result.FromEnv,
		ToEnv:    target,
	})

	o.logger.Info("switch committed",
		zap.String("team", team.Name),
		zap.String("from", result.FromEnv.String()),
		zap.String("to", target.String()),
		zap.Duration("took", time.Since(started)))

	return result
}

func (o *Orchestrator) acquire(team string, opts Options) (*lock.Token, error) {
	token, err := o.locks.Acquire(team, opts.Operator)
	if err == nil {
		return token, nil
	}

	if errors.Is(err, lock.ErrStale) && opts.ReclaimStale {
		return o.locks.ReclaimStale(team, opts.Operator)
	}

	return nil, err
}

// wakeTarget starts the target container if resource-optimized mode had
// stopped it. Best effort; the health gate decides what happens next.
func (o *Orchestrator) wakeTarget(ctx context.Context, team config.Team, target environment.Environment) {
	if !o.resourceOptimized || o.runtime == nil {
		return
	}

	running, err := o.runtime.EnvironmentRunning(ctx, team.Name, target)
	if err != nil || running {
		return
	}

	if err := o.runtime.StartEnvironment(ctx, team.Name, target); err != nil {
		o.logger.Warn("could not start target environment container",
			zap.String("team", team.Name),
			zap.String("environment", target.String()),
			zap.Error(err))
	}
}

// stopOldEnvironment is the best-effort cleanup after a commit. Its
// failure never reverts a successful switch.
func (o *Orchestrator) stopOldEnvironment(ctx context.Context, team config.Team, old environment.Environment) {
	if !o.resourceOptimized || o.runtime == nil {
		return
	}

	if err := o.runtime.StopEnvironment(ctx, team.Name, old); err != nil {
		o.logger.Warn("old environment cleanup failed, switch stands",
			zap.String("team", team.Name),
			zap.String("environment", old.String()),
			zap.Error(err))
	}
}

func (o *Orchestrator) abort(ctx context.Context, result *Result, kind ErrorKind, opts Options, detail string) *Result {
	o.transition(result, StateAborted)
	result.ErrorKind = kind
	result.Detail = detail

	o.audit.Record(ctx, &audit.Entry{
		Team:     result.Team,
		Action:   audit.ActionSwitch,
		Outcome:  audit.OutcomeAborted,
		Operator: opts.Operator,
		FromEnv:  result.FromEnv,
		ToEnv:    result.ToEnv,
		ErrorMsg: detail,
	})

	o.logger.Warn("switch aborted",
		zap.String("team", result.Team),
		zap.String("error_kind", string(kind)),
		zap.String("detail", detail))

	return result
}

// rollBack drives the RollingBack -> RolledBack (or Fatal) path.
func (o *Orchestrator) rollBack(ctx context.Context, result *Result, team config.Team, backup *state.Backup, kind ErrorKind, opts Options, detail string) *Result {
	o.transition(result, StateRollingBack)
	result.ErrorKind = kind
	result.Detail = detail

	o.audit.Record(ctx, &audit.Entry{
		Team:     team.Name,
		Action:   audit.ActionSwitch,
		Outcome:  audit.OutcomeFailed,
		Operator: opts.Operator,
		FromEnv:  result.FromEnv,
		ToEnv:    result.ToEnv,
		ErrorMsg: detail,
	})

	// The forward deadline may already be blown; the rollback gets its
	// own budget so a slow failure can still be unwound.
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.switchDeadline)
	defer cancel()

	if err := o.rollback.Rollback(rbCtx, team, backup); err != nil {
		o.transition(result, StateFatal)
		result.ErrorKind = KindRollbackFailed
		result.Detail = fmt.Sprintf("%s; rollback failed: %v", detail, err)

		o.audit.Record(ctx, &audit.Entry{
			Team:     team.Name,
			Action:   audit.ActionRollback,
			Outcome:  audit.OutcomeFatal,
			Operator: opts.Operator,
			FromEnv:  result.ToEnv,
			ToEnv:    backup.State.ActiveEnvironment,
			ErrorMsg: err.Error(),
		})
		if o.metrics != nil {
			o.metrics.RecordRollback(team.Name, string(audit.OutcomeFatal))
		}

		o.logger.Error("ROLLBACK FAILED, manual intervention required",
			zap.String("team", team.Name),
			zap.String("detail", result.Detail))

		return result
	}

	// Active environment is unchanged; just clear the in-progress marker.
	restored := backup.State.Clone()
	restored.SwitchInProgress = false
	if err := o.store.Put(team.Name, restored); err != nil {
		o.logger.Error("state restore write failed after rollback",
			zap.String("team", team.Name), zap.Error(err))
	}

	o.transition(result, StateRolledBack)

	o.audit.Record(ctx, &audit.Entry{
		Team:     team.Name,
		Action:   audit.ActionRollback,
		Outcome:  audit.OutcomeSuccess,
		Operator: opts.Operator,
		FromEnv:  result.ToEnv,
		ToEnv:    backup.State.ActiveEnvironment,
	})
	if o.metrics != nil {
		o.metrics.RecordRollback(team.Name, string(audit.OutcomeSuccess))
	}

	o.logger.Warn("switch rolled back",
		zap.String("team", team.Name),
		zap.String("restored", backup.State.ActiveEnvironment.String()),
		zap.String("error_kind", string(kind)),
		zap.String("detail", detail))

	return result
}

func (o *Orchestrator) transition(result *Result, next State) {
	o.logger.Debug("state transition",
		zap.String("team", result.Team),
		zap.String("from", string(result.State)),
		zap.String("to", string(next)))
	result.State = next
}

func (o *Orchestrator) recordHealth(team string, probe health.Result) {
	if o.metrics != nil {
		o.metrics.RecordHealthCheck(team, probe.Environment.String(), string(probe.Status))
	}
}
