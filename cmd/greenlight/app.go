// cmd/greenlight/app.go
package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/audit"
	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/health"
	"github.com/FairForge/greenlight/internal/lock"
	"github.com/FairForge/greenlight/internal/metrics"
	"github.com/FairForge/greenlight/internal/orchestrator"
	"github.com/FairForge/greenlight/internal/runtime"
	"github.com/FairForge/greenlight/internal/state"
	"github.com/FairForge/greenlight/internal/traffic"
)

// app holds the full wired dependency graph one command needs.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	locks  *lock.DirManager
	store  *state.FileStore
	orch   *orchestrator.Orchestrator

	closers []func() error
}

func buildApp() (*app, error) {
	logger, err := buildLogger()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.LoadFromEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return wire(cfg, logger)
}

func buildLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func wire(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	store, err := state.NewFileStore(cfg.StateDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	a.store = store

	locks, err := lock.NewDirManager(cfg.LockDir, cfg.LockStaleness, logger)
	if err != nil {
		return nil, fmt.Errorf("open lock dir: %w", err)
	}
	a.locks = locks

	sinks := make([]audit.Sink, 0, 2)
	fileSink, err := audit.NewFileSink(cfg.AuditLog)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	sinks = append(sinks, fileSink)

	if cfg.AuditDSN != "" {
		pg, err := audit.NewPostgresSink(cfg.AuditDSN)
		if err != nil {
			// The file sink still records everything; losing the mirror
			// is not a reason to refuse switches.
			logger.Warn("postgres audit sink unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, pg)
			a.closers = append(a.closers, pg.Close)
		}
	}

	var lifecycle orchestrator.Lifecycle
	if cfg.ResourceOptimized {
		docker, err := runtime.NewDockerLifecycle(logger)
		if err != nil {
			logger.Warn("docker unavailable, resource-optimized cleanup disabled", zap.Error(err))
		} else {
			lifecycle = docker
		}
	}

	a.orch = orchestrator.New(
		locks,
		store,
		health.NewValidator(cfg.Health, logger),
		traffic.NewHAProxy(cfg.HAProxy.Socket, cfg.HAProxy.BackendPrefix, cfg.HAProxy.ConfirmTimeout, logger),
		audit.NewLogger(logger, sinks...),
		lifecycle,
		metrics.NewCollector(),
		logger,
		cfg.SwitchDeadline,
		cfg.ResourceOptimized,
	)

	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// team resolves a CLI team argument against the configured roster.
func (a *app) team(name string) (config.Team, error) {
	team, ok := a.cfg.FindTeam(name)
	if !ok {
		return config.Team{}, errUnknownTeam(name)
	}
	return team, nil
}

func errUnknownTeam(name string) error {
	return fmt.Errorf("unknown team %q, check the teams section of %s", name, cfgPath)
}
