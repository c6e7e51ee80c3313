// internal/runtime/docker.go
package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/environment"
)

// Lifecycle starts and stops a team's per-environment Jenkins containers.
// Used only for the optional resource-optimized cleanup after a committed
// switch, and to wake a stopped passive environment before switching to it.
type Lifecycle interface {
	StopEnvironment(ctx context.Context, team string, env environment.Environment) error
	StartEnvironment(ctx context.Context, team string, env environment.Environment) error
	EnvironmentRunning(ctx context.Context, team string, env environment.Environment) (bool, error)
}

// DockerLifecycle drives the local Docker daemon. Containers follow the
// fleet naming convention jenkins-<team>-<environment>.
type DockerLifecycle struct {
	client *client.Client
	logger *zap.Logger
}

// NewDockerLifecycle connects to the daemon using the standard DOCKER_*
// environment variables.
func NewDockerLifecycle(logger *zap.Logger) (*DockerLifecycle, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("runtime: create docker client: %w", err)
	}

	return &DockerLifecycle{client: cli, logger: logger}, nil
}

// ContainerName returns the fleet naming convention for a slot.
func ContainerName(team string, env environment.Environment) string {
	return fmt.Sprintf("jenkins-%s-%s", team, env)
}

// StopEnvironment stops the environment's container.
func (d *DockerLifecycle) StopEnvironment(ctx context.Context, team string, env environment.Environment) error {
	name := ContainerName(team, env)

	timeout := 60 // Jenkins needs time to flush builds on shutdown
	if err := d.client.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("runtime: stop %s: %w", name, err)
	}

	d.logger.Info("stopped environment container",
		zap.String("team", team),
		zap.String("environment", env.String()),
		zap.String("container", name))

	return nil
}

// StartEnvironment starts the environment's (existing, stopped) container.
func (d *DockerLifecycle) StartEnvironment(ctx context.Context, team string, env environment.Environment) error {
	name := ContainerName(team, env)

	if err := d.client.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return fmt.Errorf("runtime: start %s: %w", name, err)
	}

	d.logger.Info("started environment container",
		zap.String("team", team),
		zap.String("environment", env.String()),
		zap.String("container", name))

	return nil
}

// EnvironmentRunning reports whether the environment's container is up.
func (d *DockerLifecycle) EnvironmentRunning(ctx context.Context, team string, env environment.Environment) (bool, error) {
	name := ContainerName(team, env)

	info, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("runtime: inspect %s: %w", name, err)
	}

	return info.State != nil && info.State.Running, nil
}

// PortBound reports whether the environment's container publishes the
// given host port. Used by the startup consistency check to catch config
// drift between the team registry and the actual containers.
func (d *DockerLifecycle) PortBound(ctx context.Context, team string, env environment.Environment, hostPort int) (bool, error) {
	name := ContainerName(team, env)

	info, err := d.client.ContainerInspect(ctx, name)
	if err != nil {
		return false, fmt.Errorf("runtime: inspect %s: %w", name, err)
	}

	var ports nat.PortMap
	if info.NetworkSettings != nil {
		ports = info.NetworkSettings.Ports
	}

	want := strconv.Itoa(hostPort)
	for port, bindings := range ports {
		if port.Proto() != "tcp" {
			continue
		}
		for _, binding := range bindings {
			if binding.HostPort == want {
				return true, nil
			}
		}
	}

	return false, nil
}

// interface guard
var _ Lifecycle = (*DockerLifecycle)(nil)
