// internal/traffic/haproxy.go
package traffic

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/greenlight/internal/environment"
)

// show stat CSV column indexes (haproxy stats format).
const (
	statColBackend = 0
	statColServer  = 1
	statColStatus  = 17
)

const dialTimeout = 3 * time.Second

// HAProxy drives backend servers through the runtime API: line-oriented
// commands over the admin socket, one command per connection.
type HAProxy struct {
	network        string
	addr           string
	backendPrefix  string
	confirmTimeout time.Duration
	confirmPoll    *rate.Limiter
	logger         *zap.Logger
}

// NewHAProxy creates a controller for the admin socket at addr. A path
// containing a slash is treated as a unix socket, anything else as tcp.
func NewHAProxy(addr, backendPrefix string, confirmTimeout time.Duration, logger *zap.Logger) *HAProxy {
	network := "tcp"
	if strings.Contains(addr, "/") {
		network = "unix"
	}
	if confirmTimeout <= 0 {
		confirmTimeout = 5 * time.Second
	}

	return &HAProxy{
		network:        network,
		addr:           addr,
		backendPrefix:  backendPrefix,
		confirmTimeout: confirmTimeout,
		confirmPoll:    rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		logger:         logger,
	}
}

func (h *HAProxy) backend(team string) string {
	return h.backendPrefix + "-" + team
}

// SetActive enables the target environment's server, confirms it took,
// then disables the outgoing one and confirms the final state.
func (h *HAProxy) SetActive(ctx context.Context, team string, env environment.Environment) error {
	backend := h.backend(team)
	target := env.String()
	outgoing := env.Other().String()

	// Enable first. The no-both-down window is avoided by ordering, not
	// by any transaction the protocol doesn't have.
	if err := h.serverCommand(ctx, "enable", backend, target); err != nil {
		return err
	}
	if err := h.confirm(ctx, team, func(state map[environment.Environment]bool) bool {
		return state[env]
	}); err != nil {
		return fmt.Errorf("%w: %s/%s not enabled", ErrSwitchUnconfirmed, backend, target)
	}

	if err := h.serverCommand(ctx, "disable", backend, outgoing); err != nil {
		return err
	}
	if err := h.confirm(ctx, team, func(state map[environment.Environment]bool) bool {
		return state[env] && !state[env.Other()]
	}); err != nil {
		return fmt.Errorf("%w: %s/%s still enabled", ErrSwitchUnconfirmed, backend, outgoing)
	}

	h.logger.Info("traffic switched",
		zap.String("team", team),
		zap.String("backend", backend),
		zap.String("enabled", target),
		zap.String("disabled", outgoing))

	return nil
}

// BackendState reads the live enabled/disabled state from show stat.
func (h *HAProxy) BackendState(ctx context.Context, team string) (map[environment.Environment]bool, error) {
	out, err := h.command(ctx, "show stat")
	if err != nil {
		return nil, err
	}

	backend := h.backend(team)
	state := make(map[environment.Environment]bool)

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimPrefix(line, "# ")
		fields := strings.Split(line, ",")
		if len(fields) <= statColStatus || fields[statColBackend] != backend {
			continue
		}

		env, err := environment.Parse(fields[statColServer])
		if err != nil {
			// FRONTEND/BACKEND aggregate rows, or servers we don't manage.
			continue
		}

		status := fields[statColStatus]
		state[env] = !strings.HasPrefix(status, "MAINT")
	}

	if len(state) == 0 {
		return nil, fmt.Errorf("traffic: backend %s not found in show stat", backend)
	}

	return state, nil
}

// confirm polls BackendState until ok reports the desired shape or the
// confirmation deadline passes.
func (h *HAProxy) confirm(ctx context.Context, team string, ok func(map[environment.Environment]bool) bool) error {
	deadline := time.Now().Add(h.confirmTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		state, err := h.BackendState(ctx, team)
		if err == nil && ok(state) {
			return nil
		}

		if time.Now().After(deadline) {
			return ErrSwitchUnconfirmed
		}
		if err := h.confirmPoll.Wait(ctx); err != nil {
			return ErrSwitchUnconfirmed
		}
	}
}

func (h *HAProxy) serverCommand(ctx context.Context, verb, backend, server string) error {
	out, err := h.command(ctx, fmt.Sprintf("%s server %s/%s", verb, backend, server))
	if err != nil {
		return fmt.Errorf("traffic: %s %s/%s: %w", verb, backend, server, err)
	}

	// The runtime API answers mutations with an empty line on success and
	// a diagnostic sentence on failure.
	if msg := strings.TrimSpace(out); msg != "" {
		return fmt.Errorf("traffic: %s %s/%s: proxy said %q", verb, backend, server, msg)
	}

	return nil
}

// command runs one admin command on a fresh connection and returns the
// full response.
func (h *HAProxy) command(ctx context.Context, cmd string) (string, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, h.network, h.addr)
	if err != nil {
		return "", fmt.Errorf("traffic: dial %s %s: %w", h.network, h.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(dialTimeout))
	}

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", fmt.Errorf("traffic: send %q: %w", cmd, err)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		sb.WriteString(scanner.Text())
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("traffic: read response to %q: %w", cmd, err)
	}

	return sb.String(), nil
}
