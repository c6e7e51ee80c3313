// internal/health/validator.go
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
)

// Status classifies a probe outcome. Timeout is distinct from Unhealthy:
// a slow-starting deployment is not the same as a broken one.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusTimeout   Status = "timeout"
)

// Result is a single health verdict for one environment.
type Result struct {
	Environment environment.Environment `json:"environment"`
	Status      Status                  `json:"status"`
	Timestamp   time.Time               `json:"timestamp"`
	Latency     time.Duration           `json:"latency"`
	JobCount    int                     `json:"job_count"`
	PluginCount int                     `json:"plugin_count"`
	Detail      string                  `json:"detail,omitempty"`
}

// Healthy reports whether the probe passed.
func (r Result) Healthy() bool {
	return r.Status == StatusHealthy
}

// Validator probes a Jenkins deployment's HTTP surface. Read-only; it
// never mutates the target.
type Validator struct {
	cfg    config.HealthConfig
	client *http.Client
	logger *zap.Logger
}

// NewValidator creates a validator with the given probe tunables.
func NewValidator(cfg config.HealthConfig, logger *zap.Logger) *Validator {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Validator{
		cfg: cfg,
		client: &http.Client{
			// Per-request deadlines come from the context; don't follow
			// Jenkins' login redirects, 403 from the root is fine.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Check probes one environment. Retries up to the configured count with a
// fixed delay; a single transient failure never produces a failed verdict,
// only exhausting retries does. The overall call respects ctx's deadline.
func (v *Validator) Check(ctx context.Context, team config.Team, env environment.Environment) Result {
	start := time.Now()

	var last Result
	attempts := v.cfg.Retries

	for attempt := 1; attempt <= attempts; attempt++ {
		last = v.checkOnce(ctx, team, env)
		last.Latency = time.Since(start)

		if last.Healthy() {
			return last
		}

		v.logger.Debug("health check attempt failed",
			zap.String("team", team.Name),
			zap.String("environment", env.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.String("status", string(last.Status)),
			zap.String("detail", last.Detail))

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			last.Status = StatusTimeout
			last.Detail = "overall deadline exceeded during retry wait"
			return last
		case <-time.After(v.cfg.RetryDelay):
		}
	}

	return last
}

// checkOnce runs the ordered probe chain, short-circuiting on the first
// hard failure: (1) TCP reachable, (2) login endpoint, (3) API metadata.
func (v *Validator) checkOnce(ctx context.Context, team config.Team, env environment.Environment) Result {
	result := Result{
		Environment: env,
		Timestamp:   time.Now().UTC(),
	}

	host := team.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", host, team.WebPort(env.String()))
	base := "http://" + addr

	// (1) process reachable at all
	conn, err := (&net.Dialer{Timeout: v.cfg.Timeout}).DialContext(ctx, "tcp", addr)
	if err != nil {
		result.Status = classify(err)
		result.Detail = fmt.Sprintf("tcp %s: %v", addr, err)
		return result
	}
	_ = conn.Close()

	// (2) login endpoint answers like a Jenkins UI
	code, _, err := v.get(ctx, base+"/login")
	if err != nil {
		result.Status = classify(err)
		result.Detail = fmt.Sprintf("GET /login: %v", err)
		return result
	}
	if code != http.StatusOK && code != http.StatusForbidden {
		result.Status = StatusUnhealthy
		result.Detail = fmt.Sprintf("GET /login: unexpected status %d", code)
		return result
	}

	// (3) API returns well-formed metadata
	code, body, err := v.get(ctx, base+"/api/json")
	if err != nil {
		result.Status = classify(err)
		result.Detail = fmt.Sprintf("GET /api/json: %v", err)
		return result
	}
	if code != http.StatusOK {
		result.Status = StatusUnhealthy
		result.Detail = fmt.Sprintf("GET /api/json: unexpected status %d", code)
		return result
	}

	var meta struct {
		Jobs []json.RawMessage `json:"jobs"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		result.Status = StatusUnhealthy
		result.Detail = fmt.Sprintf("GET /api/json: malformed body: %v", err)
		return result
	}
	result.JobCount = len(meta.Jobs)

	// Plugin inventory is advisory: its absence doesn't fail the probe.
	if code, body, err := v.get(ctx, base+"/pluginManager/api/json?depth=1"); err == nil && code == http.StatusOK {
		var plugins struct {
			Plugins []json.RawMessage `json:"plugins"`
		}
		if json.Unmarshal(body, &plugins) == nil {
			result.PluginCount = len(plugins.Plugins)
		}
	}

	result.Status = StatusHealthy
	return result
}

func (v *Validator) get(ctx context.Context, url string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}

	return resp.StatusCode, body, nil
}

// DriftExceeded reports whether the target's job count deviates from the
// active environment's beyond the configured tolerance. Data integrity is
// weighted above reachability: an otherwise-healthy target that drifted
// too far is treated as unhealthy.
func (v *Validator) DriftExceeded(target, active Result) bool {
	if active.JobCount == 0 {
		return false
	}

	diff := target.JobCount - active.JobCount
	if diff < 0 {
		diff = -diff
	}

	return float64(diff)/float64(active.JobCount) > v.cfg.DriftTolerance
}

func classify(err error) Status {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return StatusTimeout
	}
	return StatusUnhealthy
}
