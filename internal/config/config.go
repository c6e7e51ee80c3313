// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level orchestrator configuration, loaded once at startup.
type Config struct {
	StateDir string `yaml:"state_dir"`
	LockDir  string `yaml:"lock_dir"`
	AuditLog string `yaml:"audit_log"`

	HAProxy HAProxyConfig `yaml:"haproxy"`
	Health  HealthConfig  `yaml:"health"`

	LockStaleness     time.Duration `yaml:"lock_staleness"`
	SwitchDeadline    time.Duration `yaml:"switch_deadline"`
	ResourceOptimized bool          `yaml:"resource_optimized"`

	// AuditDSN, when set, mirrors audit entries into Postgres.
	AuditDSN string `yaml:"audit_dsn"`

	Teams []Team `yaml:"teams"`
}

// HAProxyConfig locates the reverse proxy's admin control channel.
type HAProxyConfig struct {
	Socket         string        `yaml:"socket"`
	BackendPrefix  string        `yaml:"backend_prefix"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// HealthConfig tunes the deployment health probes.
type HealthConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	DriftTolerance float64       `yaml:"drift_tolerance"`
}

// Team is the immutable per-team configuration.
type Team struct {
	Name             string `yaml:"name"`
	Host             string `yaml:"host"`
	BluePort         int    `yaml:"blue_port"`
	GreenPort        int    `yaml:"green_port"`
	AgentBluePort    int    `yaml:"agent_blue_port"`
	AgentGreenPort   int    `yaml:"agent_green_port"`
	BlueGreenEnabled bool   `yaml:"blue_green_enabled"`
}

// WebPort returns the web UI port for the named environment slot.
func (t Team) WebPort(env string) int {
	if env == "green" {
		return t.GreenPort
	}
	return t.BluePort
}

// Default returns a configuration with production defaults applied.
func Default() *Config {
	return &Config{
		StateDir: "/var/lib/greenlight/state",
		LockDir:  "/var/lib/greenlight/locks",
		AuditLog: "/var/log/greenlight/audit.jsonl",
		HAProxy: HAProxyConfig{
			Socket:         "/var/run/haproxy/admin.sock",
			BackendPrefix:  "jenkins",
			ConfirmTimeout: 5 * time.Second,
		},
		Health: HealthConfig{
			Timeout:        10 * time.Second,
			Retries:        3,
			RetryDelay:     5 * time.Second,
			DriftTolerance: 0.10,
		},
		LockStaleness:  30 * time.Minute,
		SwitchDeadline: 5 * time.Minute,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator flag
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks structural consistency.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("config: state_dir is required")
	}
	if c.LockDir == "" {
		return errors.New("config: lock_dir is required")
	}
	if c.HAProxy.Socket == "" {
		return errors.New("config: haproxy.socket is required")
	}
	if c.Health.DriftTolerance < 0 || c.Health.DriftTolerance > 1 {
		return fmt.Errorf("config: health.drift_tolerance %v out of range [0,1]", c.Health.DriftTolerance)
	}

	seen := make(map[string]bool)
	for _, team := range c.Teams {
		if err := ValidateTeam(team); err != nil {
			return err
		}
		if seen[team.Name] {
			return fmt.Errorf("config: duplicate team %q", team.Name)
		}
		seen[team.Name] = true
	}

	return nil
}

// ValidateTeam checks a single team entry for completeness.
func ValidateTeam(t Team) error {
	if t.Name == "" {
		return errors.New("config: team name is required")
	}
	if t.BluePort == 0 || t.GreenPort == 0 {
		return fmt.Errorf("config: team %q needs both blue_port and green_port", t.Name)
	}
	if t.BluePort == t.GreenPort {
		return fmt.Errorf("config: team %q blue and green ports must differ", t.Name)
	}
	return nil
}

// FindTeam looks up a team by name.
func (c *Config) FindTeam(name string) (Team, bool) {
	for _, t := range c.Teams {
		if t.Name == name {
			return t, true
		}
	}
	return Team{}, false
}
