// internal/config/env.go
package config

import (
	"os"
	"strconv"
	"time"
)

// LoadFromEnv applies environment variable overrides on top of cfg.
func LoadFromEnv(cfg *Config) {
	if dir := os.Getenv("GREENLIGHT_STATE_DIR"); dir != "" {
		cfg.StateDir = dir
	}
	if dir := os.Getenv("GREENLIGHT_LOCK_DIR"); dir != "" {
		cfg.LockDir = dir
	}
	if sock := os.Getenv("GREENLIGHT_HAPROXY_SOCKET"); sock != "" {
		cfg.HAProxy.Socket = sock
	}
	if dsn := os.Getenv("GREENLIGHT_AUDIT_DSN"); dsn != "" {
		cfg.AuditDSN = dsn
	}

	if v := os.Getenv("GREENLIGHT_HEALTH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Health.Timeout = d
		}
	}
	if v := os.Getenv("GREENLIGHT_HEALTH_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Health.Retries = n
		}
	}
	if v := os.Getenv("GREENLIGHT_DRIFT_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Health.DriftTolerance = f
		}
	}
	if v := os.Getenv("GREENLIGHT_LOCK_STALENESS"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockStaleness = d
		}
	}
	if v := os.Getenv("GREENLIGHT_RESOURCE_OPTIMIZED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ResourceOptimized = b
		}
	}
}

// GetEnvOrDefault returns environment variable or default value.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
