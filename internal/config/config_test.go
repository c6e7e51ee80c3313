// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greenlight.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("parses full config", func(t *testing.T) {
		path := writeConfig(t, `
state_dir: /tmp/state
lock_dir: /tmp/locks
haproxy:
  socket: /tmp/admin.sock
  backend_prefix: jenkins
health:
  timeout: 3s
  retries: 2
  drift_tolerance: 0.25
lock_staleness: 45m
teams:
  - name: devops
    blue_port: 8081
    green_port: 8082
    blue_green_enabled: true
  - name: qa
    blue_port: 8091
    green_port: 8092
    blue_green_enabled: false
`)

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/state", cfg.StateDir)
		assert.Equal(t, 3*time.Second, cfg.Health.Timeout)
		assert.Equal(t, 0.25, cfg.Health.DriftTolerance)
		assert.Equal(t, 45*time.Minute, cfg.LockStaleness)
		assert.Len(t, cfg.Teams, 2)

		team, ok := cfg.FindTeam("devops")
		require.True(t, ok)
		assert.Equal(t, 8081, team.BluePort)
		assert.True(t, team.BlueGreenEnabled)
	})

	t.Run("applies defaults for missing fields", func(t *testing.T) {
		path := writeConfig(t, "teams: []\n")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 30*time.Minute, cfg.LockStaleness)
		assert.Equal(t, 3, cfg.Health.Retries)
		assert.Equal(t, "jenkins", cfg.HAProxy.BackendPrefix)
	})

	t.Run("rejects missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/greenlight.yaml")
		assert.Error(t, err)
	})

	t.Run("rejects duplicate team names", func(t *testing.T) {
		path := writeConfig(t, `
teams:
  - name: devops
    blue_port: 8081
    green_port: 8082
  - name: devops
    blue_port: 8091
    green_port: 8092
`)
		_, err := Load(path)
		assert.ErrorContains(t, err, "duplicate team")
	})
}

func TestValidateTeam(t *testing.T) {
	t.Run("requires name and distinct ports", func(t *testing.T) {
		assert.Error(t, ValidateTeam(Team{BluePort: 1, GreenPort: 2}))
		assert.Error(t, ValidateTeam(Team{Name: "a", BluePort: 8081}))
		assert.Error(t, ValidateTeam(Team{Name: "a", BluePort: 8081, GreenPort: 8081}))
		assert.NoError(t, ValidateTeam(Team{Name: "a", BluePort: 8081, GreenPort: 8082}))
	})
}

func TestLoadFromEnv(t *testing.T) {
	cfg := Default()

	t.Setenv("GREENLIGHT_STATE_DIR", "/custom/state")
	t.Setenv("GREENLIGHT_HEALTH_TIMEOUT", "7s")
	t.Setenv("GREENLIGHT_HEALTH_RETRIES", "5")
	t.Setenv("GREENLIGHT_DRIFT_TOLERANCE", "0.2")
	t.Setenv("GREENLIGHT_RESOURCE_OPTIMIZED", "true")

	LoadFromEnv(cfg)

	assert.Equal(t, "/custom/state", cfg.StateDir)
	assert.Equal(t, 7*time.Second, cfg.Health.Timeout)
	assert.Equal(t, 5, cfg.Health.Retries)
	assert.Equal(t, 0.2, cfg.Health.DriftTolerance)
	assert.True(t, cfg.ResourceOptimized)
}

func TestWebPort(t *testing.T) {
	team := Team{Name: "devops", BluePort: 8081, GreenPort: 8082}
	assert.Equal(t, 8081, team.WebPort("blue"))
	assert.Equal(t, 8082, team.WebPort("green"))
}
