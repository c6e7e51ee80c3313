// internal/health/validator_test.go
package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/config"
	"github.com/FairForge/greenlight/internal/environment"
)

func fakeJenkins(t *testing.T, loginStatus int, apiBody string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(loginStatus)
	})
	mux.HandleFunc("/api/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(apiBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func serverPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func testValidator(cfg config.HealthConfig) *Validator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	return NewValidator(cfg, zap.NewNop())
}

func TestValidator_Check(t *testing.T) {
	t.Run("healthy jenkins passes all checks", func(t *testing.T) {
		srv := fakeJenkins(t, http.StatusOK, `{"jobs":[{},{},{}]}`)
		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}

		v := testValidator(config.HealthConfig{})
		result := v.Check(context.Background(), team, environment.Blue)

		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, 3, result.JobCount)
		assert.Equal(t, environment.Blue, result.Environment)
		assert.Positive(t, result.Latency)
	})

	t.Run("403 login is acceptable", func(t *testing.T) {
		srv := fakeJenkins(t, http.StatusForbidden, `{"jobs":[]}`)
		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}

		v := testValidator(config.HealthConfig{})
		result := v.Check(context.Background(), team, environment.Blue)
		assert.Equal(t, StatusHealthy, result.Status)
	})

	t.Run("500 login is unhealthy", func(t *testing.T) {
		srv := fakeJenkins(t, http.StatusInternalServerError, `{"jobs":[]}`)
		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}

		v := testValidator(config.HealthConfig{})
		result := v.Check(context.Background(), team, environment.Blue)

		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Detail, "/login")
	})

	t.Run("malformed api body is unhealthy", func(t *testing.T) {
		srv := fakeJenkins(t, http.StatusOK, `not-json`)
		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}

		v := testValidator(config.HealthConfig{})
		result := v.Check(context.Background(), team, environment.Blue)

		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Detail, "/api/json")
	})

	t.Run("unreachable target is not healthy", func(t *testing.T) {
		// Reserve a port and close it so nothing is listening.
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := l.Addr().(*net.TCPAddr).Port
		require.NoError(t, l.Close())

		team := config.Team{Name: "devops", BluePort: port, GreenPort: 1}
		v := testValidator(config.HealthConfig{Timeout: 500 * time.Millisecond})
		result := v.Check(context.Background(), team, environment.Blue)

		assert.NotEqual(t, StatusHealthy, result.Status)
	})
}

func TestValidator_Retries(t *testing.T) {
	t.Run("transient failure recovers within retry budget", func(t *testing.T) {
		var calls int32
		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/api/json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"jobs":[{}]}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}
		v := testValidator(config.HealthConfig{Retries: 3, RetryDelay: 10 * time.Millisecond})

		result := v.Check(context.Background(), team, environment.Blue)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
	})

	t.Run("exhausted retries fail", func(t *testing.T) {
		srv := fakeJenkins(t, http.StatusInternalServerError, `{}`)
		team := config.Team{Name: "devops", BluePort: serverPort(t, srv), GreenPort: 1}

		v := testValidator(config.HealthConfig{Retries: 2, RetryDelay: 5 * time.Millisecond})
		result := v.Check(context.Background(), team, environment.Blue)
		assert.Equal(t, StatusUnhealthy, result.Status)
	})
}

func TestValidator_DriftExceeded(t *testing.T) {
	v := testValidator(config.HealthConfig{DriftTolerance: 0.10})

	t.Run("within tolerance", func(t *testing.T) {
		target := Result{JobCount: 95}
		active := Result{JobCount: 100}
		assert.False(t, v.DriftExceeded(target, active))
	})

	t.Run("forty percent drift exceeds ten percent tolerance", func(t *testing.T) {
		target := Result{JobCount: 60}
		active := Result{JobCount: 100}
		assert.True(t, v.DriftExceeded(target, active))
	})

	t.Run("zero active jobs never drifts", func(t *testing.T) {
		assert.False(t, v.DriftExceeded(Result{JobCount: 50}, Result{JobCount: 0}))
	})
}
