// internal/state/filestore_test.go
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/greenlight/internal/environment"
)

func newTestStore(t *testing.T, opts ...FileStoreOption) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), zap.NewNop(), opts...)
	require.NoError(t, err)
	return store
}

func TestFileStore_GetOrInit(t *testing.T) {
	store := newTestStore(t)

	t.Run("first call creates blue-active record", func(t *testing.T) {
		st, err := store.GetOrInit("devops")
		require.NoError(t, err)
		assert.Equal(t, environment.Blue, st.ActiveEnvironment)
		assert.False(t, st.SwitchInProgress)
	})

	t.Run("second call returns persisted record", func(t *testing.T) {
		st, err := store.GetOrInit("devops")
		require.NoError(t, err)

		st.ActiveEnvironment = environment.Green
		st.PreviousEnvironment = environment.Blue
		require.NoError(t, store.Put("devops", st))

		again, err := store.GetOrInit("devops")
		require.NoError(t, err)
		assert.Equal(t, environment.Green, again.ActiveEnvironment)
	})
}

func TestFileStore_Get(t *testing.T) {
	store := newTestStore(t)

	t.Run("missing team returns ErrNotFound", func(t *testing.T) {
		_, err := store.Get("nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileStore_Put(t *testing.T) {
	store := newTestStore(t)

	t.Run("round trips state", func(t *testing.T) {
		ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		st := &SwitchState{
			ActiveEnvironment:   environment.Green,
			PreviousEnvironment: environment.Blue,
			LastSwitchTimestamp: ts,
			SwitchInProgress:    false,
		}
		require.NoError(t, store.Put("devops", st))

		got, err := store.Get("devops")
		require.NoError(t, err)
		assert.Equal(t, environment.Green, got.ActiveEnvironment)
		assert.Equal(t, environment.Blue, got.PreviousEnvironment)
		assert.True(t, ts.Equal(got.LastSwitchTimestamp))
	})

	t.Run("rejects invalid environment", func(t *testing.T) {
		err := store.Put("devops", &SwitchState{ActiveEnvironment: "chartreuse"})
		assert.Error(t, err)
	})

	t.Run("writes the documented JSON schema", func(t *testing.T) {
		require.NoError(t, store.Put("schema", &SwitchState{
			ActiveEnvironment:   environment.Blue,
			PreviousEnvironment: environment.Green,
			LastSwitchTimestamp: time.Now().UTC(),
		}))

		data, err := os.ReadFile(filepath.Join(store.dir, "schema.json"))
		require.NoError(t, err)

		var raw map[string]any
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Contains(t, raw, "active_environment")
		assert.Contains(t, raw, "previous_environment")
		assert.Contains(t, raw, "last_switch_timestamp")
		assert.Contains(t, raw, "switch_in_progress")
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		require.NoError(t, store.Put("tidy", &SwitchState{
			ActiveEnvironment:   environment.Blue,
			PreviousEnvironment: environment.Green,
		}))

		entries, err := os.ReadDir(store.dir)
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "stray temp file %s", e.Name())
		}
	})

	t.Run("appends to history log", func(t *testing.T) {
		for _, env := range []environment.Environment{environment.Green, environment.Blue} {
			require.NoError(t, store.Put("hist", &SwitchState{
				ActiveEnvironment:   env,
				PreviousEnvironment: env.Other(),
			}))
		}

		data, err := os.ReadFile(filepath.Join(store.dir, "hist.history.jsonl"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 2)
	})
}

func TestFileStore_ConcurrentPuts(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetOrInit("devops")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env := environment.Blue
			if i%2 == 0 {
				env = environment.Green
			}
			_ = store.Put("devops", &SwitchState{
				ActiveEnvironment:   env,
				PreviousEnvironment: env.Other(),
				LastSwitchTimestamp: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	// Whatever won, the record must parse and be one of the two slots.
	st, err := store.Get("devops")
	require.NoError(t, err)
	assert.True(t, st.ActiveEnvironment.Valid())
}

func TestFileStore_Backups(t *testing.T) {
	store := newTestStore(t, WithMaxBackups(3))

	_, err := store.GetOrInit("devops")
	require.NoError(t, err)

	t.Run("snapshot captures current state", func(t *testing.T) {
		backup, err := store.Snapshot("devops")
		require.NoError(t, err)
		assert.Equal(t, "devops", backup.Team)
		assert.Equal(t, environment.Blue, backup.State.ActiveEnvironment)
	})

	t.Run("latest backup is the newest snapshot", func(t *testing.T) {
		require.NoError(t, store.Put("devops", &SwitchState{
			ActiveEnvironment:   environment.Green,
			PreviousEnvironment: environment.Blue,
		}))
		_, err := store.Snapshot("devops")
		require.NoError(t, err)

		latest, err := store.LatestBackup("devops")
		require.NoError(t, err)
		assert.Equal(t, environment.Green, latest.State.ActiveEnvironment)
	})

	t.Run("history is bounded", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			_, err := store.Snapshot("devops")
			require.NoError(t, err)
		}

		backups, err := store.Backups("devops")
		require.NoError(t, err)
		assert.Len(t, backups, 3)
	})

	t.Run("no backups returns ErrNotFound", func(t *testing.T) {
		_, err := store.LatestBackup("unknown")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
