// internal/state/filestore.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/FairForge/greenlight/internal/environment"
	"go.uber.org/zap"
)

const defaultMaxBackups = 10

// FileStore persists SwitchState as one JSON file per team.
// All writes go through a temp-file-then-rename so concurrent readers
// never observe a partially written record.
type FileStore struct {
	dir        string
	maxBackups int
	logger     *zap.Logger
	mu         sync.Mutex
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithMaxBackups bounds retained backup history per team.
func WithMaxBackups(n int) FileStoreOption {
	return func(s *FileStore) {
		if n > 0 {
			s.maxBackups = n
		}
	}
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string, logger *zap.Logger, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("state: create dir %s: %w", dir, err)
	}

	s := &FileStore{
		dir:        dir,
		maxBackups: defaultMaxBackups,
		logger:     logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *FileStore) statePath(team string) string {
	return filepath.Join(s.dir, team+".json")
}

func (s *FileStore) backupPath(team string) string {
	return filepath.Join(s.dir, team+".backups.json")
}

func (s *FileStore) historyPath(team string) string {
	return filepath.Join(s.dir, team+".history.jsonl")
}

// Get returns the committed state for a team.
func (s *FileStore) Get(team string) (*SwitchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(team)
}

func (s *FileStore) read(team string) (*SwitchState, error) {
	data, err := os.ReadFile(s.statePath(team)) // #nosec G304 - path built from config dir
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: read %s: %w", team, err)
	}

	var st SwitchState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state: parse %s: %w", team, err)
	}

	return &st, nil
}

// GetOrInit returns the state, creating the first-deployment record if absent.
func (s *FileStore) GetOrInit(team string) (*SwitchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read(team)
	if err == nil {
		return st, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	// First deployment is blue by convention.
	st = &SwitchState{
		ActiveEnvironment:   environment.Blue,
		PreviousEnvironment: environment.Green,
		LastSwitchTimestamp: time.Now().UTC(),
		SwitchInProgress:    false,
	}

	if err := s.write(team, st); err != nil {
		return nil, err
	}

	s.logger.Info("initialized switch state",
		zap.String("team", team),
		zap.String("active", st.ActiveEnvironment.String()))

	return st, nil
}

// Put durably commits a new state and appends it to the team's history.
// The written file is read back and compared to catch silent corruption.
func (s *FileStore) Put(team string, st *SwitchState) error {
	if !st.ActiveEnvironment.Valid() {
		return fmt.Errorf("state: invalid active environment %q", st.ActiveEnvironment)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(team, st); err != nil {
		return err
	}

	verify, err := s.read(team)
	if err != nil {
		return fmt.Errorf("state: verify after write: %w", err)
	}
	if verify.ActiveEnvironment != st.ActiveEnvironment || verify.SwitchInProgress != st.SwitchInProgress {
		return fmt.Errorf("state: verify after write: file does not match committed state for %s", team)
	}

	s.appendHistory(team, st)

	return nil
}

func (s *FileStore) write(team string, st *SwitchState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal %s: %w", team, err)
	}

	path := s.statePath(team)
	tmp, err := os.CreateTemp(s.dir, team+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: rename into place: %w", err)
	}

	return nil
}

// appendHistory records the committed state in the append-only history log.
// History failures never fail the commit itself.
func (s *FileStore) appendHistory(team string, st *SwitchState) {
	f, err := os.OpenFile(s.historyPath(team), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640) // #nosec G304
	if err != nil {
		s.logger.Warn("state history append failed", zap.String("team", team), zap.Error(err))
		return
	}
	defer func() { _ = f.Close() }()

	line, err := json.Marshal(st)
	if err != nil {
		s.logger.Warn("state history marshal failed", zap.String("team", team), zap.Error(err))
		return
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logger.Warn("state history write failed", zap.String("team", team), zap.Error(err))
	}
}

// Snapshot records a backup of the current committed state.
func (s *FileStore) Snapshot(team string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read(team)
	if err != nil {
		return nil, err
	}

	backup := &Backup{
		Team:    team,
		TakenAt: time.Now().UTC(),
		State:   *st,
	}

	backups, err := s.readBackups(team)
	if err != nil {
		return nil, err
	}

	backups = append(backups, backup)
	if len(backups) > s.maxBackups {
		backups = backups[len(backups)-s.maxBackups:]
	}

	if err := s.writeBackups(team, backups); err != nil {
		return nil, err
	}

	return backup, nil
}

// LatestBackup returns the most recent backup for a team.
func (s *FileStore) LatestBackup(team string) (*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backups, err := s.readBackups(team)
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, ErrNotFound
	}

	return backups[len(backups)-1], nil
}

// Backups returns retained backups, oldest first.
func (s *FileStore) Backups(team string) ([]*Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readBackups(team)
}

func (s *FileStore) readBackups(team string) ([]*Backup, error) {
	data, err := os.ReadFile(s.backupPath(team)) // #nosec G304
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: read backups %s: %w", team, err)
	}

	var backups []*Backup
	if err := json.Unmarshal(data, &backups); err != nil {
		return nil, fmt.Errorf("state: parse backups %s: %w", team, err)
	}

	return backups, nil
}

func (s *FileStore) writeBackups(team string, backups []*Backup) error {
	data, err := json.MarshalIndent(backups, "", "  ")
	if err != nil {
		return fmt.Errorf("state: marshal backups %s: %w", team, err)
	}

	tmp, err := os.CreateTemp(s.dir, team+".backups.*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.backupPath(team)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("state: rename into place: %w", err)
	}

	return nil
}
