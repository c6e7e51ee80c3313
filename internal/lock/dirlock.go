// internal/lock/dirlock.go
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DirManager implements Manager on the filesystem. The atomic
// create-or-fail primitive is os.Mkdir: exactly one concurrent caller
// can create the team's lock directory.
type DirManager struct {
	dir       string
	staleness time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewDirManager creates a directory-backed lock manager rooted at dir.
func NewDirManager(dir string, staleness time.Duration, logger *zap.Logger) (*DirManager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("lock: create dir %s: %w", dir, err)
	}

	return &DirManager{
		dir:       dir,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (m *DirManager) lockPath(team string) string {
	return filepath.Join(m.dir, team+".lock")
}

func (m *DirManager) ownerPath(team string) string {
	return filepath.Join(m.lockPath(team), "owner.json")
}

// Acquire takes the team's lock via atomic directory creation.
func (m *DirManager) Acquire(team, operator string) (*Token, error) {
	err := os.Mkdir(m.lockPath(team), 0o750)
	if os.IsExist(err) {
		holder, herr := m.Holder(team)
		if herr != nil {
			// Directory exists but owner file is gone or unreadable:
			// treat as held, an operator has to look at it.
			return nil, fmt.Errorf("%w (unreadable owner: %v)", ErrHeld, herr)
		}
		if m.isStale(holder) {
			return nil, fmt.Errorf("%w (held by %s since %s)",
				ErrStale, holder.Operator, holder.AcquiredAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf("%w (held by %s since %s)",
			ErrHeld, holder.Operator, holder.AcquiredAt.Format(time.RFC3339))
	}
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", team, err)
	}

	token := &Token{
		Team:       team,
		ID:         uuid.New().String(),
		Operator:   operator,
		AcquiredAt: m.now().UTC(),
	}

	if err := m.writeOwner(token); err != nil {
		// Roll the directory back so the team is not bricked.
		_ = os.RemoveAll(m.lockPath(team))
		return nil, err
	}

	return token, nil
}

// Release frees the lock if the token owns it.
func (m *DirManager) Release(team string, token *Token) error {
	holder, err := m.Holder(team)
	if err != nil {
		return err
	}

	if token == nil || holder.ID != token.ID {
		return ErrTokenMismatch
	}

	if err := os.RemoveAll(m.lockPath(team)); err != nil {
		return fmt.Errorf("lock: release %s: %w", team, err)
	}

	return nil
}

// ReclaimStale replaces a stale holder. Explicit operator action only.
func (m *DirManager) ReclaimStale(team, operator string) (*Token, error) {
	holder, err := m.Holder(team)
	if err != nil {
		return nil, err
	}

	if !m.isStale(holder) {
		return nil, fmt.Errorf("%w (acquired %s)", ErrNotStale, holder.AcquiredAt.Format(time.RFC3339))
	}

	m.logger.Warn("reclaimed stale lock",
		zap.String("team", team),
		zap.String("previous_operator", holder.Operator),
		zap.Time("previous_acquired_at", holder.AcquiredAt),
		zap.String("operator", operator))

	if err := os.RemoveAll(m.lockPath(team)); err != nil {
		return nil, fmt.Errorf("lock: remove stale %s: %w", team, err)
	}

	return m.Acquire(team, operator)
}

// Holder reports the current token for a team.
func (m *DirManager) Holder(team string) (*Token, error) {
	data, err := os.ReadFile(m.ownerPath(team)) // #nosec G304
	if os.IsNotExist(err) {
		return nil, ErrNotHeld
	}
	if err != nil {
		return nil, fmt.Errorf("lock: read owner %s: %w", team, err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("lock: parse owner %s: %w", team, err)
	}

	return &token, nil
}

// ForceExpireAll removes locks older than the staleness threshold.
// Called once at process startup; every removal is logged as an anomaly.
func (m *DirManager) ForceExpireAll() (int, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return 0, fmt.Errorf("lock: scan %s: %w", m.dir, err)
	}

	expired := 0
	for _, entry := range entries {
		if !entry.IsDir() || filepath.Ext(entry.Name()) != ".lock" {
			continue
		}

		team := entry.Name()[:len(entry.Name())-len(".lock")]
		holder, err := m.Holder(team)
		if err != nil {
			m.logger.Warn("orphaned lock directory with no owner record, removing",
				zap.String("team", team), zap.Error(err))
			_ = os.RemoveAll(m.lockPath(team))
			expired++
			continue
		}

		if !m.isStale(holder) {
			continue
		}

		m.logger.Warn("force-expired stale lock at startup",
			zap.String("team", team),
			zap.String("operator", holder.Operator),
			zap.Time("acquired_at", holder.AcquiredAt))

		if err := os.RemoveAll(m.lockPath(team)); err != nil {
			return expired, fmt.Errorf("lock: expire %s: %w", team, err)
		}
		expired++
	}

	return expired, nil
}

func (m *DirManager) isStale(token *Token) bool {
	return m.now().Sub(token.AcquiredAt) > m.staleness
}

func (m *DirManager) writeOwner(token *Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("lock: marshal owner: %w", err)
	}

	if err := os.WriteFile(m.ownerPath(token.Team), data, 0o640); err != nil {
		return fmt.Errorf("lock: write owner: %w", err)
	}

	return nil
}
