// internal/audit/postgres.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Postgres driver for the optional database sink.
	_ "github.com/lib/pq"
)

// PostgresSink mirrors audit entries into Postgres for fleets that need
// queryable compliance history alongside the local JSONL file.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink connects and ensures the audit table exists.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS switch_audit (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			team TEXT NOT NULL,
			action TEXT NOT NULL,
			outcome TEXT NOT NULL,
			operator TEXT NOT NULL,
			from_environment TEXT NOT NULL,
			to_environment TEXT NOT NULL,
			error_msg TEXT,
			metadata JSONB
		)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ensure table: %w", err)
	}

	return &PostgresSink{db: db}, nil
}

// Write inserts one entry.
func (s *PostgresSink) Write(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO switch_audit (
			id, timestamp, team, action, outcome, operator,
			from_environment, to_environment, error_msg, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.Timestamp,
		entry.Team,
		entry.Action,
		entry.Outcome,
		entry.Operator,
		entry.FromEnv,
		entry.ToEnv,
		nullString(entry.ErrorMsg),
		nullBytes(metadataJSON),
	)

	return err
}

// Close releases the database connection.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
