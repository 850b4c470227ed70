package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// migration is one versioned schema change.
type migration struct {
	Version     string
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     "001",
		Description: "key-value store",
		SQL: `
			CREATE TABLE IF NOT EXISTS kv_store (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				origin TEXT NOT NULL,
				revision INTEGER NOT NULL,
				updated_at TEXT NOT NULL
			);`,
	},
	{
		Version:     "002",
		Description: "change log",
		SQL: `
			CREATE TABLE IF NOT EXISTS kv_changes (
				revision INTEGER PRIMARY KEY AUTOINCREMENT,
				key TEXT NOT NULL,
				value TEXT,
				origin TEXT NOT NULL,
				changed_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_kv_changes_key ON kv_changes (key);`,
	},
}

// migrate applies every migration not yet recorded in schema_migrations.
func migrate(ctx context.Context, db *sqlx.DB) error {
	const createVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			execution_time_ms INTEGER
		)`
	if _, err := db.ExecContext(ctx, createVersionTable); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	return withTx(ctx, db, func(tx *sqlx.Tx) error {
		var applied int
		if err := tx.GetContext(ctx, &applied, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
			return fmt.Errorf("migration %s: check version applied: %w", m.Version, err)
		}
		if applied > 0 {
			return nil
		}

		started := time.Now()
		for i, stmt := range splitStatements(m.SQL) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s (%s): execute statement %d: %w", m.Version, m.Description, i+1, err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at, execution_time_ms) VALUES (?, ?, ?)`,
			m.Version,
			time.Now().UTC().Format(time.RFC3339),
			time.Since(started).Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("migration %s: record version: %w", m.Version, err)
		}
		return nil
	})
}

// appliedVersions lists recorded migration versions in order.
func appliedVersions(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations ORDER BY version ASC`); err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	return versions, nil
}

// splitStatements splits SQL content on semicolons, dropping blank and
// comment-only statements.
func splitStatements(sql string) []string {
	var statements []string
	for _, stmt := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			statements = append(statements, strings.Join(lines, "\n"))
		}
	}
	return statements
}
