package store

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration, applied after
// InitSchema. Grounded on internal/database/migrations.go: each migration
// carries its own existence check so re-running Migrate on an
// already-migrated database is a no-op.
type migration struct {
	name  string
	sql   string
	check string // query returning one row/one column; non-zero means "already applied"
}

// migrations is the ordered list of schema changes applied after the base
// schema. ALTER TABLEs land here so databases created before a column
// existed upgrade in place; on a fresh database, where schemaSQL already
// has the column, the check query makes the migration a no-op.
var migrations = []migration{
	{
		name:  "add channels.audio_device",
		sql:   `ALTER TABLE channels ADD COLUMN audio_device TEXT`,
		check: `SELECT COUNT(*) FROM pragma_table_info('channels') WHERE name = 'audio_device'`,
	},
}

// Migrate runs all pending schema migrations. SQLite's ALTER TABLE has no
// IF NOT EXISTS guard, so the check query does the idempotence teacher's
// Postgres migrations get from `IF NOT EXISTS` directly.
func (s *Store) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		var count int
		if err := s.db.QueryRowContext(ctx, m.check).Scan(&count); err == nil && count > 0 {
			continue
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return &MigrationError{failed: m, pending: pending[applied:], err: err}
		}
		s.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	s.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError reports a failed migration along with the SQL still
// pending, so an operator can apply the rest by hand.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\napply the remaining statements manually:\n", e.failed.name, e.err)
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	return b.String()
}

func (e *MigrationError) Unwrap() error { return e.err }
