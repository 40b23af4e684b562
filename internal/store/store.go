// Package store is the persistent backing for channels, runtime state, the
// tx ledger, the audio-cache index, and provider credentials (spec §3/§4.2).
// It is implemented over modernc.org/sqlite (pure Go, no cgo) rather than
// the teacher's Postgres/pgx stack: spec §6 requires a single embedded
// file (vhf-balise.db) suitable for an unattended single-board computer,
// which rules out a standalone database server. See DESIGN.md for the
// full justification.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection. Single-writer within the runner
// process (spec §4.2) — WAL mode lets the external admin API's reads
// proceed without blocking the runner's writes, but the runner itself
// never needs more than one writer at a time, so no connection pool
// tuning beyond MaxOpenConns(1) for writes is required.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open connects to (and creates, if absent) the SQLite database at path,
// applies pragmas for an unattended single-writer workload, and runs
// InitSchema + Migrate. Grounded on internal/database/database.go's
// Connect + cmd/tr-engine/main.go's InitSchema/Migrate call sequence.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY under WAL for the
	// runner's own serialized writes; readers (e.g. the admin API) use
	// their own connection to the same file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log}

	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", path).Msg("store opened")
	return s, nil
}

// InitSchema applies schemaSQL. Every statement uses CREATE TABLE/INDEX IF
// NOT EXISTS, so this is safe to call on every startup, matching
// internal/database/schema.go's idempotent-apply contract.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	s.log.Info().Msg("closing store")
	return s.db.Close()
}

// HealthCheck reports whether the database connection is alive.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}
