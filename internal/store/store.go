package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// applicationID tags SQLite files written by this package ("STRA").
const applicationID = 0x53545241

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

var (
	// ErrNotFound is returned when a session or snapshot does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForeignDatabase is returned when the file belongs to another application.
	ErrForeignDatabase = errors.New("not a strata journal")

	// ErrNewerSchema is returned when the journal was written by a newer release.
	ErrNewerSchema = errors.New("journal schema is newer than this build")
)

type migration struct {
	version int
	name    string
	stmt    string
}

// migrations run in order on any journal whose user_version is behind,
// fresh ones included. schema.sql holds only the tables.
var migrations = []migration{
	{1, "index entries by state hash", `CREATE INDEX IF NOT EXISTS idx_entries_state_hash ON entries(state_hash)`},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// Store provides durable storage for strata action journals.
// File journals use WAL mode; MemoryPath journals live for one Store.
type Store struct {
	db     *sql.DB
	memory bool
}

// Open creates or opens a journal at path, or an in-memory journal for
// MemoryPath. Pragmas and migrations are applied on every open.
//
// File journals are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (entries reference sessions and snapshots)
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and each connection to
	// :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, memory: path == MemoryPath}
	if err := applyPragmas(db, s.memory); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query executes a query and returns the resulting rows.
// Callers are responsible for closing the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB, memory bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if !memory {
		pragmas = append(pragmas,
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema checks the file is ours, creates missing tables and brings
// older journals up to date. Idempotent.
func applySchema(db *sql.DB) error {
	var appID, version int
	if err := db.QueryRow("PRAGMA application_id").Scan(&appID); err != nil {
		return fmt.Errorf("get application_id: %w", err)
	}
	if appID != 0 && appID != applicationID {
		return fmt.Errorf("%w: application_id %#x", ErrForeignDatabase, appID)
	}
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: version %d, supported %d", ErrNewerSchema, version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db, version); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if appID == 0 {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
			return fmt.Errorf("set application_id: %w", err)
		}
	}
	return nil
}

// runMigrations applies every migration newer than version, stamping
// user_version after each one in the same transaction.
func runMigrations(db *sql.DB, version int) error {
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
