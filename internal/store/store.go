// Package store persists published dependency snapshots.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite implementation of SnapshotStore.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the database at dbPath and migrates it.
func Open(dbPath string) (*Store, error) {
	s, err := NewStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	if err := s.SetMetadata(context.Background(), "schema_version", SchemaVersion); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SchemaVersion is recorded in the metadata table by Migrate.
const SchemaVersion = "1"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  active_full     TEXT,
  active_short    TEXT,
  saved_at        TIMESTAMP
);

CREATE TABLE IF NOT EXISTS targets (
  id              INTEGER PRIMARY KEY,
  project_id      INTEGER NOT NULL REFERENCES projects(id),
  ordinal         INTEGER NOT NULL,
  full_name       TEXT,
  short_name      TEXT
);

CREATE TABLE IF NOT EXISTS dependencies (
  id              INTEGER PRIMARY KEY,
  target_id       INTEGER NOT NULL REFERENCES targets(id),
  ordinal         INTEGER NOT NULL,
  provider_type   TEXT NOT NULL,
  model_id        TEXT NOT NULL,
  kind            TEXT,
  original_item_spec TEXT NOT NULL,
  item_spec       TEXT,
  path            TEXT,
  caption         TEXT,
  version         TEXT,
  resolved        BOOLEAN DEFAULT FALSE,
  implicit        BOOLEAN DEFAULT FALSE,
  transitive      BOOLEAN DEFAULT FALSE,
  hidden          BOOLEAN DEFAULT FALSE,
  diagnostic_level TEXT,
  properties      TEXT,
  schema_name     TEXT,
  schema_item_type TEXT,
  extra_flags     INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dependency_ids (
  id              INTEGER PRIMARY KEY,
  dependency_id   INTEGER NOT NULL REFERENCES dependencies(id),
  ordinal         INTEGER NOT NULL,
  ref             TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_targets_project ON targets(project_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_provider ON dependencies(provider_type, model_id);
CREATE INDEX IF NOT EXISTS idx_dependency_ids_dependency ON dependency_ids(dependency_id);
`

// GetMetadata returns the value stored under key, or ErrNotFound.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("store: get metadata %q: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("store: set metadata %q: %w", key, err)
	}
	return nil
}

// DeleteProject transactionally removes everything stored for a project.
// Deletes in reverse-dependency order to respect FK constraints. Deleting
// an unknown project is not an error.
func (s *Store) DeleteProject(ctx context.Context, projectPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete project: begin: %w", err)
	}
	defer tx.Rollback()

	if err := deleteProjectTx(ctx, tx, projectPath); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteProjectTx(ctx context.Context, tx *sql.Tx, projectPath string) error {
	for _, q := range []string{
		`DELETE FROM dependency_ids WHERE dependency_id IN (
			SELECT d.id FROM dependencies d
			JOIN targets t ON t.id = d.target_id
			JOIN projects p ON p.id = t.project_id
			WHERE p.path = ?)`,
		`DELETE FROM dependencies WHERE target_id IN (
			SELECT t.id FROM targets t
			JOIN projects p ON p.id = t.project_id
			WHERE p.path = ?)`,
		`DELETE FROM targets WHERE project_id IN (SELECT id FROM projects WHERE path = ?)`,
		`DELETE FROM projects WHERE path = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, projectPath); err != nil {
			return fmt.Errorf("store: delete project %q: %w", projectPath, err)
		}
	}
	return nil
}
