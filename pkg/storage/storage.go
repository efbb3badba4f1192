// Package storage provides the SQLite persistence layer for the node tree.
// It owns the database connection, the schema, and the row-level operations;
// all invariant logic lives above it in pkg/tree.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"arbor/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	parent_id INTEGER REFERENCES nodes(id),
	ordering INTEGER NOT NULL,
	created DATETIME NOT NULL,
	updated DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_nodes_parent_ordering ON nodes(parent_id, ordering);
`

// Storage wraps the SQLite database handle.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at dbPath, applies
// the schema, and bootstraps the root node. It is safe to call on every
// startup; both schema and bootstrap are idempotent.
func Open(dbPath string, logger *slog.Logger) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set SQLite synchronous pragma: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	s := &Storage{db: db, logger: logger}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := s.bootstrap(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("storage opened", "path", dbPath)
	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error. Every tree operation is one WithTx call, so a failure mid-operation
// never leaves a partial mutation behind.
func (s *Storage) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// bootstrap creates the root node if it does not exist yet. Runs before any
// operation is served, so the rest of the code can assume the root is there.
func (s *Storage) bootstrap(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE id = ?", model.RootID)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("failed to check for root node: %w", err)
		}
		if count > 0 {
			return nil
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO nodes (id, title, parent_id, ordering, created, updated) VALUES (?, ?, NULL, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)",
			model.RootID, model.RootTitle)
		if err != nil {
			return fmt.Errorf("failed to create root node: %w", err)
		}
		s.logger.Info("root node created", "id", model.RootID)
		return nil
	})
}
