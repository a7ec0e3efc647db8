// Package storage is the durable ledger store: groups, members and expenses
// in a local SQLite database, plus the per-entity sync baselines the sync
// engine merges against.
//
// Every mutating operation runs inside a single transaction. A failure rolls
// the transaction back and surfaces as a *PersistenceError; no partial write
// is ever observable.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"splitledger/internal/core"

	_ "modernc.org/sqlite"
)

// PersistenceError wraps a storage I/O or transaction failure. Domain errors
// such as core.ErrNotFound pass through untouched.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

var domainErrs = []error{
	core.ErrNotFound,
	core.ErrNotMember,
	core.ErrInvalidAmount,
	core.ErrEmptyName,
	core.ErrInvalidDate,
	core.ErrAlreadyMember,
	core.ErrMemberNotFound,
}

// wrapErr classifies a failure: domain sentinels propagate as-is, anything
// else becomes a PersistenceError.
func wrapErr(op string, err error) error {
	for _, de := range domainErrs {
		if errors.Is(err, de) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

// Repository is the single shared mutable resource of the system. SQLite
// serializes writers, so local mutations and sync merges never interleave
// within an entity update.
type Repository struct {
	db *sql.DB
}

// Open creates the database file if needed, runs migrations and returns a
// ready repository. Close it when done.
func Open(dbPath string) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (r *Repository) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return wrapErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
