// Package store provides storage backends for LaunchPipe.
//
// This file implements an SQLite-backed store for tasks and parameter snapshots.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single connection serializes writers and avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ListTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY order_index ASC, id ASC`)
	if err != nil {
		slog.Error("SQLiteStore ListTasks query failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		slog.Error("SQLiteStore ListTasks scan failed", "error", err)
		return nil, err
	}
	slog.Debug("SQLiteStore ListTasks succeeded", "count", len(tasks))
	return tasks, nil
}

func (s *SQLiteStore) CreateTask(description string) (models.Task, error) {
	res, err := s.db.Exec(`INSERT INTO tasks (date_created, description, order_index)
		VALUES (?, ?, (SELECT COALESCE(MIN(order_index), 0) - 1 FROM tasks))`,
		time.Now().UTC(), description)
	if err != nil {
		slog.Error("SQLiteStore CreateTask failed", "error", err)
		return models.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Task{}, fmt.Errorf("failed to read inserted task id: %w", err)
	}
	t, err := s.GetTask(id)
	if err != nil {
		return models.Task{}, err
	}
	if t == nil {
		return models.Task{}, fmt.Errorf("inserted task %d not found", id)
	}
	slog.Debug("SQLiteStore CreateTask succeeded", "id", id, "order_index", t.OrderIndex)
	return *t, nil
}

func (s *SQLiteStore) GetTask(id int64) (*models.Task, error) {
	t, err := getTask(s.db, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore GetTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

func (s *SQLiteStore) CompleteTask(id int64, at time.Time) (*models.Task, error) {
	res, err := s.db.Exec(`UPDATE tasks SET date_completed = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		slog.Error("SQLiteStore CompleteTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetTask(id)
}

func (s *SQLiteStore) DeleteTask(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteTask failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("SQLiteStore DeleteTask done", "id", id, "deleted", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) FindTasksByDescription(description string) ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE description = ? ORDER BY id ASC`, description)
	if err != nil {
		slog.Error("SQLiteStore FindTasksByDescription failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks by description: %w", err)
	}
	return scanTasks(rows)
}

func (s *SQLiteStore) UpdateTaskDescription(id int64, description string) (*models.Task, error) {
	res, err := s.db.Exec(`UPDATE tasks SET description = ? WHERE id = ?`, description, id)
	if err != nil {
		slog.Error("SQLiteStore UpdateTaskDescription failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, nil
	}
	return s.GetTask(id)
}

func (s *SQLiteStore) ReorderTasks(ids []int64) error {
	return reorderTasks(s.db, `UPDATE tasks SET order_index = ? WHERE id = ?`, ids)
}

// SaveSnapshot stores or replaces the snapshot for (origin, key).
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, origin, key, data string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO param_snapshots (origin, storage_key, data, updated_at)
		VALUES (?, ?, ?, ?)`, origin, key, data, time.Now().UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	slog.Debug("SQLiteStore SaveSnapshot succeeded", "origin", origin, "key", key, "bytes", len(data))
	return nil
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, origin, key string) (string, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM param_snapshots WHERE origin = ? AND storage_key = ?`, origin, key).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore LoadSnapshot failed", "error", err, "origin", origin, "key", key)
		return "", false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, true, nil
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, origin, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM param_snapshots WHERE origin = ? AND storage_key = ?`, origin, key)
	if err != nil {
		slog.Error("SQLiteStore DeleteSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ClearTasks deletes all records in tasks table (for tests).
func (s *SQLiteStore) ClearTasks() error {
	_, err := s.db.Exec("DELETE FROM tasks")
	return err
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// reorderTasks applies ids' positions as order_index inside one transaction.
func reorderTasks(db *sql.DB, update string, ids []int64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reorder: %w", err)
	}
	for i, id := range ids {
		res, err := tx.Exec(update, i, id)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to reorder task %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			tx.Rollback()
			return fmt.Errorf("task %d: %w", id, models.ErrTaskNotFound)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}
	slog.Debug("reorderTasks committed", "count", len(ids))
	return nil
}
