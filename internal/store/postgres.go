// Package store provides storage backends for LaunchPipe.
//
// This file implements a PostgreSQL-backed store for tasks and parameter snapshots.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ListTasks() ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT ` + taskColumns + ` FROM tasks ORDER BY order_index ASC, id ASC`)
	if err != nil {
		slog.Error("PostgresStore ListTasks query failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		slog.Error("PostgresStore ListTasks scan failed", "error", err)
		return nil, err
	}
	slog.Debug("PostgresStore ListTasks succeeded", "count", len(tasks))
	return tasks, nil
}

func (s *PostgresStore) CreateTask(description string) (models.Task, error) {
	t, err := scanTask(s.db.QueryRow(`INSERT INTO tasks (date_created, description, order_index)
		VALUES ($1, $2, (SELECT COALESCE(MIN(order_index), 0) - 1 FROM tasks))
		RETURNING `+taskColumns, time.Now().UTC(), description))
	if err != nil {
		slog.Error("PostgresStore CreateTask failed", "error", err)
		return models.Task{}, fmt.Errorf("failed to insert task: %w", err)
	}
	slog.Debug("PostgresStore CreateTask succeeded", "id", t.ID, "order_index", t.OrderIndex)
	return t, nil
}

func (s *PostgresStore) GetTask(id int64) (*models.Task, error) {
	t, err := getTask(s.db, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore GetTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get task %d: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) CompleteTask(id int64, at time.Time) (*models.Task, error) {
	t, err := getTask(s.db, `UPDATE tasks SET date_completed = $1 WHERE id = $2 RETURNING `+taskColumns, at.UTC(), id)
	if err != nil {
		slog.Error("PostgresStore CompleteTask failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to complete task %d: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) DeleteTask(id int64) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteTask failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) FindTasksByDescription(description string) ([]models.Task, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE description = $1 ORDER BY id ASC`, description)
	if err != nil {
		slog.Error("PostgresStore FindTasksByDescription failed", "error", err)
		return nil, fmt.Errorf("failed to query tasks by description: %w", err)
	}
	return scanTasks(rows)
}

func (s *PostgresStore) UpdateTaskDescription(id int64, description string) (*models.Task, error) {
	t, err := getTask(s.db, `UPDATE tasks SET description = $1 WHERE id = $2 RETURNING `+taskColumns, description, id)
	if err != nil {
		slog.Error("PostgresStore UpdateTaskDescription failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ReorderTasks(ids []int64) error {
	return reorderTasks(s.db, `UPDATE tasks SET order_index = $1 WHERE id = $2`, ids)
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, origin, key, data string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO param_snapshots (origin, storage_key, data, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (origin, storage_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
		origin, key, data, time.Now().UTC())
	if err != nil {
		slog.Error("PostgresStore SaveSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, origin, key string) (string, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM param_snapshots WHERE origin = $1 AND storage_key = $2`, origin, key).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("PostgresStore LoadSnapshot failed", "error", err, "origin", origin, "key", key)
		return "", false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return data, true, nil
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, origin, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM param_snapshots WHERE origin = $1 AND storage_key = $2`, origin, key)
	if err != nil {
		slog.Error("PostgresStore DeleteSnapshot failed", "error", err, "origin", origin, "key", key)
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ClearTasks deletes all records in tasks table (for tests).
func (s *PostgresStore) ClearTasks() error {
	_, err := s.db.Exec("DELETE FROM tasks")
	return err
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
