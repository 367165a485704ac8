// Package store provides storage backends for LaunchPipe.
//
// It includes an in-memory store for tests and persistent SQLite and
// PostgreSQL stores for tasks and entry parameter snapshots. Snapshots can
// also be kept in Redis (see redis.go).
package store

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// TaskStore persists todo-list tasks.
type TaskStore interface {
	// ListTasks returns all tasks ordered by order_index ascending.
	ListTasks() ([]models.Task, error)
	// CreateTask inserts a task ahead of every existing one.
	CreateTask(description string) (models.Task, error)
	// GetTask returns nil, nil when the task does not exist.
	GetTask(id int64) (*models.Task, error)
	// CompleteTask sets date_completed; returns nil, nil when the task does not exist.
	CompleteTask(id int64, at time.Time) (*models.Task, error)
	// DeleteTask reports whether a row was removed.
	DeleteTask(id int64) (bool, error)
	// FindTasksByDescription returns every task whose description matches exactly.
	FindTasksByDescription(description string) ([]models.Task, error)
	// UpdateTaskDescription returns nil, nil when the task does not exist.
	UpdateTaskDescription(id int64, description string) (*models.Task, error)
	// ReorderTasks assigns order_index 0..n-1 following ids; unknown ids yield models.ErrTaskNotFound.
	ReorderTasks(ids []int64) error
}

// SnapshotStore persists one serialized parameter snapshot per (origin, key).
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, origin, key, data string) error
	// LoadSnapshot reports found=false when nothing is stored.
	LoadSnapshot(ctx context.Context, origin, key string) (data string, found bool, err error)
	DeleteSnapshot(ctx context.Context, origin, key string) error
}

// Store combines task and snapshot persistence.
type Store interface {
	TaskStore
	SnapshotStore
	Close() error
}

// Opts holds configuration options for SQL-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the store matching the DSN, or an in-memory store when dsn is empty.
func New(dsn string) (Store, error) {
	switch {
	case dsn == "":
		slog.Debug("store.New: no DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

type snapshotKey struct {
	origin string
	key    string
}

// InMemoryStore is a simple in-memory store for tasks and snapshots.
type InMemoryStore struct {
	mu        sync.RWMutex
	tasks     map[int64]models.Task
	nextID    int64
	snapshots map[snapshotKey]string
	now       func() time.Time
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		tasks:     make(map[int64]models.Task),
		nextID:    1,
		snapshots: make(map[snapshotKey]string),
		now:       time.Now,
	}
}

func (s *InMemoryStore) ListTasks() ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].OrderIndex == tasks[j].OrderIndex {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].OrderIndex < tasks[j].OrderIndex
	})
	return tasks, nil
}

func (s *InMemoryStore) CreateTask(description string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	minOrder := 0
	first := true
	for _, t := range s.tasks {
		if first || t.OrderIndex < minOrder {
			minOrder = t.OrderIndex
			first = false
		}
	}
	task := models.Task{
		ID:          s.nextID,
		DateCreated: s.now().UTC(),
		Description: description,
		OrderIndex:  minOrder - 1,
	}
	s.tasks[task.ID] = task
	s.nextID++
	return task, nil
}

func (s *InMemoryStore) GetTask(id int64) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *InMemoryStore) CompleteTask(id int64, at time.Time) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	completed := at.UTC()
	t.DateCompleted = &completed
	s.tasks[id] = t
	return &t, nil
}

func (s *InMemoryStore) DeleteTask(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

func (s *InMemoryStore) FindTasksByDescription(description string) ([]models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []models.Task
	for _, t := range s.tasks {
		if t.Description == description {
			matches = append(matches, t)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

func (s *InMemoryStore) UpdateTaskDescription(id int64, description string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	t.Description = description
	s.tasks[id] = t
	return &t, nil
}

func (s *InMemoryStore) ReorderTasks(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.tasks[id]; !ok {
			return models.ErrTaskNotFound
		}
	}
	for i, id := range ids {
		t := s.tasks[id]
		t.OrderIndex = i
		s.tasks[id] = t
	}
	return nil
}

func (s *InMemoryStore) SaveSnapshot(ctx context.Context, origin, key, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{origin, key}] = data
	return nil
}

func (s *InMemoryStore) LoadSnapshot(ctx context.Context, origin, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.snapshots[snapshotKey{origin, key}]
	return data, ok, nil
}

func (s *InMemoryStore) DeleteSnapshot(ctx context.Context, origin, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, snapshotKey{origin, key})
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
