package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/LaunchPipe/internal/models"
)

// taskColumns is the column list every task query selects, in scanTask order.
const taskColumns = `id, date_created, date_completed, description, order_index`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTask scans a Task from a row selected with taskColumns.
func scanTask(row rowScanner) (models.Task, error) {
	var t models.Task
	var completed sql.NullTime
	if err := row.Scan(&t.ID, &t.DateCreated, &completed, &t.Description, &t.OrderIndex); err != nil {
		return t, err
	}
	if completed.Valid {
		c := completed.Time
		t.DateCompleted = &c
	}
	return t, nil
}

// scanTasks drains rows into a slice.
func scanTasks(rows *sql.Rows) ([]models.Task, error) {
	defer rows.Close()
	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task rows: %w", err)
	}
	return tasks, nil
}

// getTask runs a single-row task query and maps sql.ErrNoRows to nil, nil.
func getTask(db *sql.DB, query string, args ...interface{}) (*models.Task, error) {
	t, err := scanTask(db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
