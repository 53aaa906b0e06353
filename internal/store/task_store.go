package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/taskminder/internal/model"
)

// taskColumns is the column list scanned by scanTask.
const taskColumns = "id, title, description, due_date, status, reminded"

// GetCollection returns the user's collection with tasks in creation order.
func (s *SQLiteStore) GetCollection(
	ctx context.Context,
	email string,
) (*model.UserTaskCollection, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM collections WHERE email = ?", email)
	if err != nil {
		return nil, fmt.Errorf("looking up collection %s: %w", email, err)
	}
	if count == 0 {
		return nil, fmt.Errorf("collection %s: %w", email, ErrNotFound)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE email = ? ORDER BY position", email)
	if err != nil {
		return nil, fmt.Errorf("querying tasks for %s: %w", email, err)
	}
	defer rows.Close()

	col := &model.UserTaskCollection{Email: email, Tasks: []model.Task{}}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		col.Tasks = append(col.Tasks, task)
	}

	return col, rows.Err()
}

// EnsureCollection creates the collection row for email if it is missing.
func (s *SQLiteStore) EnsureCollection(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (email) VALUES (?)", email)
	if err != nil {
		return fmt.Errorf("ensuring collection %s: %w", email, err)
	}
	return nil
}

// PushTask appends a task at the end of the user's collection.
func (s *SQLiteStore) PushTask(
	ctx context.Context,
	email string,
	task model.Task,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			id, email, position,
			title, description, due_date, status, reminded
		) VALUES (
			?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM tasks WHERE email = ?),
			?, ?, ?, ?, ?
		)`,
		task.ID, email, email,
		task.Title, task.Description, task.DueDate, string(task.Status),
		boolToInt(task.Reminded),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("pushing task to %s: collection %w", email, ErrNotFound)
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("pushing task %s: %w", task.ID, ErrConflict)
		}
		return fmt.Errorf("pushing task %s: %w", task.ID, err)
	}
	return nil
}

// UpdateTask overwrites the patch's fields in a single UPDATE scoped to
// (email, id), so concurrent edits to sibling tasks are never lost.
func (s *SQLiteStore) UpdateTask(
	ctx context.Context,
	email, id string,
	patch model.TaskPatch,
) (*model.Task, error) {
	var status any
	if patch.Status != nil {
		status = string(*patch.Status)
	}

	return s.mutateTask(ctx, email, id, `
		UPDATE tasks SET
			title = COALESCE(?, title),
			description = COALESCE(?, description),
			due_date = COALESCE(?, due_date),
			status = COALESCE(?, status)
		WHERE email = ? AND id = ?`,
		nullable(patch.Title), nullable(patch.Description), nullable(patch.DueDate), status,
		email, id,
	)
}

// ToggleTask flips the status of a task without touching any other field.
func (s *SQLiteStore) ToggleTask(
	ctx context.Context,
	email, id string,
) (*model.Task, error) {
	return s.mutateTask(ctx, email, id, `
		UPDATE tasks SET
			status = CASE WHEN status = 'open' THEN 'completed' ELSE 'open' END
		WHERE email = ? AND id = ?`,
		email, id,
	)
}

// mutateTask runs a single-row UPDATE and reads the row back in the same
// transaction.
func (s *SQLiteStore) mutateTask(
	ctx context.Context,
	email, id string,
	query string,
	args ...any,
) (*model.Task, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}

	row := tx.QueryRowxContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE email = ? AND id = ?", email, id)
	task, err := scanTask(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing task %s: %w", id, err)
	}
	return &task, nil
}

// RemoveTask deletes one task from the user's collection.
func (s *SQLiteStore) RemoveTask(ctx context.Context, email, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM tasks WHERE email = ? AND id = ?", email, id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListCollections loads every collection, including empty ones.
func (s *SQLiteStore) ListCollections(
	ctx context.Context,
) ([]model.UserTaskCollection, error) {
	var emails []string
	if err := s.db.SelectContext(ctx, &emails,
		"SELECT email FROM collections ORDER BY email"); err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		"SELECT email, "+taskColumns+" FROM tasks ORDER BY email, position")
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	byEmail := make(map[string][]model.Task, len(emails))
	for rows.Next() {
		var (
			email    string
			task     model.Task
			status   string
			reminded int
		)
		err := rows.Scan(&email,
			&task.ID, &task.Title, &task.Description, &task.DueDate,
			&status, &reminded,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		task.Status = model.Status(status)
		task.Reminded = reminded != 0
		byEmail[email] = append(byEmail[email], task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cols := make([]model.UserTaskCollection, 0, len(emails))
	for _, email := range emails {
		tasks := byEmail[email]
		if tasks == nil {
			tasks = []model.Task{}
		}
		cols = append(cols, model.UserTaskCollection{Email: email, Tasks: tasks})
	}
	return cols, nil
}

// MarkReminded sets the reminded flag on ids with one UPDATE.
func (s *SQLiteStore) MarkReminded(
	ctx context.Context,
	email string,
	ids []string,
) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"UPDATE tasks SET reminded = 1 WHERE email = ? AND id IN (?)", email, ids)
	if err != nil {
		return fmt.Errorf("building reminded update: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("marking %d tasks reminded for %s: %w", len(ids), email, err)
	}
	return nil
}

// scanTask scans a row selected with taskColumns.
func scanTask(row interface{ Scan(dest ...interface{}) error }) (model.Task, error) {
	var (
		task     model.Task
		status   string
		reminded int
	)

	err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.DueDate,
		&status, &reminded,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, fmt.Errorf("scanning task row: %w", ErrNotFound)
		}
		return model.Task{}, fmt.Errorf("scanning task row: %w", err)
	}

	task.Status = model.Status(status)
	task.Reminded = reminded != 0
	return task, nil
}

// nullable maps a nil pointer to SQL NULL so COALESCE keeps the stored value.
func nullable(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
