package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domaintask "github.com/alanyang/agentlink/internal/domain/task"
)

const taskColumns = `task_id, from_id, to_id, title, description, input_data, output_data,
	priority, status, deadline, created_at, updated_at`

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, t domaintask.Task) (domaintask.Task, error) {
	input, err := marshalMap(t.Input)
	if err != nil {
		return domaintask.Task{}, err
	}
	output, err := marshalMap(t.Output)
	if err != nil {
		return domaintask.Task{}, err
	}
	var deadline sql.NullString
	if t.Deadline != nil {
		deadline = sql.NullString{String: formatTime(*t.Deadline), Valid: true}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.FromID, t.ToID, t.Title, t.Description, input, output,
		t.Priority, t.Status, deadline, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("inserting task: %w", err)
	}
	return r.GetByID(ctx, t.ID)
}

func (r *TaskRepository) GetByID(ctx context.Context, id string) (domaintask.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domaintask.Task{}, fmt.Errorf("task %s: %w", id, domaintask.ErrNotFound)
		}
		return domaintask.Task{}, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

func (r *TaskRepository) List(ctx context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if filters.FromID != nil {
		query += " AND from_id = ?"
		args = append(args, *filters.FromID)
	}
	if filters.ToID != nil {
		query += " AND to_id = ?"
		args = append(args, *filters.ToID)
	}
	if filters.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filters.Status))
	}
	query += " ORDER BY created_at DESC, task_id"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domaintask.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task rows: %w", err)
	}
	return tasks, nil
}

// UpdateStatus is a compare-and-set on status, see the Postgres adapter.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, from, to domaintask.Status, output map[string]any) (domaintask.Task, error) {
	out, err := marshalMap(output)
	if err != nil {
		return domaintask.Task{}, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, output_data = ?, updated_at = ? WHERE task_id = ? AND status = ?`,
		string(to), out, formatTime(time.Now()), id, string(from))
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("updating task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("updating task status: %w", err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return domaintask.Task{}, err
	}
	if n == 0 {
		return domaintask.Task{}, fmt.Errorf("task %s expected status %s: %w", id, from, domaintask.ErrStatusConflict)
	}
	return current, nil
}

func scanTask(row rowScanner) (domaintask.Task, error) {
	var t domaintask.Task
	var input, output, created, updated string
	var deadline sql.NullString
	if err := row.Scan(
		&t.ID, &t.FromID, &t.ToID, &t.Title, &t.Description, &input, &output,
		&t.Priority, &t.Status, &deadline, &created, &updated,
	); err != nil {
		return domaintask.Task{}, err
	}
	var err error
	if t.Input, err = unmarshalMap(input); err != nil {
		return domaintask.Task{}, err
	}
	if t.Output, err = unmarshalMap(output); err != nil {
		return domaintask.Task{}, err
	}
	if deadline.Valid {
		d, err := parseTime(deadline.String)
		if err != nil {
			return domaintask.Task{}, err
		}
		t.Deadline = &d
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return domaintask.Task{}, err
	}
	if t.UpdatedAt, err = parseTime(updated); err != nil {
		return domaintask.Task{}, err
	}
	return t, nil
}
