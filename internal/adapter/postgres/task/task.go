package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domaintask "github.com/alanyang/agentlink/internal/domain/task"
)

const taskColumns = `task_id, from_id, to_id, title, description, input_data, output_data,
	priority, status, deadline, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, t domaintask.Task) (domaintask.Task, error) {
	input, err := json.Marshal(t.Input)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("marshaling input: %w", err)
	}
	output, err := json.Marshal(t.Output)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("marshaling output: %w", err)
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING ` + taskColumns

	created, err := scanTask(r.pool.QueryRow(ctx, query,
		t.ID, t.FromID, t.ToID, t.Title, t.Description, input, output,
		t.Priority, t.Status, t.Deadline, t.CreatedAt, t.UpdatedAt,
	))
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("inserting task: %w", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (domaintask.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domaintask.Task{}, fmt.Errorf("task %s: %w", id, domaintask.ErrNotFound)
		}
		return domaintask.Task{}, fmt.Errorf("querying task: %w", err)
	}
	return t, nil
}

func (r *Repository) List(ctx context.Context, filters domaintask.ListFilters) ([]domaintask.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`

	args := []interface{}{}
	argIdx := 1

	if filters.FromID != nil {
		query += fmt.Sprintf(" AND from_id = $%d", argIdx)
		args = append(args, *filters.FromID)
		argIdx++
	}
	if filters.ToID != nil {
		query += fmt.Sprintf(" AND to_id = $%d", argIdx)
		args = append(args, *filters.ToID)
		argIdx++
	}
	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*filters.Status))
		argIdx++
	}

	query += " ORDER BY created_at DESC, task_id"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
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

// UpdateStatus is a compare-and-set on status. When the stored status is no
// longer from it returns ErrStatusConflict; a missing task is ErrNotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id string, from, to domaintask.Status, output map[string]any) (domaintask.Task, error) {
	out, err := json.Marshal(output)
	if err != nil {
		return domaintask.Task{}, fmt.Errorf("marshaling output: %w", err)
	}

	query := `
		UPDATE tasks SET status = $1, output_data = $2, updated_at = $3
		WHERE task_id = $4 AND status = $5
		RETURNING ` + taskColumns

	updated, err := scanTask(r.pool.QueryRow(ctx, query, string(to), out, time.Now().UTC(), id, string(from)))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domaintask.Task{}, fmt.Errorf("updating task status: %w", err)
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return domaintask.Task{}, getErr
	}
	return domaintask.Task{}, fmt.Errorf("task %s expected status %s: %w", id, from, domaintask.ErrStatusConflict)
}

func scanTask(row pgx.Row) (domaintask.Task, error) {
	var t domaintask.Task
	var input, output []byte
	if err := row.Scan(
		&t.ID, &t.FromID, &t.ToID, &t.Title, &t.Description, &input, &output,
		&t.Priority, &t.Status, &t.Deadline, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return domaintask.Task{}, err
	}
	t.Input = map[string]any{}
	t.Output = map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &t.Input); err != nil {
			return domaintask.Task{}, fmt.Errorf("unmarshaling input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &t.Output); err != nil {
			return domaintask.Task{}, fmt.Errorf("unmarshaling output: %w", err)
		}
	}
	return t, nil
}
