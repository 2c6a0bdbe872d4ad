package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

const agentColumns = `ax_id, kind, nickname, platform, region, bio, status, created_at, updated_at`

// Repository implements both port/agent.Repository and port/agent.IdentityLookup.
// [LSP] Consumers depend only on the interface they need.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error) {
	query := `
		INSERT INTO agents (` + agentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING ` + agentColumns

	created, err := scanAgent(r.pool.QueryRow(ctx, query,
		a.ID, a.Kind, a.Nickname, a.Platform, a.Region, a.Bio, a.Status,
		a.CreatedAt, a.UpdatedAt,
	))
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	return created, nil
}

func (r *Repository) GetByID(ctx context.Context, id domainagent.ID) (domainagent.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE ax_id = $1`

	a, err := scanAgent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainagent.Agent{}, fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
		return domainagent.Agent{}, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

func (r *Repository) Exists(ctx context.Context, id domainagent.ID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM agents WHERE ax_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking agent existence: %w", err)
	}
	return exists, nil
}

func (r *Repository) DisplayName(ctx context.Context, id domainagent.ID) (string, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return a.DisplayName(), nil
}

func (r *Repository) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`

	args := []interface{}{}
	argIdx := 1

	if filters.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, string(*filters.Kind))
		argIdx++
	}
	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*filters.Status))
		argIdx++
	}
	if filters.Platform != "" {
		query += fmt.Sprintf(" AND platform = $%d", argIdx)
		args = append(args, filters.Platform)
		argIdx++
	}

	query += " ORDER BY created_at DESC, ax_id"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []domainagent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id domainagent.ID, status domainagent.Status) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET status = $1, updated_at = $2 WHERE ax_id = $3`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
	}
	return nil
}

func scanAgent(row pgx.Row) (domainagent.Agent, error) {
	var a domainagent.Agent
	err := row.Scan(
		&a.ID, &a.Kind, &a.Nickname, &a.Platform, &a.Region, &a.Bio, &a.Status,
		&a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}
