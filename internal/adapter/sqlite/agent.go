package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
)

const agentColumns = `ax_id, kind, nickname, platform, region, bio, status, created_at, updated_at`

// AgentRepository implements port/agent.Repository and port/agent.IdentityLookup.
type AgentRepository struct {
	db *sql.DB
}

func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

func (r *AgentRepository) Create(ctx context.Context, a domainagent.Agent) (domainagent.Agent, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (`+agentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Kind, a.Nickname, a.Platform, a.Region, a.Bio, a.Status,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return domainagent.Agent{}, fmt.Errorf("inserting agent: %w", err)
	}
	return r.GetByID(ctx, a.ID)
}

func (r *AgentRepository) GetByID(ctx context.Context, id domainagent.ID) (domainagent.Agent, error) {
	a, err := scanAgent(r.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE ax_id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainagent.Agent{}, fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
		}
		return domainagent.Agent{}, fmt.Errorf("querying agent: %w", err)
	}
	return a, nil
}

func (r *AgentRepository) Exists(ctx context.Context, id domainagent.ID) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM agents WHERE ax_id = ?)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking agent existence: %w", err)
	}
	return exists, nil
}

func (r *AgentRepository) DisplayName(ctx context.Context, id domainagent.ID) (string, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return a.DisplayName(), nil
}

func (r *AgentRepository) List(ctx context.Context, filters domainagent.ListFilters) ([]domainagent.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE 1=1`
	var args []any

	if filters.Kind != nil {
		query += " AND kind = ?"
		args = append(args, string(*filters.Kind))
	}
	if filters.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filters.Status))
	}
	if filters.Platform != "" {
		query += " AND platform = ?"
		args = append(args, filters.Platform)
	}
	query += " ORDER BY created_at DESC, ax_id"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
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

func (r *AgentRepository) UpdateStatus(ctx context.Context, id domainagent.ID, status domainagent.Status) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE ax_id = ?`,
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating agent status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("agent %s: %w", id, domainagent.ErrNotFound)
	}
	return nil
}

func scanAgent(row rowScanner) (domainagent.Agent, error) {
	var a domainagent.Agent
	var created, updated string
	if err := row.Scan(&a.ID, &a.Kind, &a.Nickname, &a.Platform, &a.Region, &a.Bio, &a.Status, &created, &updated); err != nil {
		return domainagent.Agent{}, err
	}
	var err error
	if a.CreatedAt, err = parseTime(created); err != nil {
		return domainagent.Agent{}, err
	}
	if a.UpdatedAt, err = parseTime(updated); err != nil {
		return domainagent.Agent{}, err
	}
	return a, nil
}
