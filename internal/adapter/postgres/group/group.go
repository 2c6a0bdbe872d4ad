package group

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

const groupMessageColumns = `msg_id, group_id, from_id, sender_name, content_type, content, payload, created_at`

// Repository implements port/group.Repository, which embeds MembershipReader.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the group and its initial members in one transaction.
func (r *Repository) Create(ctx context.Context, g domainmessage.Group) (domainmessage.Group, error) {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO agent_groups (group_id, name, owner_id, created_at) VALUES ($1,$2,$3,$4)`,
			g.ID, g.Name, g.OwnerID, g.CreatedAt); err != nil {
			return fmt.Errorf("inserting group: %w", err)
		}
		for _, m := range g.Members {
			if _, err := tx.Exec(ctx,
				`INSERT INTO group_members (group_id, ax_id, role, joined_at) VALUES ($1,$2,$3,$4)
				 ON CONFLICT (group_id, ax_id) DO NOTHING`,
				g.ID, m.AgentID, m.Role, m.JoinedAt); err != nil {
				return fmt.Errorf("inserting group member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return domainmessage.Group{}, err
	}
	return r.GetByID(ctx, g.ID)
}

func (r *Repository) GetByID(ctx context.Context, id string) (domainmessage.Group, error) {
	var g domainmessage.Group
	err := r.pool.QueryRow(ctx,
		`SELECT group_id, name, owner_id, created_at FROM agent_groups WHERE group_id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domainmessage.Group{}, fmt.Errorf("group %s: %w", id, domainmessage.ErrGroupNotFound)
		}
		return domainmessage.Group{}, fmt.Errorf("querying group: %w", err)
	}

	members, err := r.members(ctx, id)
	if err != nil {
		return domainmessage.Group{}, err
	}
	g.Members = members
	return g, nil
}

func (r *Repository) ListForAgent(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT g.group_id, g.name, g.owner_id, g.created_at
		FROM agent_groups g
		JOIN group_members gm ON gm.group_id = g.group_id
		WHERE gm.ax_id = $1
		ORDER BY g.created_at, g.group_id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var groups []domainmessage.Group
	for rows.Next() {
		var g domainmessage.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return groups, nil
}

// MembersOf reads current membership straight from storage on every call.
func (r *Repository) MembersOf(ctx context.Context, groupID string) ([]domainmessage.Member, error) {
	members, err := r.members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return members, nil
	}
	// A group always holds its owner, so no rows means no group.
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_groups WHERE group_id = $1)`, groupID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking group existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("group %s: %w", groupID, domainmessage.ErrGroupNotFound)
	}
	return members, nil
}

func (r *Repository) AddMember(ctx context.Context, groupID string, m domainmessage.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO group_members (group_id, ax_id, role, joined_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (group_id, ax_id) DO NOTHING`,
		groupID, m.AgentID, m.Role, m.JoinedAt)
	if err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}
	return nil
}

func (r *Repository) RemoveMember(ctx context.Context, groupID string, agentID domainagent.ID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND ax_id = $2`, groupID, agentID)
	if err != nil {
		return fmt.Errorf("removing group member: %w", err)
	}
	return nil
}

func (r *Repository) CreateMessage(ctx context.Context, m domainmessage.GroupMessage) (domainmessage.GroupMessage, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return domainmessage.GroupMessage{}, fmt.Errorf("marshaling payload: %w", err)
	}

	query := `
		INSERT INTO group_messages (` + groupMessageColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ` + groupMessageColumns

	created, err := scanGroupMessage(r.pool.QueryRow(ctx, query,
		m.ID, m.GroupID, m.FromID, m.SenderName, m.ContentType, m.Content, payload, m.CreatedAt,
	))
	if err != nil {
		return domainmessage.GroupMessage{}, fmt.Errorf("inserting group message: %w", err)
	}
	return created, nil
}

func (r *Repository) History(ctx context.Context, groupID string, page domainmessage.Page) ([]domainmessage.GroupMessage, error) {
	query := `
		SELECT ` + groupMessageColumns + ` FROM (
			SELECT seq, ` + groupMessageColumns + ` FROM group_messages
			WHERE group_id = $1
			ORDER BY seq DESC
			LIMIT $2 OFFSET $3
		) recent ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, groupID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying group history: %w", err)
	}
	defer rows.Close()

	var msgs []domainmessage.GroupMessage
	for rows.Next() {
		m, err := scanGroupMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning group message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group message rows: %w", err)
	}
	return msgs, nil
}

func (r *Repository) members(ctx context.Context, groupID string) ([]domainmessage.Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ax_id, role, joined_at FROM group_members
		WHERE group_id = $1
		ORDER BY CASE role WHEN 'owner' THEN 0 ELSE 1 END, joined_at, ax_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	var members []domainmessage.Member
	for rows.Next() {
		var m domainmessage.Member
		if err := rows.Scan(&m.AgentID, &m.Role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

func scanGroupMessage(row pgx.Row) (domainmessage.GroupMessage, error) {
	var m domainmessage.GroupMessage
	var payload []byte
	if err := row.Scan(
		&m.ID, &m.GroupID, &m.FromID, &m.SenderName, &m.ContentType, &m.Content, &payload, &m.CreatedAt,
	); err != nil {
		return domainmessage.GroupMessage{}, err
	}
	m.Payload = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &m.Payload); err != nil {
			return domainmessage.GroupMessage{}, fmt.Errorf("unmarshaling payload: %w", err)
		}
	}
	return m, nil
}
