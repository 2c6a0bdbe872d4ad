package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

const groupMessageColumns = `msg_id, group_id, from_id, sender_name, content_type, content, payload, created_at`

type GroupRepository struct {
	db *sql.DB
}

func NewGroupRepository(db *sql.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, g domainmessage.Group) (domainmessage.Group, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domainmessage.Group{}, fmt.Errorf("beginning group tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO agent_groups (group_id, name, owner_id, created_at) VALUES (?,?,?,?)`,
		g.ID, g.Name, g.OwnerID, formatTime(g.CreatedAt)); err != nil {
		return domainmessage.Group{}, fmt.Errorf("inserting group: %w", err)
	}
	for _, m := range g.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, ax_id, role, joined_at) VALUES (?,?,?,?)`,
			g.ID, m.AgentID, m.Role, formatTime(m.JoinedAt)); err != nil {
			return domainmessage.Group{}, fmt.Errorf("inserting group member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domainmessage.Group{}, fmt.Errorf("committing group: %w", err)
	}
	return r.GetByID(ctx, g.ID)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (domainmessage.Group, error) {
	var g domainmessage.Group
	var created string
	err := r.db.QueryRowContext(ctx,
		`SELECT group_id, name, owner_id, created_at FROM agent_groups WHERE group_id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.OwnerID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainmessage.Group{}, fmt.Errorf("group %s: %w", id, domainmessage.ErrGroupNotFound)
		}
		return domainmessage.Group{}, fmt.Errorf("querying group: %w", err)
	}
	if g.CreatedAt, err = parseTime(created); err != nil {
		return domainmessage.Group{}, err
	}
	if g.Members, err = r.members(ctx, id); err != nil {
		return domainmessage.Group{}, err
	}
	return g, nil
}

func (r *GroupRepository) ListForAgent(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT g.group_id, g.name, g.owner_id, g.created_at
		FROM agent_groups g
		JOIN group_members gm ON gm.group_id = g.group_id
		WHERE gm.ax_id = ?
		ORDER BY g.created_at, g.group_id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	defer rows.Close()

	var groups []domainmessage.Group
	for rows.Next() {
		var g domainmessage.Group
		var created string
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &created); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		if g.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return groups, nil
}

// MembersOf reads current membership on every call.
func (r *GroupRepository) MembersOf(ctx context.Context, groupID string) ([]domainmessage.Member, error) {
	members, err := r.members(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		return members, nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM agent_groups WHERE group_id = ?)`, groupID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking group existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("group %s: %w", groupID, domainmessage.ErrGroupNotFound)
	}
	return members, nil
}

func (r *GroupRepository) AddMember(ctx context.Context, groupID string, m domainmessage.Member) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO group_members (group_id, ax_id, role, joined_at) VALUES (?,?,?,?)`,
		groupID, m.AgentID, m.Role, formatTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("adding group member: %w", err)
	}
	return nil
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID string, agentID domainagent.ID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND ax_id = ?`, groupID, agentID); err != nil {
		return fmt.Errorf("removing group member: %w", err)
	}
	return nil
}

func (r *GroupRepository) CreateMessage(ctx context.Context, m domainmessage.GroupMessage) (domainmessage.GroupMessage, error) {
	payload, err := marshalMap(m.Payload)
	if err != nil {
		return domainmessage.GroupMessage{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO group_messages (`+groupMessageColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.GroupID, m.FromID, m.SenderName, m.ContentType, m.Content, payload, formatTime(m.CreatedAt))
	if err != nil {
		return domainmessage.GroupMessage{}, fmt.Errorf("inserting group message: %w", err)
	}
	return scanGroupMessage(r.db.QueryRowContext(ctx,
		`SELECT `+groupMessageColumns+` FROM group_messages WHERE msg_id = ?`, m.ID))
}

func (r *GroupRepository) History(ctx context.Context, groupID string, page domainmessage.Page) ([]domainmessage.GroupMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+groupMessageColumns+` FROM (
			SELECT seq, `+groupMessageColumns+` FROM group_messages
			WHERE group_id = ?
			ORDER BY seq DESC
			LIMIT ? OFFSET ?
		) ORDER BY seq ASC`, groupID, page.Limit, page.Offset)
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

func (r *GroupRepository) members(ctx context.Context, groupID string) ([]domainmessage.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ax_id, role, joined_at FROM group_members
		WHERE group_id = ?
		ORDER BY CASE role WHEN 'owner' THEN 0 ELSE 1 END, joined_at, ax_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("querying group members: %w", err)
	}
	defer rows.Close()

	var members []domainmessage.Member
	for rows.Next() {
		var m domainmessage.Member
		var joined string
		if err := rows.Scan(&m.AgentID, &m.Role, &joined); err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		if m.JoinedAt, err = parseTime(joined); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

func scanGroupMessage(row rowScanner) (domainmessage.GroupMessage, error) {
	var m domainmessage.GroupMessage
	var payload, created string
	if err := row.Scan(&m.ID, &m.GroupID, &m.FromID, &m.SenderName, &m.ContentType, &m.Content, &payload, &created); err != nil {
		return domainmessage.GroupMessage{}, err
	}
	var err error
	if m.Payload, err = unmarshalMap(payload); err != nil {
		return domainmessage.GroupMessage{}, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return domainmessage.GroupMessage{}, err
	}
	return m, nil
}
