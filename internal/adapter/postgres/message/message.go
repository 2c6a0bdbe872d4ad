package message

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

const messageColumns = `msg_id, from_id, to_id, content_type, content, payload, read, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, m domainmessage.Message) (domainmessage.Message, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return domainmessage.Message{}, fmt.Errorf("marshaling payload: %w", err)
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING ` + messageColumns

	created, err := scanMessage(r.pool.QueryRow(ctx, query,
		m.ID, m.FromID, m.ToID, m.ContentType, m.Content, payload, m.Read, m.CreatedAt,
	))
	if err != nil {
		return domainmessage.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return created, nil
}

// History returns the newest page of the a<->b conversation, oldest first.
// Ordering uses the insert sequence so same-timestamp messages keep send order.
func (r *Repository) History(ctx context.Context, a, b domainagent.ID, page domainmessage.Page) ([]domainmessage.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT seq, ` + messageColumns + ` FROM messages
			WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1)
			ORDER BY seq DESC
			LIMIT $3 OFFSET $4
		) recent ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, a, b, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying chat history: %w", err)
	}
	defer rows.Close()

	var msgs []domainmessage.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

func (r *Repository) MarkRead(ctx context.Context, to, from domainagent.ID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE to_id = $1 AND from_id = $2 AND NOT read`, to, from)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) UnreadCounts(ctx context.Context, agentID domainagent.ID) ([]domainmessage.UnreadCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_id, COUNT(*) FROM messages
		WHERE to_id = $1 AND NOT read
		GROUP BY from_id
		ORDER BY from_id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("counting unread messages: %w", err)
	}
	defer rows.Close()

	var counts []domainmessage.UnreadCount
	for rows.Next() {
		var c domainmessage.UnreadCount
		if err := rows.Scan(&c.FromID, &c.Count); err != nil {
			return nil, fmt.Errorf("scanning unread row: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *Repository) Conversations(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Conversation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT peer, MAX(created_at) AS last_at FROM (
			SELECT CASE WHEN from_id = $1 THEN to_id ELSE from_id END AS peer, created_at
			FROM messages WHERE from_id = $1 OR to_id = $1
		) m
		GROUP BY peer
		ORDER BY last_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domainmessage.Conversation
	for rows.Next() {
		var c domainmessage.Conversation
		if err := rows.Scan(&c.PeerID, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanMessage(row pgx.Row) (domainmessage.Message, error) {
	var m domainmessage.Message
	var payload []byte
	if err := row.Scan(
		&m.ID, &m.FromID, &m.ToID, &m.ContentType, &m.Content, &payload, &m.Read, &m.CreatedAt,
	); err != nil {
		return domainmessage.Message{}, err
	}
	if err := unmarshalPayload(payload, &m.Payload); err != nil {
		return domainmessage.Message{}, err
	}
	return m, nil
}

func unmarshalPayload(raw []byte, dst *map[string]any) error {
	*dst = map[string]any{}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}
	return nil
}
