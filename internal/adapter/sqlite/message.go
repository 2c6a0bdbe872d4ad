package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domainmessage "github.com/alanyang/agentlink/internal/domain/message"
)

const messageColumns = `msg_id, from_id, to_id, content_type, content, payload, read, created_at`

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, m domainmessage.Message) (domainmessage.Message, error) {
	payload, err := marshalMap(m.Payload)
	if err != nil {
		return domainmessage.Message{}, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.FromID, m.ToID, m.ContentType, m.Content, payload, m.Read, formatTime(m.CreatedAt))
	if err != nil {
		return domainmessage.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return scanMessage(r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, m.ID))
}

// History returns the newest page of the a<->b conversation, oldest first.
func (r *MessageRepository) History(ctx context.Context, a, b domainagent.ID, page domainmessage.Page) ([]domainmessage.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+` FROM messages
			WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)
			ORDER BY seq DESC
			LIMIT ? OFFSET ?
		) ORDER BY seq ASC`,
		a, b, b, a, page.Limit, page.Offset)
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

func (r *MessageRepository) MarkRead(ctx context.Context, to, from domainagent.ID) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET read = 1 WHERE to_id = ? AND from_id = ? AND read = 0`, to, from)
	if err != nil {
		return 0, fmt.Errorf("marking messages read: %w", err)
	}
	return res.RowsAffected()
}

func (r *MessageRepository) UnreadCounts(ctx context.Context, agentID domainagent.ID) ([]domainmessage.UnreadCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT from_id, COUNT(*) FROM messages
		WHERE to_id = ? AND read = 0
		GROUP BY from_id ORDER BY from_id`, agentID)
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

func (r *MessageRepository) Conversations(ctx context.Context, agentID domainagent.ID) ([]domainmessage.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT peer, MAX(created_at) AS last_at FROM (
			SELECT CASE WHEN from_id = ? THEN to_id ELSE from_id END AS peer, created_at
			FROM messages WHERE from_id = ? OR to_id = ?
		)
		GROUP BY peer
		ORDER BY last_at DESC`, agentID, agentID, agentID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []domainmessage.Conversation
	for rows.Next() {
		var c domainmessage.Conversation
		var last string
		if err := rows.Scan(&c.PeerID, &last); err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		if c.LastMessageAt, err = parseTime(last); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func scanMessage(row rowScanner) (domainmessage.Message, error) {
	var m domainmessage.Message
	var payload, created string
	if err := row.Scan(&m.ID, &m.FromID, &m.ToID, &m.ContentType, &m.Content, &payload, &m.Read, &created); err != nil {
		return domainmessage.Message{}, err
	}
	var err error
	if m.Payload, err = unmarshalMap(payload); err != nil {
		return domainmessage.Message{}, err
	}
	if m.CreatedAt, err = parseTime(created); err != nil {
		return domainmessage.Message{}, err
	}
	return m, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshaling json column: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) (map[string]any, error) {
	out := map[string]any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("unmarshaling json column: %w", err)
	}
	return out, nil
}
