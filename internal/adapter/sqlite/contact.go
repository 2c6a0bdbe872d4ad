package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
)

const contactColumns = `owner_id, friend_id, status, message, created_at, updated_at`

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

func (r *ContactRepository) Get(ctx context.Context, owner, friend domainagent.ID) (domaincontact.Contact, error) {
	c, err := scanContact(r.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_id = ? AND friend_id = ?`, owner, friend))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domaincontact.Contact{}, fmt.Errorf("contact %s -> %s: %w", owner, friend, domaincontact.ErrNotFound)
		}
		return domaincontact.Contact{}, fmt.Errorf("querying contact: %w", err)
	}
	return c, nil
}

func (r *ContactRepository) Upsert(ctx context.Context, c domaincontact.Contact) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`) VALUES (?,?,?,?,?,?)
		ON CONFLICT (owner_id, friend_id) DO UPDATE
		SET status = excluded.status, message = excluded.message, updated_at = excluded.updated_at`,
		c.OwnerID, c.FriendID, c.Status, c.Message, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) Delete(ctx context.Context, owner, friend domainagent.ID) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM contacts WHERE owner_id = ? AND friend_id = ?`, owner, friend); err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return nil
}

func (r *ContactRepository) ListByOwner(ctx context.Context, owner domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	return r.list(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE owner_id = ? AND status = ? ORDER BY updated_at DESC, friend_id`, owner, status)
}

func (r *ContactRepository) ListIncoming(ctx context.Context, friend domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	return r.list(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE friend_id = ? AND status = ? ORDER BY created_at DESC, owner_id`, friend, status)
}

func (r *ContactRepository) list(ctx context.Context, query string, id domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	rows, err := r.db.QueryContext(ctx, query, id, string(status))
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var contacts []domaincontact.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contact row: %w", err)
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contact rows: %w", err)
	}
	return contacts, nil
}

func scanContact(row rowScanner) (domaincontact.Contact, error) {
	var c domaincontact.Contact
	var created, updated string
	if err := row.Scan(&c.OwnerID, &c.FriendID, &c.Status, &c.Message, &created, &updated); err != nil {
		return domaincontact.Contact{}, err
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return domaincontact.Contact{}, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return domaincontact.Contact{}, err
	}
	return c, nil
}
