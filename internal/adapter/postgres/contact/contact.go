package contact

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainagent "github.com/alanyang/agentlink/internal/domain/agent"
	domaincontact "github.com/alanyang/agentlink/internal/domain/contact"
)

const contactColumns = `owner_id, friend_id, status, message, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, owner, friend domainagent.ID) (domaincontact.Contact, error) {
	c, err := scanContact(r.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE owner_id = $1 AND friend_id = $2`, owner, friend))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domaincontact.Contact{}, fmt.Errorf("contact %s -> %s: %w", owner, friend, domaincontact.ErrNotFound)
		}
		return domaincontact.Contact{}, fmt.Errorf("querying contact: %w", err)
	}
	return c, nil
}

// Upsert keeps the original created_at when the edge already exists.
func (r *Repository) Upsert(ctx context.Context, c domaincontact.Contact) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contacts (`+contactColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (owner_id, friend_id) DO UPDATE
		SET status = EXCLUDED.status, message = EXCLUDED.message, updated_at = EXCLUDED.updated_at`,
		c.OwnerID, c.FriendID, c.Status, c.Message, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting contact: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, owner, friend domainagent.ID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM contacts WHERE owner_id = $1 AND friend_id = $2`, owner, friend)
	if err != nil {
		return fmt.Errorf("deleting contact: %w", err)
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, owner domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	return r.list(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE owner_id = $1 AND status = $2 ORDER BY updated_at DESC, friend_id`, owner, status)
}

func (r *Repository) ListIncoming(ctx context.Context, friend domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	return r.list(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE friend_id = $1 AND status = $2 ORDER BY created_at DESC, owner_id`, friend, status)
}

func (r *Repository) list(ctx context.Context, query string, id domainagent.ID, status domaincontact.Status) ([]domaincontact.Contact, error) {
	rows, err := r.pool.Query(ctx, query, id, string(status))
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

func scanContact(row pgx.Row) (domaincontact.Contact, error) {
	var c domaincontact.Contact
	err := row.Scan(&c.OwnerID, &c.FriendID, &c.Status, &c.Message, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}
