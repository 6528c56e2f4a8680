package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atiendo/backend/internal/apperr"
	"github.com/atiendo/backend/internal/models"
)

const customerColumns = `id, tenant_id, phone_number, name, email, metadata, created_at, updated_at`

func scanCustomer(row pgx.Row) (models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.PhoneNumber, &c.Name, &c.Email, &c.Metadata, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// EnsureCustomer returns the tenant's customer for phone, creating it when absent.
// The (tenant_id, phone_number) constraint makes concurrent first contacts converge.
func (s *Store) EnsureCustomer(ctx context.Context, tenantID, phone, name string) (models.Customer, bool, error) {
	c, err := scanCustomer(s.Pool.QueryRow(ctx, `
		INSERT INTO customers (id, tenant_id, phone_number, name, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, NOW(), NOW())
		ON CONFLICT (tenant_id, phone_number) DO NOTHING
		RETURNING `+customerColumns, uuid.NewString(), tenantID, phone, name))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Customer{}, false, err
	}
	c, err = scanCustomer(s.Pool.QueryRow(ctx, `
		SELECT `+customerColumns+` FROM customers WHERE tenant_id = $1 AND phone_number = $2`, tenantID, phone))
	return c, false, notFound("customer", err)
}

func (s *Store) GetCustomer(ctx context.Context, id string) (models.Customer, error) {
	c, err := scanCustomer(s.Pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	return c, notFound("customer", err)
}

const conversationColumns = `id, tenant_id, customer_id, primary_channel, status, priority, tags, created_at, updated_at`

func scanConversation(row pgx.Row) (models.Conversation, error) {
	var c models.Conversation
	err := row.Scan(&c.ID, &c.TenantID, &c.CustomerID, &c.PrimaryChannel, &c.Status, &c.Priority, &c.Tags, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) findOpenConversation(ctx context.Context, tenantID, customerID string, channel models.Channel) (models.Conversation, error) {
	return scanConversation(s.Pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE tenant_id = $1 AND customer_id = $2 AND primary_channel = $3 AND status IN ('OPEN', 'PENDING')
		ORDER BY updated_at DESC LIMIT 1`, tenantID, customerID, channel))
}

// EnsureOpenConversation reuses the most recently updated OPEN/PENDING conversation
// for the tuple or starts a new OPEN/MEDIUM one.
func (s *Store) EnsureOpenConversation(ctx context.Context, tenantID, customerID string, channel models.Channel) (models.Conversation, bool, error) {
	c, err := s.findOpenConversation(ctx, tenantID, customerID, channel)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, false, err
	}
	c, err = scanConversation(s.Pool.QueryRow(ctx, `
		INSERT INTO conversations (id, tenant_id, customer_id, primary_channel, status, priority, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'OPEN', 'MEDIUM', '{}', NOW(), NOW())
		ON CONFLICT (tenant_id, customer_id, primary_channel) WHERE status IN ('OPEN', 'PENDING') DO NOTHING
		RETURNING `+conversationColumns, uuid.NewString(), tenantID, customerID, channel))
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Conversation{}, false, err
	}
	c, err = s.findOpenConversation(ctx, tenantID, customerID, channel)
	return c, false, notFound("conversation", err)
}

func (s *Store) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	c, err := scanConversation(s.Pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	return c, notFound("conversation", err)
}

// UpdateConversationState sets whichever of status/priority is non-empty and bumps updated_at.
func (s *Store) UpdateConversationState(ctx context.Context, id string, status models.ConversationStatus, priority models.Priority) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if status != "" {
		args = append(args, status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if priority != "" {
		args = append(args, priority)
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE conversations SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if isUniqueViolation(err) {
		return apperr.Conflict("OPEN_CONVERSATION_EXISTS", fmt.Errorf("customer already has an open conversation on this channel: %w", err))
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound("conversation", pgx.ErrNoRows)
	}
	return nil
}

func (s *Store) ListConversations(ctx context.Context, tenantID string, status string, limit, offset int) ([]models.Conversation, error) {
	limit, offset = clampPage(limit, offset)
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE tenant_id = $1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
